package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampOrdering(t *testing.T) {
	a := Now()
	b := a.Add(time.Millisecond)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, b.Before(a))
}

func TestTimestampSub(t *testing.T) {
	a := Now()
	b := a.Add(250 * time.Millisecond)
	require.Equal(t, 250*time.Millisecond, b.Sub(a))
}

func TestTimestampUnixMicro(t *testing.T) {
	a := Now()
	b := a.Add(time.Second)
	assert.Equal(t, int64(time.Second/time.Microsecond), b.UnixMicro()-a.UnixMicro())
}
