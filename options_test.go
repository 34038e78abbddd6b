package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerWithOptionsAppliesConfig(t *testing.T) {
	mainLoop, err := NewLoop()
	require.NoError(t, err)
	defer mainLoop.Close()

	addr, err := NewEndpoint("127.0.0.1", 0)
	require.NoError(t, err)

	srv, err := NewServerWithOptions(mainLoop, addr, "opts",
		WithReusePort(true),
		WithThreadNum(3),
		WithHighWaterMark(1024),
	)
	require.NoError(t, err)
	assert.Equal(t, 1024, srv.highWaterMark)

	require.NoError(t, srv.Start(nil))
	defer func() {
		for _, l := range srv.pool.getAllLoops() {
			l.Quit()
		}
	}()

	assert.Len(t, srv.pool.getAllLoops(), 3)
}

func TestNewServerWithOptionsDefaultsHighWaterMark(t *testing.T) {
	mainLoop, err := NewLoop()
	require.NoError(t, err)
	defer mainLoop.Close()

	addr, err := NewEndpoint("127.0.0.1", 0)
	require.NoError(t, err)

	srv, err := NewServerWithOptions(mainLoop, addr, "opts-default")
	require.NoError(t, err)
	assert.Equal(t, defaultHighWaterMark, srv.highWaterMark)
}
