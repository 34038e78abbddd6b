package reactor

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// loggerHolder lets SetLogger swap the package-level logger without a data
// race against in-flight log calls, mirroring the teacher's
// globalLogger/SetStructuredLogger pattern (see logging.go in the
// eventloop package this is grounded on).
var loggerHolder struct {
	sync.RWMutex
	log *logiface.Logger[*stumpy.Event]
}

func init() {
	loggerHolder.log = stumpy.L.New(
		stumpy.L.WithLevel(logiface.LevelInformational),
		stumpy.WithStumpy(stumpy.WithWriter(os.Stderr)),
	)
}

// SetLogger replaces the package-wide structured logger. It is safe to call
// concurrently with logging calls from running loops.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	loggerHolder.Lock()
	defer loggerHolder.Unlock()
	loggerHolder.log = l
}

// logger returns the current package-wide structured logger.
func logger() *logiface.Logger[*stumpy.Event] {
	loggerHolder.RLock()
	defer loggerHolder.RUnlock()
	return loggerHolder.log
}
