// Package panics adapts the teacher's goroutine-wrapper pattern to
// logrus: recover panics, log them with a stack trace, and bring the
// process down cleanly rather than letting a background goroutine
// die silently.
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

const handlerTimeout = 5 * time.Second

// HandlePanic recovers a panic, logs it with the stack trace captured
// at goroutine-spawn time, and exits the process. Call it deferred at
// the top of any goroutine the sync loop or API server spawns.
func HandlePanic(log *logrus.Entry, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Errorf("fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Errorf("goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Errorf("stack trace: %s", debug.Stack())
		close(done)
	}()

	select {
	case <-time.After(handlerTimeout):
		fmt.Fprintln(os.Stderr, "couldn't handle a fatal error, exiting")
	case <-done:
	}
	os.Exit(1)
}

// Go runs f in a new goroutine, recovering and logging any panic
// through HandlePanic instead of crashing the whole process silently.
func Go(log *logrus.Entry, f func()) {
	stackTrace := debug.Stack()
	go func() {
		defer HandlePanic(log, stackTrace)
		f()
	}()
}
