// Package panics recovers goroutine panics into the logging stack instead
// of letting them crash the process silently, and wraps goroutine
// launches so every one gets this treatment for free. Adapted from
// util/panics/panics.go onto internal/logs.Logger.
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/ghostkasd/ghostkasd/internal/logs"
)

const handlerTimeout = 5 * time.Second

// HandlePanic recovers a panic, logs it along with a stack trace, and
// exits the process. Call it deferred at the top of any goroutine that
// must not take the whole process down silently.
func HandlePanic(log logs.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Criticalf("fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Criticalf("goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Criticalf("stack trace: %s", debug.Stack())
		close(done)
	}()

	select {
	case <-time.After(handlerTimeout):
		fmt.Fprintln(os.Stderr, "couldn't handle a fatal error, exiting")
	case <-done:
	}
	os.Exit(1)
}

// Go launches f in a new goroutine with panic recovery wired through log.
func Go(log logs.Logger, f func()) {
	stackTrace := debug.Stack()
	go func() {
		defer HandlePanic(log, stackTrace)
		f()
	}()
}
