// Package recovery contains panics in the library's background
// goroutines, converting them into logged, reportable errors instead of
// process crashes.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/skyformat99/cryptogateway/internal/gwerrors"
	"github.com/skyformat99/cryptogateway/internal/logging"
)

// Recover recovers a panic in the named component, logs it with the
// stack, and hands it to notify as a Custom error so the goroutine's
// owner observes the failure rather than a silently dead task. notify
// may be nil when there is no owner to tell.
//
//	go func() {
//	    defer recovery.Recover(logger, "rsakeypair.Generate", func(e *gwerrors.Error) {
//	        result <- e
//	    })
//	    // ... background work
//	}()
func Recover(logger *slog.Logger, component string, notify func(*gwerrors.Error)) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("panic recovered",
		logging.KeyComponent, component,
		logging.KeyError, fmt.Sprint(r),
		"stack", string(debug.Stack()))
	if notify != nil {
		notify(gwerrors.Custom("panic in "+component, fmt.Sprint(r)))
	}
}
