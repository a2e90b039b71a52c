package observability

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with its stack trace.
//
// Usage in defer statements:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "watch loop")
//	    ...
//	}()
//
// The panic is not re-raised.
func RecoverPanic(logger *logrus.Logger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it and then runs
// callback. The callback only runs when a panic occurred.
func RecoverPanicWithCallback(logger *logrus.Logger, context string, callback func(recovered any)) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if callback != nil {
			callback(r)
		}
	}
}

func logPanic(logger *logrus.Logger, context string, r any) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"panic":   r,
		"stack":   string(debug.Stack()),
		"context": context,
	}).Error("PANIC recovered")
}
