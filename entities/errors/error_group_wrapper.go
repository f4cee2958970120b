//            _     _        _
//   ___  __| |___| |_ __ _| |_ ___
//  / _ \/ _` / __| __/ _` | __/ __|
// |  __/ (_| \__ \ || (_| | |_\__ \
//  \___|\__,_|___/\__\__,_|\__|___/
//
//  Copyright © 2021 - 2026 The edstats Authors. All rights reserved.
//
//  CONTACT: engineering@edstats.io
//

package errors

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrorGroupWrapper embeds errgroup.Group and adds panic recovery to every
// spawned goroutine. SetLimit is promoted from the embedded group and is
// how the snapshot reader bounds its listing concurrency.
type ErrorGroupWrapper struct {
	*errgroup.Group

	mu          sync.Mutex
	panicErr    error
	logger      logrus.FieldLogger
	contextVars []interface{}
}

// NewErrorGroupWrapper creates a new ErrorGroupWrapper. The variadic vars
// are logged alongside any recovered panic to give the stack some context.
func NewErrorGroupWrapper(logger logrus.FieldLogger, vars ...interface{}) *ErrorGroupWrapper {
	return &ErrorGroupWrapper{
		Group:       new(errgroup.Group),
		logger:      logger,
		contextVars: vars,
	}
}

// Go runs f on a group goroutine, converting a panic into an error that
// Wait will return instead of crashing the process.
func (egw *ErrorGroupWrapper) Go(f func() error, localVars ...interface{}) {
	egw.Group.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				egw.logger.WithField("local_vars", fmt.Sprint(localVars...)).
					WithField("context_vars", fmt.Sprint(egw.contextVars...)).
					Errorf("Recovered from panic: %v", r)
				debug.PrintStack()

				egw.mu.Lock()
				if egw.panicErr == nil {
					egw.panicErr = fmt.Errorf("panic occurred: %v", r)
				}
				egw.mu.Unlock()
			}
		}()
		return f()
	})
}

// Wait blocks until all goroutines finish and returns the first non-nil
// error, with recovered panics ranking behind regular errors.
func (egw *ErrorGroupWrapper) Wait() error {
	if err := egw.Group.Wait(); err != nil {
		return err
	}

	egw.mu.Lock()
	defer egw.mu.Unlock()
	return egw.panicErr
}
