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

// Package errors wraps goroutine spawning so a panic in background work
// is logged instead of killing the process.
package errors

import (
	"os"
	"runtime/debug"

	entcfg "github.com/edstats/edstats/entities/config"

	"github.com/sirupsen/logrus"
)

// GoWrapper runs f on a fresh goroutine and recovers any panic, logging
// it through the given logger. Recovery can be switched off for debugging
// sessions that want panics to crash loudly with a full trace.
func GoWrapper(f func(), logger logrus.FieldLogger) {
	go func() {
		defer func() {
			if !entcfg.Enabled(os.Getenv("DISABLE_RECOVERY_ON_PANIC")) {
				if r := recover(); r != nil {
					logger.Errorf("Recovered from panic: %v", r)
					debug.PrintStack()
				}
			}
		}()
		f()
	}()
}
