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

// Package config holds tiny env parsing helpers shared by packages that
// must not depend on the full configuration layer.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

func Enabled(value string) bool {
	switch strings.ToLower(value) {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}

// DurationFromEnv parses key as a time.Duration, falling back when the
// variable is unset or unparsable.
func DurationFromEnv(key string, fallback time.Duration) time.Duration {
	opt := os.Getenv(key)
	if opt == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(opt)
	if err != nil {
		fmt.Printf("Invalid %s value: %s, using default %s\n", key, opt, fallback)
		return fallback
	}
	return parsed
}

// IntFromEnv parses key as an int, falling back when the variable is
// unset or unparsable.
func IntFromEnv(key string, fallback int) int {
	opt := os.Getenv(key)
	if opt == "" {
		return fallback
	}
	var parsed int
	if _, err := fmt.Sscanf(opt, "%d", &parsed); err != nil {
		fmt.Printf("Invalid %s value: %s, using default %d\n", key, opt, fallback)
		return fallback
	}
	return parsed
}
