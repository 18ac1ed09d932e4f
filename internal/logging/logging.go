// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package logging provides structured logging shared by every component of
// the swarm, in the manner of a conditionally-verbose application logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the package-global logger. Components derive scoped loggers from it
// with With().
var Log zerolog.Logger

func init() {
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// SetVerbose raises the global level to debug when enabled, wired to the
// -l command line flag of the coordinator and worker binaries.
func SetVerbose(enabled bool) {
	if enabled {
		Log = Log.Level(zerolog.DebugLevel)
	} else {
		Log = Log.Level(zerolog.InfoLevel)
	}
}

// Component returns a logger carrying a role and short id, e.g. the first
// segment of a UUID, as a structured field.
func Component(role, id string) zerolog.Logger {
	return Log.With().Str("role", role).Str("id", ShortID(id)).Logger()
}

// ShortID returns the first dash-delimited segment of a UUID-shaped string,
// or the whole string if it carries no dash. Used to keep log lines short.
func ShortID(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			return id[:i]
		}
	}
	return id
}
