// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the kernel's structured logging defaults.
//
// Every component in this module logs through log/slog; this package
// only fixes the level parsing and default handler so that callers who
// never configure a logger still get sane output on stderr.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	current *slog.Logger
)

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown values default to warn.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Init installs a text-handler logger at the given level as the package
// default. Safe to call more than once (e.g. from tests).
func Init(level slog.Level, output *os.File) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String(slog.LevelKey, "WARN")
			}
			return a
		},
	}
	current = slog.New(slog.NewTextHandler(output, opts))
	return current
}

// Default returns the package default logger, initializing it lazily at
// warn level on stderr if no caller has configured one yet.
func Default() *slog.Logger {
	mu.Lock()
	l := current
	mu.Unlock()
	if l != nil {
		return l
	}
	return Init(slog.LevelWarn, os.Stderr)
}

// With returns a logger scoped to a component name, the convention every
// subsystem in this module follows (event router, message store, tool
// executor, mode manager, kernel).
func With(component string) *slog.Logger {
	return Default().With("component", component)
}
