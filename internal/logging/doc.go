// Package logging assembles structured slog loggers for sleeve.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers that tag log lines with the build ID, artifact kind
// and content key carried on the context. A no-op logger is provided for tests
// and wiring code that runs before configuration is loaded.
package logging
