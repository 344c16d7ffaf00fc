// Package logging assembles structured slog loggers and formatting helpers used
// across orbridge.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so dispatch code can tag log
// lines with entity, conversation, and correlation IDs. WARN and ERROR helpers
// enforce event_type and error_hint fields. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
