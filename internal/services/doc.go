// Package services defines shared utilities consumed by the dispatcher, the
// entity layer, and the OpenRouter transport.
//
// Key responsibilities:
//   - Context helpers that stamp entity IDs, conversation IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent API statuses.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability) stays uniform across the bridge.
package services
