// Package api defines wire-format types and converters for the HTTP API
// layer. It translates entity results and dispatch errors into
// transport-friendly DTOs so callers never couple to internal types.
//
// DTOs use camelCase JSON tags. Structured task data is passed through as the
// decoded JSON value, with numbers kept as json.Number so they re-encode
// unchanged. Dispatch errors keep their human-readable message and expose the
// error kind, provider and upstream status alongside it.
package api
