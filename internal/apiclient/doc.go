// Package apiclient talks to a running orbridge daemon over its HTTP API.
// The CLI uses it for status and reload commands.
package apiclient
