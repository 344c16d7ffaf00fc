// Package openrouter provides the transport client for the OpenRouter REST API.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.ChatCompletion: send one chat completion request (text and image parts).
// Client.ListModels: fetch the model catalog, including input modalities.
// Client.CheckKey: verify the API key.
//
// # Errors
//
// Non-2xx responses surface as *StatusError with the parsed upstream error
// object ({error: {message, code, metadata: {provider_name, raw}}}) and any
// Retry-After hint. Network failures surface as *TransportError. The client
// never retries; the dispatch package owns the retry policy.
package openrouter
