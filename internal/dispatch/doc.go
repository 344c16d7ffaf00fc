// Package dispatch sends AI task and conversation requests to OpenRouter.
//
// A dispatch resolves image attachments into inline data URIs, builds a single
// chat completion request, retries provider capacity (503) and rate limit (429)
// responses on a fixed delay table, and interprets the reply as free text or
// as a JSON value when an output schema was supplied. Terminal failures are
// returned as *Error values whose Message is fit for end users and whose Kind
// is matchable through errors.Is against the package sentinels.
package dispatch
