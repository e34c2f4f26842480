// Package llm provides a chat-completions client for OpenAI-compatible
// endpoints (OpenAI itself and OpenRouter).
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Generate: send system/user prompts and return the plain-text reply.
// Client.HealthCheck: verify the API key and model answer at all.
//
// # Errors
//
// The client performs exactly one request per call. Failures are tagged with
// services.ErrService; HTTP 408/429/5xx, network timeouts and empty replies
// are additionally marked transient so services.Retry can back off and try
// again. A Retry-After header on a throttled response is exposed through the
// services.RetryAfterer interface.
package llm
