// Package analysis is the HTTP client for the external media analysis
// pipeline that enriches queued items.
//
// # Endpoints
//
//	GET  {endpoint}/items/{id}          item lookup
//	POST {endpoint}/items/{id}/analyze  run analysis, returns the result
//	PUT  {endpoint}/items/{id}/status   record item status and error text
//	GET  {endpoint}/health              liveness
//
// Requests carry the configured API key as a bearer token.
//
// # Errors
//
// Failures are tagged with the services error markers: 404 maps to
// services.ErrNotFound, 400/422 to ErrValidation, 401/403 to
// ErrConfiguration, timeouts to ErrTimeout and everything else to
// ErrExternalService. The queue worker stores the rendered message as the
// entry's failure reason.
//
// # Retry Behaviour
//
// HTTP 408/429/5xx and network timeouts are retried with exponential
// backoff (base 1s, max 10s, 3 attempts by default). Context cancellation
// aborts retries immediately.
package analysis
