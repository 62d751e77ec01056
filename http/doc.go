// Package http provides the HTTP transport the retry executor drives.
//
// A Transport performs exactly one round trip per Do call and never retries:
// attempts, backoff and credential refresh belong to the executor. A non-2xx
// status is returned as a normal reply, since classification and not the
// transport decides whether it is a failure.
//
// Features
//   - Fluent Builder with default headers, user agent and timeout.
//   - Request and response interceptors.
//   - X-Request-ID and W3C traceparent propagation.
//   - Optional client-side rate limiting (golang.org/x/time/rate).
//   - OpenTelemetry spans via otelhttp on the default round tripper.
//
// Errors
//   - Transport failures are returned as ClientError values that wrap the
//     underlying cause, so errors.Is and errors.As still reach net and
//     context errors.
//   - Interceptor and validation errors are never worth retrying and
//     classify as fatal.
package http
