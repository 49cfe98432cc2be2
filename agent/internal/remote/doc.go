// Package remote is the HTTP client for the Volta monitoring service and the
// home of the agent's error taxonomy.
//
// Client.Verify calls GET /api/printer/verify and Client.Monitor calls
// POST /api/printer/monitor. Both authenticate with "Authorization: Bearer
// <token>" injected by a shared round tripper, which also sets the agent's
// User-Agent.
//
// Errors are concrete types for use with errors.As:
//   - ConfigurationError: missing or unusable credential
//   - TransportError: the request never got a response
//   - ProtocolError: unexpected status or undecodable body
//   - ValidationError: 422, the service rejected the payload
//   - RateLimitError: 429, the service asked us to back off
//   - LookupError: a host collaborator could not be read
//
// IsPermanent reports whether a delivery error must not be retried.
package remote
