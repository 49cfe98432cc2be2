// Package identity derives the opaque device identifier sent with every
// report to the Volta monitoring service.
//
// The identifier is the address of this host, "<snake_case_profile>@<ip>:<port>",
// encrypted with AES in 8-bit CFB mode under the API token, using the first
// block of the token as IV. The IV is appended after a "::" separator and the
// whole value is URL-safe base64 encoded. There is no nonce, so the same
// (token, address) pair always yields the same identifier, which is what lets
// the service recognise repeat reports from one device.
//
// LocalIPv4 discovers the outbound interface address without sending any
// traffic and falls back to loopback.
package identity
