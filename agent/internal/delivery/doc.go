// Package delivery posts device snapshots to the Volta service.
//
// Each report becomes one detached goroutine that owns a value copy of the
// snapshot and retries transient failures a bounded number of times.
// Validation (422) and rate-limit (429) answers end the cycle at once.
package delivery
