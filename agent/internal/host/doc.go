// Package host adapts the printer host (an OctoPrint-style server) to the
// collaborator interfaces the router consumes.
//
//   - ProfileSource: the active printer profile (name, model)
//   - Controller: connectivity state, heater temperatures, job progress
//   - FileStore: per-file analysis metadata (filament length)
//
// APIClient implements all three over the host's REST API with an X-Api-Key
// header. MetricsController overlays temperatures and progress read from a
// Prometheus text exposition on top of another Controller.
//
// Feed subscribes to the host's push socket and turns frames into Events:
// lifecycle events pass through by name, and the periodic "current" frames
// become a PrintProgress event whenever the whole-percent completion changes.
// Feed reconnects with truncated exponential backoff (1s→60s, ±25% jitter)
// and emits a Startup event after every successful connect.
package host
