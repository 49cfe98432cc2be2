// Package agent wires the host adapters, the handshake, the router and the
// delivery worker together and runs the dispatch loop that owns them.
package agent
