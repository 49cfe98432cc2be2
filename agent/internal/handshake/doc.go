// Package handshake verifies the agent against the Volta service and derives
// the device identity that goes with a verified configuration.
package handshake
