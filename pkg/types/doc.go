// Package types defines the device snapshot shared by the agent's router and
// delivery worker. DeviceState is also the JSON body posted to the Volta
// monitoring service, so field tags follow the service's wire names.
//
// DeviceState holds only value fields (no maps, slices or pointers): assigning
// it copies it completely, which is how the router hands an immutable snapshot
// to a detached delivery goroutine.
package types
