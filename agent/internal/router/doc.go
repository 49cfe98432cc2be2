// Package router maintains the device state snapshot.
//
// events.go maps host event names onto the Event enumeration; names that are
// not in the table are ignored.
//
// router.go applies each recognised event to the snapshot, then passes it
// through the report gate: an unverified agent runs the handshake first and
// drops the report if that fails. Verified reports are handed to the
// delivery worker as value copies.
//
// The Router is owned by the agent's dispatch goroutine and is not safe for
// concurrent use.
package router
