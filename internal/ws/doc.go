// Package ws provides the connection registry and WebSocket handling for
// monitored sessions.
//
// The package implements:
//   - Client: a WebSocket connection with a bounded send queue and a single writer
//   - Hub: the connection slot of one child (one child channel, many caretakers)
//   - HubManager: the registry of slots, with join/leave and the two delivery
//     primitives, SendToChild and BroadcastToCaretakers
//   - Handler: upgrades connections, runs the read/write pumps and routes
//     inbound messages
//
// Delivery never blocks on a peer. A send that fails because the peer is gone
// or cannot keep up is treated as that peer disconnecting: a caretaker is
// pruned from its slot, a child channel is cleared. Other peers are unaffected.
package ws
