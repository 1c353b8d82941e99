// Package tcp implements the TCP socket connector of the network adapter.
// Framing, handshakes, queues and reconnects come from the base package; this
// package only dials, listens and tunes sockets (no delay, keep-alive).
package tcp
