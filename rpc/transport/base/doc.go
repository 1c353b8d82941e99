// Package base implements transport.INetwork independent of the specific
// network protocol (TCP, Unix sockets, WebSocket, in-memory pipes). Protocol
// packages only contribute an IConnector that dials and listens.
//
// Key Components:
//
//   - IConnector/IListener/IFrameConn: Interfaces for protocol-specific operations
//     that allow extending the base network with different protocols. Stream
//     protocols reuse NewStreamConn, which frames a net.Conn.
//
//   - network: keeps one connection per remote node address. Each connection
//     starts with a hello frame carrying the node address, whether it is a
//     server and its advertised endpoint. The dialer writes its hello first,
//     the acceptor reads first, so the handshake also works on synchronous pipes.
//     Duplicate connections and connections to self are closed after the handshake.
//
//   - peerConn: one reader and one writer goroutine per connection with a
//     bounded outbound queue. Sends never block; a full queue drops the message.
//
// Frames:
//
//	Every frame is a 1 byte kind followed by a 4 byte big endian length and the
//	payload. net.Buffers combines header and payload into a single write.
//
// Reconnects:
//
//	Dropped outbound connections are re-dialed with exponential backoff from
//	github.com/cenkalti/backoff/v4, up to Config.MaxReconnects attempts.
//
// Thread Safety:
//
//	All public methods are thread-safe. Callbacks must be registered before
//	Listen or Connect is called.
package base
