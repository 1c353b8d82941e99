package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownPeer is returned when sending to an address without a connection
	ErrUnknownPeer = errors.New("peer is not connected")
	// ErrClosed is returned after the network was closed
	ErrClosed = errors.New("network is closed")
	// ErrQueueFull is returned when the outbound queue of a peer is full
	ErrQueueFull = errors.New("outbound queue is full")
)

// --------------------------------------------------------------------------
// Network
// --------------------------------------------------------------------------

// HandleFunc is called for every inbound message with the address of the sending peer.
// It is called on the reader goroutine of the connection and must not block for long.
type HandleFunc func(data []byte, from string)

// PeerFunc is called when a peer connects or disconnects.
type PeerFunc func(address string)

// PeerInfo describes a live connection.
type PeerInfo struct {
	Address  string
	Endpoint string
	Server   bool
	Outbound bool
}

// INetwork is the network adapter of a node. Connections are identified by the
// address of the remote node, exchanged in a handshake when the connection opens.
// Callbacks must be registered before Listen or Connect is called.
type INetwork interface {
	// RegisterHandler sets the handler for inbound messages
	RegisterHandler(handler HandleFunc)
	// OnConnect registers a callback for new connections
	OnConnect(fn PeerFunc)
	// OnDisconnect registers a callback for closed connections
	OnDisconnect(fn PeerFunc)

	// Listen binds endpoint and accepts connections in the background
	Listen(ctx context.Context, endpoint string) error
	// Connect dials endpoint and completes the handshake. Dialed connections
	// are re-established with exponential backoff when they drop.
	Connect(ctx context.Context, endpoint string) error

	// SendToAll sends data to every connected peer (only servers if crossServerOnly)
	// and returns the number of peers it was queued for
	SendToAll(data []byte, crossServerOnly bool) int
	// SendToClientID sends data to the peer with the given address
	SendToClientID(address string, data []byte) error

	// IsConnected reports whether at least one peer is connected
	IsConnected() bool
	// IsServer reports whether this node runs in server mode
	IsServer() bool
	// GetClientAddress returns the address of this node
	GetClientAddress() string
	// Endpoint returns the advertised endpoint, empty before Listen
	Endpoint() string
	// Peers lists the live connections sorted by address
	Peers() []PeerInfo

	// Close closes all connections and stops reconnecting
	Close() error
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the settings shared by all network implementations.
type Config struct {
	// Address identifies this node in handshakes
	Address string
	// Server marks this node as a server in handshakes
	Server bool
	// Advertise is the endpoint announced to peers (defaults to the listen endpoint)
	Advertise string
	// QueueSize bounds the outbound queue per peer
	QueueSize int
	// MaxReconnects bounds reconnect attempts per dropped outbound connection (0 disables reconnects)
	MaxReconnects uint64
	// HandshakeTimeout bounds the handshake of a new connection
	HandshakeTimeout time.Duration
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	return c
}
