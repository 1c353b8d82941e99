package base

import (
	"context"
	"net"
	"sync"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IFrameConn is a bidirectional connection that transfers whole frames
type IFrameConn interface {
	// WriteFrame writes one frame. It is safe for concurrent use.
	WriteFrame(kind uint8, data []byte) error
	// ReadFrame blocks until the next frame arrives
	ReadFrame() (kind uint8, data []byte, err error)
	// Close closes the connection and unblocks ReadFrame
	Close() error
	// RemoteAddr returns the address of the remote end, for logging
	RemoteAddr() string
}

// IListener accepts inbound frame connections
type IListener interface {
	// Accept blocks until a connection arrives or the listener is closed
	Accept() (IFrameConn, error)
	// Close stops the listener
	Close() error
	// Addr returns the bound address
	Addr() string
}

// IConnector defines the transport-specific operations (e.g. tcp, unix, ws)
type IConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
	// Dial opens a connection to endpoint
	Dial(ctx context.Context, endpoint string) (IFrameConn, error)
	// Listen binds endpoint
	Listen(endpoint string) (IListener, error)
}

// -----------------------------------------------------------
// Stream adapters (used by tcp, unix and memory)
// -----------------------------------------------------------

// NewStreamConn frames a byte stream connection
func NewStreamConn(conn net.Conn) IFrameConn {
	return &streamConn{conn: conn}
}

// streamConn implements IFrameConn over a net.Conn with length-prefixed frames
type streamConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (s *streamConn) WriteFrame(kind uint8, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, kind, data)
}

func (s *streamConn) ReadFrame() (uint8, []byte, error) {
	return readFrame(s.conn)
}

func (s *streamConn) Close() error {
	return s.conn.Close()
}

func (s *streamConn) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// NewStreamListener wraps a net.Listener so that accepted connections are framed
func NewStreamListener(l net.Listener) IListener {
	return &streamListener{l: l}
}

// streamListener implements IListener over a net.Listener
type streamListener struct {
	l net.Listener
}

func (s *streamListener) Accept() (IFrameConn, error) {
	conn, err := s.l.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn), nil
}

func (s *streamListener) Close() error {
	return s.l.Close()
}

func (s *streamListener) Addr() string {
	return s.l.Addr().String()
}
