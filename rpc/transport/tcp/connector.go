package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/ValentinKolb/pKV/rpc/transport/base"
)

const keepAlivePeriod = 30 * time.Second

// connector implements the IConnector interface for TCP sockets
type connector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "tcp"
}

func (c *connector) Dial(ctx context.Context, endpoint string) (base.IFrameConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if err := upgradeConnection(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return base.NewStreamConn(conn), nil
}

func (c *connector) Listen(endpoint string) (base.IListener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return &tcpListener{Listener: listener}, nil
}

// tcpListener upgrades accepted connections before framing them
type tcpListener struct {
	net.Listener
}

func (l *tcpListener) Accept() (base.IFrameConn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := upgradeConnection(conn); err != nil {
		base.Logger.Warningf("Failed to tune connection from %s: %v", conn.RemoteAddr(), err)
	}
	return base.NewStreamConn(conn), nil
}

func (l *tcpListener) Addr() string {
	return l.Listener.Addr().String()
}

// upgradeConnection applies the socket options used for gossip traffic:
// small frames sent immediately and dead peers detected by keep-alive
func upgradeConnection(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return err
	}
	return tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
}

// --------------------------------------------------------------------------
// Network Factory Method
// --------------------------------------------------------------------------

// NewConnector creates the TCP connector
func NewConnector() base.IConnector {
	return &connector{}
}

// NewNetwork creates a network over TCP sockets
func NewNetwork(config transport.Config) transport.INetwork {
	return base.NewNetwork(NewConnector(), config)
}
