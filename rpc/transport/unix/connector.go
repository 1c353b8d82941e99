package unix

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/ValentinKolb/pKV/rpc/transport/base"
)

// connector implements the IConnector interface for Unix sockets
type connector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "unix"
}

func (c *connector) Dial(ctx context.Context, socketPath string) (base.IFrameConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	return base.NewStreamConn(conn), nil
}

func (c *connector) Listen(socketPath string) (base.IListener, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %w", err)
	}
	return base.NewStreamListener(listener), nil
}

// --------------------------------------------------------------------------
// Network Factory Method
// --------------------------------------------------------------------------

// NewConnector creates the Unix socket connector
func NewConnector() base.IConnector {
	return &connector{}
}

// NewNetwork creates a network over Unix sockets
func NewNetwork(config transport.Config) transport.INetwork {
	return base.NewNetwork(NewConnector(), config)
}
