package base

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ValentinKolb/pKV/rpc/transport"
)

// --------------------------------------------------------------------------
// Inbound connections
// --------------------------------------------------------------------------

func (n *network) Listen(ctx context.Context, endpoint string) error {
	if n.closed.Load() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	listener, err := n.connector.Listen(endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	n.mu.Lock()
	n.listener = listener
	if n.advertise == "" {
		n.advertise = listener.Addr()
	}
	n.mu.Unlock()

	Logger.Infof("Starting %s listener on %s", n.connector.GetName(), listener.Addr())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.acceptLoop(listener)
	}()
	return nil
}

// acceptLoop accepts connections until the listener is closed
func (n *network) acceptLoop(listener IListener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if n.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.accept(conn); err != nil {
				Logger.Debugf("Rejected connection from %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// accept runs the handshake of an inbound connection. The acceptor reads the
// remote hello first and answers with its own.
func (n *network) accept(conn IFrameConn) error {
	local, err := n.localHello()
	if err != nil {
		_ = conn.Close()
		return err
	}

	var remote hello
	err = withTimeout(conn, n.config.HandshakeTimeout, func() error {
		var err error
		if remote, err = readHello(conn); err != nil {
			return err
		}
		return conn.WriteFrame(FrameHello, local)
	})
	if err != nil {
		_ = conn.Close()
		return err
	}

	_, err = n.register(conn, remote, "", false)
	return err
}
