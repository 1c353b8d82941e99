package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/cenkalti/backoff/v4"
)

// --------------------------------------------------------------------------
// Outbound connections
// --------------------------------------------------------------------------

func (n *network) Connect(ctx context.Context, endpoint string) error {
	if n.closed.Load() {
		return transport.ErrClosed
	}
	err := n.dial(ctx, endpoint)
	if errors.Is(err, errDuplicate) {
		Logger.Debugf("Already connected to the node at %s", endpoint)
		return nil
	}
	return err
}

// dial opens a connection and runs the handshake. The dialer writes its hello
// first and then reads the remote one.
func (n *network) dial(ctx context.Context, endpoint string) error {
	local, err := n.localHello()
	if err != nil {
		return err
	}

	conn, err := n.connector.Dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	var remote hello
	err = withTimeout(conn, n.config.HandshakeTimeout, func() error {
		if err := conn.WriteFrame(FrameHello, local); err != nil {
			return err
		}
		var err error
		remote, err = readHello(conn)
		return err
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("handshake with %s failed: %w", endpoint, err)
	}

	_, err = n.register(conn, remote, endpoint, true)
	return err
}

// reconnect re-establishes a dropped outbound connection with exponential backoff
func (n *network) reconnect(endpoint string) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), n.config.MaxReconnects),
		n.ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := n.dial(n.ctx, endpoint)
		switch {
		case err == nil, errors.Is(err, errDuplicate):
			return nil
		case errors.Is(err, errSelf), errors.Is(err, transport.ErrClosed):
			return backoff.Permanent(err)
		}
		Logger.Debugf("Reconnect attempt %d to %s failed: %v", attempt, endpoint, err)
		return err
	}, policy)

	if err != nil && !n.closed.Load() {
		Logger.Warningf("Giving up on %s after %d attempts: %v", endpoint, attempt, err)
	}
}
