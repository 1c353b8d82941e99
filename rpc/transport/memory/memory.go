package memory

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/ValentinKolb/pKV/rpc/transport/base"
	"github.com/puzpuzpuz/xsync/v3"
)

// Hub connects in-process networks. Endpoints are arbitrary names that are
// unique within a hub.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub struct {
	listeners *xsync.MapOf[string, *listener]
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{listeners: xsync.NewMapOf[string, *listener]()}
}

// listener implements base.IListener for one hub endpoint
type listener struct {
	hub      *Hub
	endpoint string
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
}

func (l *listener) Accept() (base.IFrameConn, error) {
	select {
	case conn := <-l.conns:
		return base.NewStreamConn(conn), nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.hub.listeners.Compute(l.endpoint, func(old *listener, loaded bool) (*listener, bool) {
			return old, !loaded || old == l
		})
	})
	return nil
}

func (l *listener) Addr() string {
	return l.endpoint
}

// connector implements the IConnector interface on a hub
type connector struct {
	hub *Hub
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "memory"
}

func (c *connector) Dial(ctx context.Context, endpoint string) (base.IFrameConn, error) {
	l, ok := c.hub.listeners.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("no listener on %s", endpoint)
	}

	local, remote := net.Pipe()
	select {
	case l.conns <- remote:
		return base.NewStreamConn(local), nil
	case <-l.done:
	case <-ctx.Done():
	}
	_ = local.Close()
	_ = remote.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("listener on %s closed", endpoint)
}

func (c *connector) Listen(endpoint string) (base.IListener, error) {
	l := &listener{
		hub:      c.hub,
		endpoint: endpoint,
		conns:    make(chan net.Conn),
		done:     make(chan struct{}),
	}
	if _, loaded := c.hub.listeners.LoadOrStore(endpoint, l); loaded {
		return nil, fmt.Errorf("endpoint %s already in use", endpoint)
	}
	return l, nil
}

// --------------------------------------------------------------------------
// Network Factory Method
// --------------------------------------------------------------------------

// NewConnector creates a connector on hub
func NewConnector(hub *Hub) base.IConnector {
	return &connector{hub: hub}
}

// NewNetwork creates a network on hub
func NewNetwork(hub *Hub, config transport.Config) transport.INetwork {
	return base.NewNetwork(NewConnector(hub), config)
}
