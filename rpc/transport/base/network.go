package base

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport")

var (
	errDuplicate = errors.New("already connected")
	errSelf      = errors.New("connection to self")
)

// hello is exchanged as the first frame of every connection
type hello struct {
	Address  string `json:"address"`
	Server   bool   `json:"server"`
	Endpoint string `json:"endpoint,omitempty"`
}

// network implements transport.INetwork on top of an IConnector.
// Every connection is owned by a peerConn with one reader and one writer goroutine.
type network struct {
	connector IConnector
	config    transport.Config

	mu           sync.RWMutex
	handler      transport.HandleFunc
	onConnect    []transport.PeerFunc
	onDisconnect []transport.PeerFunc
	listener     IListener
	advertise    string

	peers  *xsync.MapOf[string, *peerConn]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, ws, memory)
// -----------------------------------------------------------

// NewNetwork creates a network using the given connector
func NewNetwork(connector IConnector, config transport.Config) transport.INetwork {
	ctx, cancel := context.WithCancel(context.Background())
	config = config.WithDefaults()
	return &network{
		connector: connector,
		config:    config,
		advertise: config.Advertise,
		peers:     xsync.NewMapOf[string, *peerConn](),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.INetwork)
// --------------------------------------------------------------------------

func (n *network) RegisterHandler(handler transport.HandleFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
}

func (n *network) OnConnect(fn transport.PeerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onConnect = append(n.onConnect, fn)
}

func (n *network) OnDisconnect(fn transport.PeerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onDisconnect = append(n.onDisconnect, fn)
}

func (n *network) SendToAll(data []byte, crossServerOnly bool) int {
	sent := 0
	n.peers.Range(func(addr string, pc *peerConn) bool {
		if crossServerOnly && !pc.info.Server {
			return true
		}
		if err := pc.send(data); err != nil {
			Logger.Warningf("Dropping message to %s: %v", addr, err)
			return true
		}
		sent++
		return true
	})
	return sent
}

func (n *network) SendToClientID(address string, data []byte) error {
	if n.closed.Load() {
		return transport.ErrClosed
	}
	pc, ok := n.peers.Load(address)
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownPeer, address)
	}
	return pc.send(data)
}

func (n *network) IsConnected() bool {
	return n.peers.Size() > 0
}

func (n *network) IsServer() bool {
	return n.config.Server
}

func (n *network) GetClientAddress() string {
	return n.config.Address
}

func (n *network) Endpoint() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.advertise
}

func (n *network) Peers() []transport.PeerInfo {
	out := make([]transport.PeerInfo, 0, n.peers.Size())
	n.peers.Range(func(_ string, pc *peerConn) bool {
		out = append(out, pc.info)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (n *network) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	n.cancel()

	n.mu.RLock()
	listener := n.listener
	n.mu.RUnlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	n.peers.Range(func(_ string, pc *peerConn) bool {
		pc.close()
		return true
	})
	n.wg.Wait()
	Logger.Infof("Closed %s network of %s", n.connector.GetName(), n.config.Address)
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// localHello returns the hello frame of this node
func (n *network) localHello() ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return json.Marshal(hello{Address: n.config.Address, Server: n.config.Server, Endpoint: n.advertise})
}

// readHello reads and validates the hello frame of the remote node
func readHello(conn IFrameConn) (hello, error) {
	var h hello
	kind, data, err := conn.ReadFrame()
	if err != nil {
		return h, err
	}
	if kind != FrameHello {
		return h, fmt.Errorf("expected hello frame, got kind %d", kind)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("invalid hello: %w", err)
	}
	if h.Address == "" {
		return h, errors.New("hello without address")
	}
	return h, nil
}

// withTimeout runs fn and closes conn if it does not finish in time
func withTimeout(conn IFrameConn, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = conn.Close()
		<-done
		return errors.New("handshake timed out")
	}
}

// register adds a connection after a successful handshake and starts its goroutines
func (n *network) register(conn IFrameConn, remote hello, endpoint string, outbound bool) (*peerConn, error) {
	if remote.Address == n.config.Address {
		_ = conn.Close()
		return nil, errSelf
	}
	if n.closed.Load() {
		_ = conn.Close()
		return nil, transport.ErrClosed
	}

	if endpoint == "" {
		endpoint = remote.Endpoint
	}
	pc := newPeerConn(conn, transport.PeerInfo{
		Address:  remote.Address,
		Endpoint: endpoint,
		Server:   remote.Server,
		Outbound: outbound,
	}, n.config.QueueSize)

	if _, loaded := n.peers.LoadOrStore(remote.Address, pc); loaded {
		_ = conn.Close()
		return nil, errDuplicate
	}

	if n.closed.Load() {
		n.peers.Delete(remote.Address)
		_ = conn.Close()
		return nil, transport.ErrClosed
	}

	n.mu.RLock()
	handler := n.handler
	callbacks := append([]transport.PeerFunc(nil), n.onConnect...)
	n.mu.RUnlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pc.writeLoop()
	}()

	Logger.Infof("Connected to %s (server=%t, outbound=%t) via %s", remote.Address, remote.Server, outbound, n.connector.GetName())
	for _, fn := range callbacks {
		fn(remote.Address)
	}

	// the reader starts after the connect callbacks so that a disconnect is never reported first
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pc.readLoop(handler)
		n.remove(pc)
	}()
	return pc, nil
}

// remove drops a closed connection, fires the disconnect callbacks and
// schedules a reconnect for outbound connections
func (n *network) remove(pc *peerConn) {
	pc.close()

	removed := false
	n.peers.Compute(pc.info.Address, func(old *peerConn, loaded bool) (*peerConn, bool) {
		if loaded && old == pc {
			removed = true
			return nil, true
		}
		return old, !loaded
	})
	if !removed {
		return
	}

	Logger.Infof("Disconnected from %s", pc.info.Address)
	n.mu.RLock()
	callbacks := append([]transport.PeerFunc(nil), n.onDisconnect...)
	n.mu.RUnlock()
	for _, fn := range callbacks {
		fn(pc.info.Address)
	}

	if pc.info.Outbound && !n.closed.Load() && n.config.MaxReconnects > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.reconnect(pc.info.Endpoint)
		}()
	}
}
