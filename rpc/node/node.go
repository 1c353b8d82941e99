package node

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/pKV/lib/dedup"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/lib/listener"
	"github.com/ValentinKolb/pKV/lib/store"
	"github.com/ValentinKolb/pKV/lib/verify"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/ValentinKolb/pKV/rpc/peers"
	"github.com/ValentinKolb/pKV/rpc/serializer"
	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/benbjohnson/clock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("node")

// inboxSize bounds the number of envelopes waiting for the event loop
const inboxSize = 1024

// Events emitted on the node bus
const (
	EventPut              = "put"
	EventPeerConnected    = "peer:connected"
	EventPeerDisconnected = "peer:disconnected"
)

// Event is passed to handlers registered with On. Entry is set for put events,
// Peer for connection events.
type Event struct {
	Key   string
	Entry *entry.Entry
	Peer  string
}

// inbound is one unit of work for the event loop. Local submissions carry a
// decoded envelope and a channel receiving the verification result.
type inbound struct {
	data  []byte
	env   *common.Envelope
	from  string
	local bool
	done  chan verify.Result
}

// Node is a single participant of the network. Servers persist and relay every
// verified entry, clients only persist what they read or write themselves.
//
// All inbound envelopes and local writes pass through one event loop, so the
// order in which a node verifies, relays and persists entries is well defined.
// The public API is safe for concurrent use.
type Node struct {
	config     common.NodeConfig
	network    transport.INetwork
	store      store.IStore
	suite      identity.ISuite
	serializer serializer.IEnvelopeSerializer
	clock      clock.Clock
	nodeKey    identity.IIdentity

	verifier *verify.Verifier
	registry *peers.Registry
	inDedup  *dedup.Deduplicator
	outDedup *dedup.Deduplicator
	metrics  *nodeMetrics

	keyListeners  *listener.KeyListeners[*entry.Record]
	subscriptions *listener.KeyListeners[*entry.Record]
	idListeners   *listener.IDListeners[*common.Envelope]
	bus           *listener.Bus[Event]

	subsByPeer  *xsync.MapOf[string, []uint64]
	greeted     *xsync.MapOf[string, struct{}]
	queries     *xsync.MapOf[string, *queryCollector]
	queryRoutes *xsync.MapOf[string, string]
	calls       *xsync.MapOf[string, chan *common.Envelope]
	functions   *xsync.MapOf[string, Function]

	userMu   sync.RWMutex
	user     identity.IIdentity
	username string

	storeMu   sync.Mutex
	lastStamp atomic.Int64

	inbox   chan inbound
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started atomic.Bool
	closed  atomic.Bool
}

// Option configures optional node dependencies
type Option func(*Node)

// WithClock replaces the wall clock, used by tests
func WithClock(c clock.Clock) Option {
	return func(n *Node) { n.clock = c }
}

// WithSerializer replaces the serializer selected by the config
func WithSerializer(s serializer.IEnvelopeSerializer) Option {
	return func(n *Node) { n.serializer = s }
}

// New creates a node on top of network and st. nodeKey signs the peer record
// and must belong to the address the network announces in handshakes.
// The node registers its handlers on the network but does not listen or
// connect before Start is called.
func New(config common.NodeConfig, nodeKey identity.IIdentity, network transport.INetwork, st store.IStore, suite identity.ISuite, opts ...Option) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if network.GetClientAddress() != nodeKey.Address() {
		return nil, fmt.Errorf("network address %s does not match node key %s", network.GetClientAddress(), nodeKey.Address())
	}

	n := &Node{
		config:      config,
		network:     network,
		store:       st,
		suite:       suite,
		nodeKey:     nodeKey,
		clock:       clock.New(),
		subsByPeer:  xsync.NewMapOf[string, []uint64](),
		greeted:     xsync.NewMapOf[string, struct{}](),
		queries:     xsync.NewMapOf[string, *queryCollector](),
		queryRoutes: xsync.NewMapOf[string, string](),
		calls:       xsync.NewMapOf[string, chan *common.Envelope](),
		functions:   xsync.NewMapOf[string, Function](),
		idListeners: listener.NewIDListeners[*common.Envelope](),
		bus:         listener.NewBus[Event](),
		inbox:       make(chan inbound, inboxSize),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.serializer == nil {
		s, err := serializer.FromName(config.Serializer)
		if err != nil {
			return nil, err
		}
		n.serializer = s
	}

	n.verifier = verify.New(suite, st, verify.WithClock(n.clock), verify.WithClockSkew(config.ClockSkew))
	n.registry = peers.NewRegistry(config.Topic, n.nodeKey, suite, n.clock)
	n.inDedup = dedup.New(config.DedupMaxEntries, config.DedupMaxAge)
	n.outDedup = dedup.New(config.DedupMaxEntries, config.DedupMaxAge)
	n.keyListeners = listener.NewKeyListeners[*entry.Record](n.clock, config.DebounceWindow)
	n.subscriptions = listener.NewKeyListeners[*entry.Record](n.clock, 0)
	n.metrics = newNodeMetrics(func() int { return len(n.network.Peers()) })

	// the loop context is fixed before any goroutine can read it
	ctx, cancel := context.WithCancel(context.Background())
	n.group, n.ctx = errgroup.WithContext(ctx)
	n.cancel = cancel

	network.RegisterHandler(n.receive)
	network.OnConnect(n.onConnect)
	network.OnDisconnect(n.onDisconnect)

	return n, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start runs the event loop, starts listening (servers only) and dials the
// bootstrap peers. Failing to reach a bootstrap peer is logged, not fatal.
func (n *Node) Start(ctx context.Context) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !n.started.CompareAndSwap(false, true) {
		return fmt.Errorf("node already started")
	}

	n.group.Go(n.loop)

	if n.config.IsServer() {
		if err := n.network.Listen(ctx, n.config.Endpoint); err != nil {
			n.cancel()
			return fmt.Errorf("failed to listen on %s: %w", n.config.Endpoint, err)
		}
		Logger.Infof("Listening on %s", n.network.Endpoint())
	}

	var dials errgroup.Group
	for _, endpoint := range n.config.Bootstrap {
		endpoint := endpoint
		dials.Go(func() error {
			if err := n.network.Connect(ctx, endpoint); err != nil {
				Logger.Warningf("Failed to connect to bootstrap peer %s: %v", endpoint, err)
			}
			return nil
		})
	}
	_ = dials.Wait()

	Logger.Infof("Node %s started in %s mode", n.nodeKey.Address(), n.config.Mode)
	return nil
}

// Wait blocks until the node is closed
func (n *Node) Wait() error {
	if !n.started.Load() {
		<-n.ctx.Done()
		return nil
	}
	return n.group.Wait()
}

// Close disconnects all peers and stops the event loop. The store is not closed.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	n.cancel()
	err := n.network.Close()
	if gerr := n.group.Wait(); gerr != nil && err == nil {
		err = gerr
	}
	n.registry.Close()
	Logger.Infof("Node %s closed", n.nodeKey.Address())
	return err
}

// Connect dials a peer by endpoint
func (n *Node) Connect(ctx context.Context, endpoint string) error {
	return n.network.Connect(ctx, endpoint)
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// NodeAddress returns the address of the node key
func (n *Node) NodeAddress() string {
	return n.nodeKey.Address()
}

// IsServer reports whether the node runs in server mode
func (n *Node) IsServer() bool {
	return n.config.IsServer()
}

// Config returns the node configuration
func (n *Node) Config() common.NodeConfig {
	return n.config
}

// Peers returns the verified server peers known to the node
func (n *Node) Peers() []common.Peer {
	return n.registry.List()
}

// Connections returns the currently connected peers
func (n *Node) Connections() []transport.PeerInfo {
	return n.network.Peers()
}

// Rates returns the inbound message rate per connected peer
func (n *Node) Rates() map[string]peers.Rate {
	return n.registry.Rates()
}

// On subscribes handler to a node event and returns a handle for Off
func (n *Node) On(event string, handler func(Event)) uint64 {
	return n.bus.On(event, handler)
}

// Off removes an event handler
func (n *Node) Off(event string, handle uint64) bool {
	return n.bus.Off(event, handle)
}

// RegisterVerificator adds a predicate every entry below prefix has to pass
func (n *Node) RegisterVerificator(prefix string, p verify.Predicate) uint64 {
	return n.verifier.Register(prefix, p)
}

// UnregisterVerificator removes a predicate added with RegisterVerificator
func (n *Node) UnregisterVerificator(handle uint64) bool {
	return n.verifier.Unregister(handle)
}

// --------------------------------------------------------------------------
// Event loop
// --------------------------------------------------------------------------

// receive is the network handler. It blocks while the inbox is full so a slow
// node applies back pressure to its peers.
func (n *Node) receive(data []byte, from string) {
	select {
	case n.inbox <- inbound{data: data, from: from}:
	case <-n.ctx.Done():
	}
}

// submit hands a locally created envelope to the event loop and waits for the result
func (n *Node) submit(ctx context.Context, env *common.Envelope) (verify.Result, error) {
	in := inbound{env: env, from: n.nodeKey.Address(), local: true, done: make(chan verify.Result, 1)}
	select {
	case n.inbox <- in:
	case <-ctx.Done():
		return verify.InvalidVerification, ctx.Err()
	case <-n.ctx.Done():
		return verify.InvalidVerification, ErrClosed
	}
	select {
	case r := <-in.done:
		return r, nil
	case <-ctx.Done():
		return verify.InvalidVerification, ctx.Err()
	case <-n.ctx.Done():
		return verify.InvalidVerification, ErrClosed
	}
}

func (n *Node) loop() error {
	for {
		select {
		case <-n.ctx.Done():
			return nil
		case in := <-n.inbox:
			n.dispatch(in)
		}
	}
}

// dispatch decodes, deduplicates and routes one envelope
func (n *Node) dispatch(in inbound) {
	env := in.env
	if !in.local {
		n.metrics.received.Inc()
		n.registry.Mark(in.from, 1)
		env = &common.Envelope{}
		if err := n.serializer.Deserialize(in.data, env); err != nil {
			n.metrics.decodeErrors.Inc()
			Logger.Debugf("Dropping undecodable envelope from %s: %v", in.from, err)
			return
		}
	}

	if n.inDedup.Seen(dedupKey(env)) {
		n.metrics.duplicates.Inc()
		if in.done != nil {
			in.done <- verify.Verified
		}
		return
	}
	n.metrics.handled(env.MsgType)

	result := verify.Verified
	switch env.MsgType {
	case common.MsgTPing:
		n.handlePing(env, in.from)
	case common.MsgTPong:
		n.handlePong(env, in.from)
	case common.MsgTGet, common.MsgTCrdtGet:
		n.handleGet(env, in.from)
	case common.MsgTPut:
		result = n.handlePut(env, in.from, in.local)
	case common.MsgTCrdtPut:
		result = n.handleCrdtPut(env, in.from, in.local)
	case common.MsgTSubscribe:
		n.handleSubscribe(env, in.from)
	case common.MsgTQuery:
		n.handleQuery(env, in.from)
	case common.MsgTQueryAck:
		n.handleQueryAck(env)
	case common.MsgTFunction:
		n.handleFunction(env, in.from)
	case common.MsgTFunctionReturn:
		n.handleFunctionReturn(env)
	default:
		Logger.Debugf("Dropping envelope of unknown type %d from %s", env.MsgType, in.from)
	}

	if in.done != nil {
		in.done <- result
	}
}

// dedupKey identifies an envelope. Replies share the id of their request and are
// told apart by their origin.
func dedupKey(env *common.Envelope) string {
	key := env.MsgType.String() + "|" + env.ID
	if env.MsgType.IsReply() {
		key += "|" + env.Origin
	}
	return key
}

// --------------------------------------------------------------------------
// Connection callbacks
// --------------------------------------------------------------------------

func (n *Node) onConnect(address string) {
	self, err := n.selfRecord()
	if err != nil {
		Logger.Errorf("Failed to create peer record: %v", err)
		return
	}
	if err := n.send(address, common.NewPing(self)); err != nil {
		Logger.Warningf("Failed to ping %s: %v", address, err)
	}
}

func (n *Node) onDisconnect(address string) {
	n.registry.Forget(address)
	n.dropSubscriptions(address)
	if _, ok := n.greeted.LoadAndDelete(address); ok {
		n.bus.Emit(EventPeerDisconnected, Event{Peer: address})
	}
	Logger.Debugf("Peer %s disconnected", address)
}

// dropSubscriptions removes the subscriptions held by a peer
func (n *Node) dropSubscriptions(address string) {
	if handles, ok := n.subsByPeer.LoadAndDelete(address); ok {
		for _, h := range handles {
			n.subscriptions.Remove(h)
		}
	}
}

// selfRecord returns the signed peer record announced to peers
func (n *Node) selfRecord() (common.Peer, error) {
	host, port := splitEndpoint(n.network.Endpoint())
	return n.registry.Self(host, port, n.config.IsServer())
}

func splitEndpoint(endpoint string) (string, int) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return endpoint, 0
	}
	return host, port
}
