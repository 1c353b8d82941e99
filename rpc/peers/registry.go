package peers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/benbjohnson/clock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	metrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("peers")

var (
	// ErrTopicMismatch is returned for peers of another network
	ErrTopicMismatch = errors.New("peer announces another topic")
	// ErrInvalidPeer is returned for peer records without address
	ErrInvalidPeer = errors.New("peer record is incomplete")
	// ErrInvalidPeerSignature is returned if the record was not signed by its address
	ErrInvalidPeerSignature = errors.New("peer signature is invalid")
)

// Registry tracks the known server peers of a node, keyed by address.
// Records are only added after their signature was verified. For every
// connected peer a meter tracks the rate of inbound messages.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	topic    string
	node     identity.IIdentity
	verifier identity.IVerifier
	clock    clock.Clock

	known  *xsync.MapOf[string, common.Peer]
	meters metrics.Registry
}

// NewRegistry creates an empty registry. node signs the local record, verifier
// checks remote ones. A nil clock uses the wall clock.
func NewRegistry(topic string, node identity.IIdentity, verifier identity.IVerifier, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		topic:    topic,
		node:     node,
		verifier: verifier,
		clock:    clk,
		known:    xsync.NewMapOf[string, common.Peer](),
		meters:   metrics.NewRegistry(),
	}
}

// Self returns the signed record of the local node
func (r *Registry) Self(host string, port int, server bool) (common.Peer, error) {
	p := common.Peer{
		Address:   r.node.Address(),
		Host:      host,
		Port:      port,
		Topic:     r.topic,
		Timestamp: r.clock.Now().UnixMilli(),
		Server:    server,
	}
	sig, err := r.node.Sign(p.Digest())
	if err != nil {
		return common.Peer{}, fmt.Errorf("failed to sign peer record: %w", err)
	}
	p.Signature = sig
	return p, nil
}

// Verify checks that p belongs to this network and was signed by its address
func (r *Registry) Verify(p common.Peer) error {
	if p.Address == "" || p.Signature == "" {
		return ErrInvalidPeer
	}
	if p.Topic != r.topic {
		return fmt.Errorf("%w: %q", ErrTopicMismatch, p.Topic)
	}
	if !r.verifier.Verify(p.Digest(), p.Signature, p.Address) {
		return ErrInvalidPeerSignature
	}
	return nil
}

// Known reports whether a peer with address is registered
func (r *Registry) Known(address string) bool {
	_, ok := r.known.Load(address)
	return ok
}

// Get returns the registered record of address
func (r *Registry) Get(address string) (common.Peer, bool) {
	return r.known.Load(address)
}

// Add registers p and reports whether it was new. Verify p first.
func (r *Registry) Add(p common.Peer) bool {
	_, loaded := r.known.LoadOrStore(p.Address, p)
	if !loaded {
		Logger.Debugf("Registered peer %s at %s", p.Address, p.Endpoint())
	}
	return !loaded
}

// Remove unregisters a peer and drops its meter
func (r *Registry) Remove(address string) bool {
	_, ok := r.known.LoadAndDelete(address)
	r.meters.Unregister(meterName(address))
	return ok
}

// List returns the registered peers sorted by address
func (r *Registry) List() []common.Peer {
	out := make([]common.Peer, 0, r.known.Size())
	r.known.Range(func(_ string, p common.Peer) bool {
		out = append(out, p)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Len returns the number of registered peers
func (r *Registry) Len() int {
	return r.known.Size()
}

// --------------------------------------------------------------------------
// Message rates
// --------------------------------------------------------------------------

// Mark counts n messages received from address
func (r *Registry) Mark(address string, n int64) {
	metrics.GetOrRegisterMeter(meterName(address), r.meters).Mark(n)
}

// Forget drops the meter of a disconnected peer without unregistering it
func (r *Registry) Forget(address string) {
	r.meters.Unregister(meterName(address))
}

// Rate is a snapshot of the message rate of a peer
type Rate struct {
	Count int64
	Rate1 float64
	Mean  float64
}

// Rates returns the message rates per peer address
func (r *Registry) Rates() map[string]Rate {
	out := make(map[string]Rate)
	r.meters.Each(func(name string, m interface{}) {
		meter, ok := m.(metrics.Meter)
		if !ok {
			return
		}
		snap := meter.Snapshot()
		out[name[len(meterPrefix):]] = Rate{Count: snap.Count(), Rate1: snap.Rate1(), Mean: snap.RateMean()}
	})
	return out
}

// Close stops all meters
func (r *Registry) Close() {
	r.meters.UnregisterAll()
}

const meterPrefix = "peer."

func meterName(address string) string {
	return meterPrefix + address
}
