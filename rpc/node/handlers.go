package node

import (
	"context"
	"encoding/json"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/lib/verify"
	"github.com/ValentinKolb/pKV/rpc/common"
)

// --------------------------------------------------------------------------
// Peer exchange
// --------------------------------------------------------------------------

func (n *Node) handlePing(env *common.Envelope, from string) {
	if !n.acceptPeer(env.Peer, from) {
		return
	}
	self, err := n.selfRecord()
	if err != nil {
		Logger.Errorf("Failed to create peer record: %v", err)
		return
	}
	if err := n.send(from, common.NewPong(env.ID, self, n.registry.List())); err != nil {
		Logger.Debugf("Failed to answer ping of %s: %v", from, err)
	}
	n.greet(from)
}

func (n *Node) handlePong(env *common.Envelope, from string) {
	if !n.acceptPeer(env.Peer, from) {
		return
	}
	n.greet(from)

	self := n.nodeKey.Address()
	for _, p := range env.Peers {
		if p.Address == self || !p.Server || n.registry.Known(p.Address) {
			continue
		}
		if err := n.registry.Verify(p); err != nil {
			Logger.Debugf("Ignoring peer %s announced by %s: %v", p.Address, from, err)
			continue
		}
		n.registry.Add(p)
		if n.config.AutoDial && p.Endpoint() != "" && !n.connected(p.Address) {
			go n.dial(p.Endpoint())
		}
	}
}

// acceptPeer verifies the record a peer announced for itself. Server records are
// kept in the registry.
func (n *Node) acceptPeer(p *common.Peer, from string) bool {
	if p == nil {
		Logger.Debugf("Dropping peer exchange without record from %s", from)
		return false
	}
	if p.Address != from {
		Logger.Warningf("Peer %s announced record of %s", from, p.Address)
		return false
	}
	if err := n.registry.Verify(*p); err != nil {
		Logger.Warningf("Rejecting peer record of %s: %v", from, err)
		return false
	}
	if p.Server {
		n.registry.Add(*p)
	}
	return true
}

// greet emits the connected event once per connection
func (n *Node) greet(address string) {
	if _, loaded := n.greeted.LoadOrStore(address, struct{}{}); !loaded {
		Logger.Infof("Connected to peer %s", address)
		n.bus.Emit(EventPeerConnected, Event{Peer: address})
	}
}

func (n *Node) dial(endpoint string) {
	ctx, cancel := context.WithTimeout(n.ctx, n.config.RequestTimeout)
	defer cancel()
	if err := n.network.Connect(ctx, endpoint); err != nil {
		Logger.Debugf("Failed to dial discovered peer %s: %v", endpoint, err)
	}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// handleGet answers get and crdtGet requests from the local store. Servers that
// miss the key ask the other servers and route the first answer back.
func (n *Node) handleGet(env *common.Envelope, from string) {
	rec, err := n.loadRecord(env.Key)
	if err != nil {
		Logger.Errorf("Failed to load %s: %v", env.Key, err)
		return
	}
	if rec != nil {
		if err := n.send(from, replyFor(env.ID, rec)); err != nil {
			Logger.Debugf("Failed to answer %s for %s: %v", env.MsgType, from, err)
		}
		return
	}

	if !n.config.IsServer() {
		return
	}
	if n.idListeners.Register(env.ID, func(reply *common.Envelope) {
		if err := n.send(from, reply); err != nil {
			Logger.Debugf("Failed to route reply %s to %s: %v", reply.ID, from, err)
		}
	}) {
		n.expire(env.ID)
	}
	n.relay(env, from)
}

// replyFor wraps rec in a put of the matching kind. CRDT replies carry all
// signed entries of the record.
func replyFor(id string, rec *entry.Record) *common.Envelope {
	if rec.Entry.CrdtType != crdt.TypeNone {
		return common.NewCrdtReply(id, rec)
	}
	return common.NewPut(id, &rec.Entry)
}

// expire cancels a pending id listener after the request timeout
func (n *Node) expire(id string) {
	n.clock.AfterFunc(n.config.RequestTimeout, func() {
		n.idListeners.Cancel(id)
	})
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func (n *Node) handlePut(env *common.Envelope, from string, local bool) verify.Result {
	e := env.Entry
	if e == nil || e.CrdtType != crdt.TypeNone {
		n.metrics.drop(verify.InvalidData)
		return verify.InvalidData
	}
	return n.apply(env, from, local, n.persistEntry)
}

func (n *Node) handleCrdtPut(env *common.Envelope, from string, local bool) verify.Result {
	e := env.Entry
	if e == nil || e.CrdtType == crdt.TypeNone {
		n.metrics.drop(verify.InvalidData)
		return verify.InvalidData
	}
	return n.apply(env, from, local, n.mergeEntry)
}

// apply verifies an entry, passes it on and stores it. Listeners waiting for the
// envelope id are notified once the store was updated.
//
// Key listeners receive the record that won against the stored one, even if the
// store did not change. Subscribers are only sent changes.
func (n *Node) apply(env *common.Envelope, from string, local bool, persist func(*entry.Entry) (*entry.Record, bool, error)) verify.Result {
	e := env.Entry
	result := n.verifier.VerifyWithCustom(e, n.config.PowDifficulty)
	if result != verify.Verified {
		n.metrics.drop(result)
		Logger.Debugf("Dropping %s of %s from %s: %s", env.MsgType, e.Key, from, result)
		return result
	}
	entries := append([]*entry.Entry{e}, n.verifySources(env)...)

	n.bus.Emit(EventPut, Event{Key: e.Key, Entry: e})

	if local {
		n.publish(env)
	} else {
		n.relay(env, from)
	}

	var rec *entry.Record
	changed := false
	for _, x := range entries {
		r, ok, err := persist(x)
		if err != nil {
			Logger.Warningf("Failed to store %s: %v", x.Key, err)
		}
		if r != nil {
			rec = r
		}
		changed = changed || ok
	}
	if rec != nil {
		n.keyListeners.Trigger(rec.Entry.Key, rec)
		if changed {
			n.subscriptions.Trigger(rec.Entry.Key, rec)
		}
	}
	n.idListeners.Fire(env.ID, env)
	return result
}

// verifySources returns the sources of a crdtPut that belong to its entry and
// pass verification. Other sources are dropped.
func (n *Node) verifySources(env *common.Envelope) []*entry.Entry {
	e := env.Entry
	if e.CrdtType == crdt.TypeNone || len(env.Sources) == 0 {
		return nil
	}
	out := make([]*entry.Entry, 0, len(env.Sources))
	for _, s := range env.Sources {
		if s == nil || s.Key != e.Key || s.CrdtType != e.CrdtType {
			n.metrics.drop(verify.InvalidData)
			continue
		}
		if result := n.verifier.VerifyWithCustom(s, n.config.PowDifficulty); result != verify.Verified {
			n.metrics.drop(result)
			Logger.Debugf("Dropping source of %s from %s: %s", s.Key, env.ID, result)
			continue
		}
		out = append(out, s)
	}
	return out
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

// handleSubscribe forwards every future change of a key to the subscriber,
// starting with the current value. Subscriptions end with the connection.
func (n *Node) handleSubscribe(env *common.Envelope, from string) {
	subID := env.ID
	handle := n.subscriptions.Add(env.Key, func(_ string, rec *entry.Record) {
		n.forward(from, subID, rec)
	})
	n.subsByPeer.Compute(from, func(old []uint64, _ bool) ([]uint64, bool) {
		return append(old, handle), false
	})
	if !n.connected(from) {
		n.dropSubscriptions(from)
		return
	}

	rec, err := n.loadRecord(env.Key)
	if err != nil {
		Logger.Errorf("Failed to load %s: %v", env.Key, err)
		return
	}
	if rec != nil {
		n.forward(from, subID, rec)
	}
}

func (n *Node) forward(address, subID string, rec *entry.Record) {
	env := replyFor("", rec)
	env.Subscription = subID
	if err := n.send(address, env); err != nil {
		Logger.Debugf("Failed to forward %s to subscriber %s: %v", rec.Entry.Key, address, err)
	}
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// handleQuery answers with the local keys below the prefix. Servers also ask the
// other servers and route their answers back to the requester.
func (n *Node) handleQuery(env *common.Envelope, from string) {
	keys, err := n.store.Query(env.Key)
	if err != nil {
		Logger.Errorf("Failed to query %q: %v", env.Key, err)
	} else if err := n.send(from, common.NewQueryAck(env.ID, n.nodeKey.Address(), keys)); err != nil {
		Logger.Debugf("Failed to answer query of %s: %v", from, err)
	}

	if !n.config.IsServer() {
		return
	}
	if _, loaded := n.queryRoutes.LoadOrStore(env.ID, from); !loaded {
		id := env.ID
		n.clock.AfterFunc(n.config.RequestTimeout, func() { n.queryRoutes.Delete(id) })
	}
	n.relay(env, from)
}

func (n *Node) handleQueryAck(env *common.Envelope) {
	if c, ok := n.queries.Load(env.ID); ok {
		c.add(env.Keys)
		return
	}
	if to, ok := n.queryRoutes.Load(env.ID); ok {
		if err := n.send(to, env); err != nil {
			Logger.Debugf("Failed to route query answer to %s: %v", to, err)
		}
	}
}

// --------------------------------------------------------------------------
// Functions
// --------------------------------------------------------------------------

// handleFunction runs a registered function in the background and answers the
// caller. Function calls are never relayed.
func (n *Node) handleFunction(env *common.Envelope, from string) {
	fn, ok := n.functions.Load(env.Function)
	if !ok {
		reply := common.NewFunctionReturn(env.ID, n.nodeKey.Address(), nil, common.StatusNotFound, ErrFunctionNotFound)
		if err := n.send(from, reply); err != nil {
			Logger.Debugf("Failed to answer function call of %s: %v", from, err)
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(n.ctx, n.config.FunctionTimeout)
		defer cancel()
		result, err := n.call(ctx, fn, env.Args)
		status := common.StatusOK
		if err != nil {
			status = common.StatusErr
		}
		reply := common.NewFunctionReturn(env.ID, n.nodeKey.Address(), result, status, err)
		if err := n.send(from, reply); err != nil {
			Logger.Debugf("Failed to return result of %s to %s: %v", env.Function, from, err)
		}
	}()
}

// call runs fn and encodes its result
func (n *Node) call(ctx context.Context, fn Function, args json.RawMessage) (json.RawMessage, error) {
	value, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

func (n *Node) handleFunctionReturn(env *common.Envelope) {
	if ch, ok := n.calls.Load(env.ID); ok {
		select {
		case ch <- env:
		default:
		}
	}
}
