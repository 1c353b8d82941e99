package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/lib/listener"
	"github.com/ValentinKolb/pKV/lib/verify"
	"github.com/ValentinKolb/pKV/rpc/common"
)

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// PutData signs value as the signed-in user and writes it to key.
// Keys may only contain a dot as the separator of a namespaced key.
func (n *Node) PutData(ctx context.Context, key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	user := n.currentUser()
	if user == nil {
		return ErrNotLoggedIn
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	e, err := entry.Seal(ctx, user, key, raw, crdt.TypeNone, n.config.PowDifficulty, n.now())
	if err != nil {
		return err
	}
	return n.write(ctx, common.NewPut("", e))
}

// PutUserData writes key inside the namespace of the signed-in user
func (n *Node) PutUserData(ctx context.Context, key string, value any) error {
	if strings.Contains(key, entry.NamespaceSeparator) {
		return ErrKeyDots
	}
	user := n.currentUser()
	if user == nil {
		return ErrNotLoggedIn
	}
	return n.PutData(ctx, entry.NamespacedKey(user.Address(), key), value)
}

// PutCrdt reads the current state of a CRDT key, applies mutate to it and writes
// the resulting change set as the signed-in user. An unknown key starts empty.
func (n *Node) PutCrdt(ctx context.Context, key string, t crdt.Type, mutate func(crdt.CRDT) error) error {
	_, err := n.updateCrdt(ctx, key, t, mutate)
	return err
}

// IncrementCounter adds delta to a counter key and returns the new local value
func (n *Node) IncrementCounter(ctx context.Context, key string, delta int64) (int64, error) {
	c, err := n.updateCrdt(ctx, key, crdt.TypeCounter, func(c crdt.CRDT) error {
		c.(*crdt.Counter).Add(delta)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return c.(*crdt.Counter).Value(), nil
}

func (n *Node) updateCrdt(ctx context.Context, key string, t crdt.Type, mutate func(crdt.CRDT) error) (crdt.CRDT, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if t == crdt.TypeNone {
		return nil, fmt.Errorf("cannot write crdt of type %s", t)
	}
	user := n.currentUser()
	if user == nil {
		return nil, ErrNotLoggedIn
	}

	rec, err := n.fetch(ctx, common.NewCrdtGetRequest(key))
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrTimeout) {
		return nil, err
	}
	var c crdt.CRDT
	if rec != nil {
		if rec.Entry.CrdtType != t {
			return nil, fmt.Errorf("%w: stored %s, got %s", ErrTypeMismatch, rec.Entry.CrdtType, t)
		}
		c, err = rec.Materialize(user.Address())
	} else {
		c, err = crdt.New(t, user.Address())
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(c); err != nil {
		return nil, err
	}
	changes, err := c.MarshalChanges()
	if err != nil {
		return nil, err
	}
	e, err := entry.Seal(ctx, user, key, changes, t, n.config.PowDifficulty, n.now())
	if err != nil {
		return nil, err
	}
	if err := n.write(ctx, common.NewCrdtPut("", e)); err != nil {
		return nil, err
	}
	return c, nil
}

// write runs a locally created put through the event loop
func (n *Node) write(ctx context.Context, env *common.Envelope) error {
	result, err := n.submit(ctx, env)
	if err != nil {
		return err
	}
	if result != verify.Verified {
		return &RejectedError{Result: result}
	}
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// GetRecord asks the network for key and returns the record stored locally
// once the first answer arrived. Without answers the local record is returned.
func (n *Node) GetRecord(ctx context.Context, key string) (*entry.Record, error) {
	return n.fetch(ctx, common.NewGetRequest(key))
}

// GetData returns the value of a plain key
func (n *Node) GetData(ctx context.Context, key string) (json.RawMessage, error) {
	rec, err := n.GetRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Entry.CrdtType != crdt.TypeNone {
		return nil, fmt.Errorf("%w: %s is a %s", ErrTypeMismatch, key, rec.Entry.CrdtType)
	}
	return rec.Entry.Value, nil
}

// GetUserData returns the value of key in the namespace of address.
// An empty address reads from the namespace of the signed-in user.
func (n *Node) GetUserData(ctx context.Context, address, key string) (json.RawMessage, error) {
	if address == "" {
		user := n.currentUser()
		if user == nil {
			return nil, ErrNotLoggedIn
		}
		address = user.Address()
	}
	return n.GetData(ctx, entry.NamespacedKey(address, key))
}

// GetCrdt returns the merged state of a CRDT key
func (n *Node) GetCrdt(ctx context.Context, key string) (crdt.CRDT, error) {
	rec, err := n.fetch(ctx, common.NewCrdtGetRequest(key))
	if err != nil {
		return nil, err
	}
	if rec.Entry.CrdtType == crdt.TypeNone {
		return nil, fmt.Errorf("%w: %s is a plain value", ErrTypeMismatch, key)
	}
	author := n.NodeAddress()
	if user := n.currentUser(); user != nil {
		author = user.Address()
	}
	return rec.Materialize(author)
}

// fetch sends a get request to every peer and waits for the first answer.
// Answers are verified and stored by the event loop, so the local store holds
// the winning record once the answer arrived.
func (n *Node) fetch(ctx context.Context, env *common.Envelope) (*entry.Record, error) {
	local, err := n.loadRecord(env.Key)
	if err != nil {
		return nil, err
	}
	fallback := func(err error) (*entry.Record, error) {
		if local != nil {
			return local, nil
		}
		return nil, err
	}

	replied := make(chan struct{}, 1)
	n.idListeners.Register(env.ID, func(*common.Envelope) { replied <- struct{}{} })
	defer n.idListeners.Cancel(env.ID)

	n.inDedup.Seen(dedupKey(env))
	if n.publish(env) == 0 {
		return fallback(ErrNotFound)
	}

	timer := n.clock.Timer(n.config.RequestTimeout)
	defer timer.Stop()
	select {
	case <-replied:
	case <-timer.C:
		return fallback(ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.ctx.Done():
		return nil, ErrClosed
	}

	rec, err := n.loadRecord(env.Key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// queryCollector gathers the keys of all query answers
type queryCollector struct {
	mu     sync.Mutex
	keys   map[string]struct{}
	signal chan struct{}
}

func newQueryCollector(initial []string) *queryCollector {
	c := &queryCollector{keys: make(map[string]struct{}), signal: make(chan struct{}, 1)}
	c.add(initial)
	return c
}

func (c *queryCollector) add(keys []string) {
	c.mu.Lock()
	for _, k := range keys {
		c.keys[k] = struct{}{}
	}
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *queryCollector) result() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.keys))
	for k := range c.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// QueryKeys returns the keys starting with prefix known to this node and its peers.
// Answers are collected until no new answer arrived for the quiet period, at most
// until the request timeout.
func (n *Node) QueryKeys(ctx context.Context, prefix string) ([]string, error) {
	local, err := n.store.Query(prefix)
	if err != nil {
		return nil, err
	}
	c := newQueryCollector(local)
	<-c.signal

	env := common.NewQueryRequest(prefix)
	n.queries.Store(env.ID, c)
	defer n.queries.Delete(env.ID)

	n.inDedup.Seen(dedupKey(env))
	if n.publish(env) == 0 {
		return c.result(), nil
	}

	deadline := n.clock.Timer(n.config.RequestTimeout)
	defer deadline.Stop()
	quiet := n.clock.Timer(n.config.QueryQuietPeriod)
	defer quiet.Stop()
	for {
		select {
		case <-c.signal:
			quiet.Reset(n.config.QueryQuietPeriod)
		case <-quiet.C:
			return c.result(), nil
		case <-deadline.C:
			return c.result(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-n.ctx.Done():
			return nil, ErrClosed
		}
	}
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

// SubscribeData calls callback with every new record of key, debounced by the
// configured window. Connected peers are asked to forward changes of the key
// for as long as the connection lasts.
func (n *Node) SubscribeData(key string, callback listener.KeyCallback[*entry.Record]) uint64 {
	handle := n.keyListeners.Add(key, callback)
	env := common.NewSubscribeRequest(key)
	n.inDedup.Seen(dedupKey(env))
	n.publish(env)
	return handle
}

// Unsubscribe removes a callback added with SubscribeData
func (n *Node) Unsubscribe(handle uint64) bool {
	return n.keyListeners.Remove(handle)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// validateKey rejects empty keys and dots outside of the namespace separator
func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	rest := key
	if owner, ok := entry.NamespaceOwner(key); ok {
		rest = key[len(entry.NamespacePrefix)+len(owner)+len(entry.NamespaceSeparator):]
		if rest == "" {
			return ErrEmptyKey
		}
	}
	if strings.Contains(rest, entry.NamespaceSeparator) {
		return ErrKeyDots
	}
	return nil
}

func (n *Node) currentUser() identity.IIdentity {
	n.userMu.RLock()
	defer n.userMu.RUnlock()
	return n.user
}

// now returns a strictly increasing write time, so two writes of this node never
// share a timestamp
func (n *Node) now() time.Time {
	now := n.clock.Now().UnixMilli()
	for {
		last := n.lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if n.lastStamp.CompareAndSwap(last, now) {
			return time.UnixMilli(now)
		}
	}
}
