package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/pKV/rpc/common"
)

// Function is a named procedure other nodes can call. args is the JSON encoded
// argument of the caller, the returned value is encoded as JSON.
type Function func(ctx context.Context, args json.RawMessage) (any, error)

// RegisterFunction makes fn callable under name, replacing a previous registration
func (n *Node) RegisterFunction(name string, fn Function) {
	n.functions.Store(name, fn)
}

// UnregisterFunction removes a function. It returns false if name was not registered.
func (n *Node) UnregisterFunction(name string) bool {
	_, ok := n.functions.LoadAndDelete(name)
	return ok
}

// DoFunction calls the function name with args and returns its JSON encoded result.
//
// A function registered on this node runs locally. Otherwise every connected peer
// is asked and the first OK or ERR answer wins. ErrFunctionNotFound is returned
// if all peers answered that they do not provide the function.
func (n *Node) DoFunction(ctx context.Context, name string, args any) (json.RawMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	if fn, ok := n.functions.Load(name); ok {
		ctx, cancel := context.WithTimeout(ctx, n.config.FunctionTimeout)
		defer cancel()
		return n.call(ctx, fn, raw)
	}

	env := common.NewFunctionRequest(name, raw)
	replies := make(chan *common.Envelope, len(n.network.Peers())+16)
	n.calls.Store(env.ID, replies)
	defer n.calls.Delete(env.ID)

	n.inDedup.Seen(dedupKey(env))
	targets := n.publish(env)
	if targets == 0 {
		return nil, ErrFunctionNotFound
	}

	timer := n.clock.Timer(n.config.FunctionTimeout)
	defer timer.Stop()
	for notFound := 0; notFound < targets; {
		select {
		case reply := <-replies:
			switch reply.Status {
			case common.StatusOK:
				return reply.Result, nil
			case common.StatusErr:
				return nil, fmt.Errorf("%w: %s", ErrFunctionFailed, reply.Err)
			default:
				notFound++
			}
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-n.ctx.Done():
			return nil, ErrClosed
		}
	}
	return nil, ErrFunctionNotFound
}
