package node

import (
	"strings"

	"github.com/ValentinKolb/pKV/rpc/common"
)

// connected reports whether a connection to address is open
func (n *Node) connected(address string) bool {
	for _, p := range n.network.Peers() {
		if p.Address == address {
			return true
		}
	}
	return false
}

// send delivers env to one connected peer. The local address is added to the
// visited set so the receiver never sends it back.
func (n *Node) send(address string, env *common.Envelope) error {
	env = env.Visit(n.nodeKey.Address())
	data, err := n.serializer.Serialize(*env)
	if err != nil {
		return err
	}
	return n.network.SendToClientID(address, data)
}

// broadcast sends env to every connected peer the envelope has not visited yet
// and returns the number of peers it was sent to.
//
// serversOnly restricts the targets to servers. Entries are additionally
// deduplicated per peer by hash so the same content is sent at most once to
// every peer, even if it arrives wrapped in different envelopes.
func (n *Node) broadcast(env *common.Envelope, serversOnly bool) int {
	env = env.Visit(n.nodeKey.Address())
	content := contentKey(env)
	var data []byte
	sent := 0
	for _, p := range n.network.Peers() {
		if env.To.Contains(p.Address) {
			continue
		}
		if serversOnly && !p.Server {
			continue
		}
		if content != "" && n.outDedup.Seen(p.Address+"|"+content) {
			continue
		}
		if data == nil {
			var err error
			if data, err = n.serializer.Serialize(*env); err != nil {
				Logger.Errorf("Failed to serialize %s envelope: %v", env.MsgType, err)
				if content != "" {
					n.outDedup.Forget(p.Address + "|" + content)
				}
				return 0
			}
		}
		if err := n.network.SendToClientID(p.Address, data); err != nil {
			Logger.Debugf("Failed to send %s to %s: %v", env.MsgType, p.Address, err)
			if content != "" {
				n.outDedup.Forget(p.Address + "|" + content)
			}
			continue
		}
		sent++
	}
	return sent
}

// relay forwards an envelope received from another peer. Only servers relay,
// by default only towards other servers.
func (n *Node) relay(env *common.Envelope, from string) int {
	if !n.config.IsServer() {
		return 0
	}
	sent := n.broadcast(env.Visit(from), n.config.RelayServerOnly)
	if sent > 0 {
		n.metrics.relayed.Add(sent)
	}
	return sent
}

// publish sends a locally created envelope to every connected peer
func (n *Node) publish(env *common.Envelope) int {
	return n.broadcast(env, false)
}

// contentKey identifies the entries carried by env, or is empty for envelopes
// without entries
func contentKey(env *common.Envelope) string {
	if env.Entry == nil {
		return ""
	}
	if len(env.Sources) == 0 {
		return env.Entry.Hash
	}
	hashes := make([]string, 0, len(env.Sources)+1)
	hashes = append(hashes, env.Entry.Hash)
	for _, s := range env.Sources {
		if s != nil {
			hashes = append(hashes, s.Hash)
		}
	}
	return strings.Join(hashes, ",")
}
