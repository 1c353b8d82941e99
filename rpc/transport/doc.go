// Package transport defines the network adapter of a node. Nodes exchange
// opaque serialized envelopes over persistent bidirectional connections, one
// per remote node, identified by the remote node address.
//
// The base package implements INetwork over framed connections; the tcp,
// unix, ws and memory packages contribute the connectors.
package transport
