// Package common provides the data structures shared by the rpc packages:
// the envelope protocol, the signed peer record, the node configuration and
// the logger setup.
//
// Key Components:
//
//   - Envelope: the one message format of the gossip protocol. A tagged variant
//     over get, put, crdtGet, crdtPut, ping, pong, subscribe, query, queryAck,
//     function and functionReturn, with a correlation id and the visited set
//     used for loop prevention. Factory functions create each kind.
//
//   - VisitedSet: an immutable set of addresses, encoded as a sorted array.
//
//   - Peer: the record a node announces in ping and pong, signed with the node key.
//
//   - NodeConfig: configuration of a node, with defaults and validation.
//
//   - Logger: custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
