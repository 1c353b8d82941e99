// Package rpc provides the networking layer of the peer-to-peer key-value
// store. Every node, server or client, runs the same protocol: it verifies
// incoming envelopes, answers requests from its local store and (if it is a
// server) relays entries to the other servers of the network.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the network layer, including
//     the Envelope protocol, message types, peer records, node configuration
//     and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, WebSocket and an in-memory hub for tests).
//
//   - serializer: Envelope serialization with multiple format options (JSON, GOB
//     and zstd compressed variants) for converting between envelopes and byte arrays.
//
//   - peers: Registry of the servers a node knows about, fed by signed ping/pong
//     records, with per-peer message rates.
//
//   - discovery: mDNS announcement and browsing of servers in the local network.
//
//   - node: The protocol router and the application API (accounts, reads,
//     writes, CRDTs, queries, subscriptions and remote functions).
package rpc
