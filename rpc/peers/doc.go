// Package peers keeps the registry of known server peers.
//
// Nodes announce themselves with a common.Peer record signed by their node
// key. Records learned from ping and pong envelopes are verified (topic and
// signature) before they are added. The registry also keeps one
// github.com/rcrowley/go-metrics meter per connected peer that tracks the
// rate of inbound messages.
package peers
