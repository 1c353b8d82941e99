// Package dedup provides a de-duplicator bounded by both age and entry count.
//
// Nodes use two instances: one for inbound envelopes keyed by message type and
// correlation id, and one for outbound relays keyed by peer and content hash.
// Both are backed by the expirable LRU of github.com/hashicorp/golang-lru/v2.
package dedup
