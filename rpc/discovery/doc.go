// Package discovery finds servers on the local network with mDNS
// (github.com/grandcat/zeroconf). Servers announce ServiceName with their
// node address and topic in the TXT records; discovered servers of the same
// topic are handed to the node, which dials them.
package discovery
