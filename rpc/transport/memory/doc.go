// Package memory implements an in-process connector over net.Pipe. Nodes
// sharing a Hub can dial each other by endpoint name, which makes multi-node
// tests deterministic and free of sockets.
package memory
