// Package cmd implements the command-line interface for the pKV peer-to-peer
// key-value store. It provides a hierarchical command structure with operations
// for running a server node and interacting with the network as a client node.
//
// The package is organized into several subpackages:
//
//   - kv: Client commands (put, get, query, watch, counter, call, perf)
//   - serve: Commands for starting and configuring a pKV server
//   - util: Shared utilities for flags, configuration and node construction (internal use)
//
// Every flag can also be set via environment variables with the prefix PKV_
// (e.g. PKV_BOOTSTRAP=10.0.0.1:7070) or in a .env file.
//
// See pkv -help for a list of all commands.
package cmd
