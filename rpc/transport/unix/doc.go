// Package unix implements the Unix domain socket connector of the network
// adapter, for nodes sharing a host. Endpoints are socket paths; a stale
// socket file is removed before listening.
package unix
