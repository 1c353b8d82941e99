package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Node configuration
// --------------------------------------------------------------------------

// NodeMode selects whether a node accepts inbound connections and relays.
type NodeMode string

const (
	ModeServer NodeMode = "server"
	ModeClient NodeMode = "client"
)

// Storage engines
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// NodeConfig holds all configuration parameters of a node.
type NodeConfig struct {
	// Mode is server (listens, relays) or client (dials only)
	Mode NodeMode
	// Endpoint is the listen address of a server, in the format of the transport
	Endpoint string
	// Bootstrap lists endpoints dialed at startup
	Bootstrap []string
	// Topic isolates networks; peers announcing another topic are ignored
	Topic string

	// PowDifficulty is the number of leading '0' hex chars required on entry hashes
	PowDifficulty int
	// ClockSkew is the tolerated future drift of entry timestamps
	ClockSkew time.Duration

	// RequestTimeout bounds get, crdtGet and sign-in lookups
	RequestTimeout time.Duration
	// QueryQuietPeriod is how long a query waits for further acks
	QueryQuietPeriod time.Duration
	// FunctionTimeout bounds remote function calls
	FunctionTimeout time.Duration
	// DebounceWindow coalesces listener notifications per key
	DebounceWindow time.Duration

	// de-duplication bounds
	DedupMaxEntries int
	DedupMaxAge     time.Duration

	// MaxReconnects bounds the reconnect attempts of dialed connections
	MaxReconnects uint64
	// RelayServerOnly restricts put relays to servers
	RelayServerOnly bool
	// AutoDial connects to servers learned from pong peer lists
	AutoDial bool
	// Discovery enables mDNS discovery on the local network
	Discovery bool

	// Storage is the engine (memory or badger) and DataDir its directory
	Storage string
	DataDir string

	// wire settings
	Serializer string
	Transport  string

	// MetricsEndpoint exposes metrics over http if set
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// DefaultNodeConfig returns the configuration used when nothing is overridden.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Mode:             ModeServer,
		Endpoint:         "0.0.0.0:7070",
		Topic:            "pkv",
		PowDifficulty:    0,
		ClockSkew:        10 * time.Second,
		RequestTimeout:   5 * time.Second,
		QueryQuietPeriod: 300 * time.Millisecond,
		FunctionTimeout:  10 * time.Second,
		DebounceWindow:   100 * time.Millisecond,
		DedupMaxEntries:  10000,
		DedupMaxAge:      5 * time.Minute,
		MaxReconnects:    10,
		RelayServerOnly:  true,
		AutoDial:         true,
		Storage:          StorageMemory,
		DataDir:          "./data",
		Serializer:       "json",
		Transport:        "tcp",
		LogLevel:         "info",
	}
}

// IsServer reports whether the node runs in server mode.
func (c *NodeConfig) IsServer() bool {
	return c.Mode == ModeServer
}

// Validate checks the configuration for contradictions.
func (c *NodeConfig) Validate() error {
	var errs []error
	if c.Mode != ModeServer && c.Mode != ModeClient {
		errs = append(errs, fmt.Errorf("invalid mode %q: must be server or client", c.Mode))
	}
	if c.Mode == ModeServer && c.Endpoint == "" {
		errs = append(errs, errors.New("a server needs an endpoint"))
	}
	if c.PowDifficulty < 0 || c.PowDifficulty > 64 {
		errs = append(errs, fmt.Errorf("invalid pow difficulty %d: must be within 0..64", c.PowDifficulty))
	}
	if c.RequestTimeout <= 0 || c.FunctionTimeout <= 0 || c.QueryQuietPeriod <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.DebounceWindow < 0 {
		errs = append(errs, errors.New("debounce window cannot be negative"))
	}
	switch c.Storage {
	case StorageMemory:
	case StorageBadger:
		if c.DataDir == "" {
			errs = append(errs, errors.New("badger storage needs a data dir"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q: must be memory or badger", c.Storage))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *NodeConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Node")
	addField("Mode", string(c.Mode))
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Serializer", c.Serializer)
	addField("Topic", c.Topic)

	addSection("Network")
	for i, endpoint := range c.Bootstrap {
		addField("Bootstrap "+strconv.Itoa(i), endpoint)
	}
	addField("Relay Server Only", strconv.FormatBool(c.RelayServerOnly))
	addField("Auto Dial", strconv.FormatBool(c.AutoDial))
	addField("mDNS Discovery", strconv.FormatBool(c.Discovery))
	addField("Max Reconnects", strconv.FormatUint(c.MaxReconnects, 10))

	addSection("Verification")
	addField("PoW Difficulty", strconv.Itoa(c.PowDifficulty))
	addField("Clock Skew", c.ClockSkew.String())
	addField("Dedup Entries", strconv.Itoa(c.DedupMaxEntries))
	addField("Dedup Max Age", c.DedupMaxAge.String())

	addSection("Timing")
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Query Quiet Period", c.QueryQuietPeriod.String())
	addField("Function Timeout", c.FunctionTimeout.String())
	addField("Debounce Window", c.DebounceWindow.String())

	addSection("Storage")
	addField("Engine", c.Storage)
	if c.Storage == StorageBadger {
		addField("Data Directory", c.DataDir)
	}

	addSection("Observability")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	return sb.String()
}
