package util

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/pKV/lib/db"
	"github.com/ValentinKolb/pKV/lib/db/engines/badger"
	"github.com/ValentinKolb/pKV/lib/db/engines/btree"
	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/lib/store"
	"github.com/ValentinKolb/pKV/lib/store/lstore"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/ValentinKolb/pKV/rpc/node"
	"github.com/ValentinKolb/pKV/rpc/serializer"
	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/ValentinKolb/pKV/rpc/transport/tcp"
	"github.com/ValentinKolb/pKV/rpc/transport/unix"
	"github.com/ValentinKolb/pKV/rpc/transport/ws"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and binds environment variables with the prefix PKV_
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("pkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupNodeFlags adds the flags shared by every command that runs a node
func SetupNodeFlags(cmd *cobra.Command) {
	d := common.DefaultNodeConfig()

	key := "bootstrap"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated list of endpoints to connect to at startup"))

	key = "topic"
	cmd.PersistentFlags().String(key, d.Topic, WrapString("Topic of the network. Peers announcing another topic are ignored"))

	key = "pow"
	cmd.PersistentFlags().Int(key, d.PowDifficulty, WrapString("Number of leading zeros required on entry hashes (must be the same on all nodes)"))

	key = "clock-skew"
	cmd.PersistentFlags().Duration(key, d.ClockSkew, WrapString("How far entry timestamps may be ahead of the local clock"))

	key = "request-timeout"
	cmd.PersistentFlags().Duration(key, d.RequestTimeout, WrapString("How long reads wait for an answer of the network"))

	key = "query-quiet"
	cmd.PersistentFlags().Duration(key, d.QueryQuietPeriod, WrapString("How long a query waits for further answers"))

	key = "function-timeout"
	cmd.PersistentFlags().Duration(key, d.FunctionTimeout, WrapString("How long remote function calls may take"))

	key = "debounce"
	cmd.PersistentFlags().Duration(key, d.DebounceWindow, WrapString("Window in which changes of a key are coalesced before listeners are called"))

	key = "max-reconnects"
	cmd.PersistentFlags().Uint64(key, d.MaxReconnects, WrapString("How often a dropped connection is re-established (0 disables reconnects)"))

	key = "auto-dial"
	cmd.PersistentFlags().Bool(key, d.AutoDial, WrapString("Connect to servers announced by peers"))

	key = "serializer"
	cmd.PersistentFlags().String(key, d.Serializer, WrapString(fmt.Sprintf("Serializer to use (%s)", strings.Join(serializer.Names, ", "))))

	key = "transport"
	cmd.PersistentFlags().String(key, d.Transport, WrapString("Transport to use (tcp, unix, ws)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, d.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.PersistentFlags())
}

// GetNodeConfig reads the node configuration from viper
func GetNodeConfig(mode common.NodeMode) common.NodeConfig {
	config := common.DefaultNodeConfig()
	config.Mode = mode
	config.Topic = viper.GetString("topic")
	config.PowDifficulty = viper.GetInt("pow")
	config.ClockSkew = viper.GetDuration("clock-skew")
	config.RequestTimeout = viper.GetDuration("request-timeout")
	config.QueryQuietPeriod = viper.GetDuration("query-quiet")
	config.FunctionTimeout = viper.GetDuration("function-timeout")
	config.DebounceWindow = viper.GetDuration("debounce")
	config.MaxReconnects = viper.GetUint64("max-reconnects")
	config.AutoDial = viper.GetBool("auto-dial")
	config.Serializer = viper.GetString("serializer")
	config.Transport = viper.GetString("transport")
	config.LogLevel = viper.GetString("log-level")

	config.Bootstrap = nil
	for _, endpoint := range strings.Split(viper.GetString("bootstrap"), ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			config.Bootstrap = append(config.Bootstrap, endpoint)
		}
	}

	if viper.IsSet("endpoint") {
		config.Endpoint = viper.GetString("endpoint")
	}
	if viper.IsSet("storage") {
		config.Storage = viper.GetString("storage")
	}
	if viper.IsSet("data-dir") {
		config.DataDir = viper.GetString("data-dir")
	}
	if viper.IsSet("discovery") {
		config.Discovery = viper.GetBool("discovery")
	}
	if viper.IsSet("metrics-endpoint") {
		config.MetricsEndpoint = viper.GetString("metrics-endpoint")
	}
	return config
}

// --------------------------------------------------------------------------
// Node construction
// --------------------------------------------------------------------------

// GetNetwork creates the network selected by config.Transport
func GetNetwork(config common.NodeConfig, address string) (transport.INetwork, error) {
	tc := transport.Config{
		Address:       address,
		Server:        config.IsServer(),
		MaxReconnects: config.MaxReconnects,
	}
	switch config.Transport {
	case "tcp":
		return tcp.NewNetwork(tc), nil
	case "unix":
		return unix.NewNetwork(tc), nil
	case "ws":
		return ws.NewNetwork(tc), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", config.Transport)
	}
}

// GetStore opens the store selected by config.Storage
func GetStore(config common.NodeConfig) (store.IStore, error) {
	switch config.Storage {
	case common.StorageMemory:
		return lstore.NewLocalStore(func() (db.KVDB, error) { return btree.NewBTreeDB(), nil })
	case common.StorageBadger:
		return lstore.NewLocalStore(func() (db.KVDB, error) { return badger.NewBadgerDB(config.DataDir) })
	default:
		return nil, fmt.Errorf("invalid storage %s", config.Storage)
	}
}

// Node is a started node together with the store it owns
type Node struct {
	*node.Node
	store store.IStore
}

// Close stops the node and closes its store
func (n *Node) Close() error {
	err := n.Node.Close()
	if serr := n.store.Close(); serr != nil && err == nil {
		err = serr
	}
	return err
}

// StartNode validates config, creates a node with a fresh node key and starts it
func StartNode(ctx context.Context, config common.NodeConfig) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}

	suite := identity.NewSecp256k1Suite(identity.DefaultVaultParams())
	key, err := suite.Generate()
	if err != nil {
		return nil, err
	}
	network, err := GetNetwork(config, key.Address())
	if err != nil {
		return nil, err
	}
	st, err := GetStore(config)
	if err != nil {
		return nil, err
	}

	n, err := node.New(config, key, network, st, suite)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		_ = n.Close()
		_ = st.Close()
		return nil, err
	}
	return &Node{Node: n, store: st}, nil
}
