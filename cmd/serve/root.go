package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/pKV/cmd/util"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/ValentinKolb/pKV/rpc/discovery"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var Logger = logger.GetLogger("cmd")

var (
	serveCmdConfig common.NodeConfig
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a pKV server",
		Long:    `Start a pKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is PKV_<flag> (e.g. PKV_REQUEST_TIMEOUT=10s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	cmdUtil.SetupNodeFlags(ServeCmd)
	d := common.DefaultNodeConfig()

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, d.Endpoint, cmdUtil.WrapString("The address on which the server will listen (e.g. 0.0.0.0:7070, /tmp/pkv.sock, ...)"))

	key = "storage"
	ServeCmd.PersistentFlags().String(key, d.Storage, cmdUtil.WrapString("Storage engine (memory, badger)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, d.DataDir, cmdUtil.WrapString("DataDir is the directory of the badger storage"))

	key = "discovery"
	ServeCmd.PersistentFlags().Bool(key, d.Discovery, cmdUtil.WrapString("Announce the server and find other servers of the same topic via mDNS (tcp and ws only)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, d.MetricsEndpoint, cmdUtil.WrapString("If set, metrics are served in the prometheus format on http://<metrics-endpoint>/metrics"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the node configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	serveCmdConfig = cmdUtil.GetNodeConfig(common.ModeServer)
	return serveCmdConfig.Validate()
}

// run starts the server and blocks until it receives SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := cmdUtil.StartNode(ctx, serveCmdConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			Logger.Errorf("Failed to close node: %v", err)
		}
	}()
	fmt.Println(serveCmdConfig.String())

	if serveCmdConfig.Discovery {
		mdns, err := discovery.NewMDNS(n.NodeAddress(), serveCmdConfig.Topic, serveCmdConfig.Endpoint, func(endpoint string) {
			dialCtx, cancel := context.WithTimeout(ctx, serveCmdConfig.RequestTimeout)
			defer cancel()
			if err := n.Connect(dialCtx, endpoint); err != nil {
				Logger.Debugf("Failed to connect to discovered server %s: %v", endpoint, err)
			}
		})
		if err != nil {
			return err
		}
		defer mdns.Stop()
	}

	if serveCmdConfig.MetricsEndpoint != "" {
		srv := metricsServer(serveCmdConfig.MetricsEndpoint, n.Metrics())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		Logger.Infof("Serving metrics on http://%s/metrics", serveCmdConfig.MetricsEndpoint)
	}

	<-ctx.Done()
	Logger.Infof("Shutting down")
	return nil
}

// metricsServer serves the node metrics together with the process metrics
func metricsServer(endpoint string, set *metrics.Set) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	return &http.Server{Addr: endpoint, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
