package kv

import (
	"context"
	"errors"

	"github.com/ValentinKolb/pKV/cmd/util"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	kvNode *util.Node

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		Long:               `Start a client node, connect it to the bootstrap servers and perform key-value operations on the network. Writes need an account, use --username and --password (and --signup to create the account).`,
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common node flags to the KV command
	util.SetupNodeFlags(KeyValueCommands)

	key := "username"
	KeyValueCommands.PersistentFlags().String(key, "", util.WrapString("Name of the account used for writes"))
	key = "password"
	KeyValueCommands.PersistentFlags().String(key, "", util.WrapString("Password of the account"))
	key = "signup"
	KeyValueCommands.PersistentFlags().Bool(key, false, util.WrapString("Create the account before running the command"))

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(queryCmd)
	KeyValueCommands.AddCommand(watchCmd)
	KeyValueCommands.AddCommand(counterCmd)
	KeyValueCommands.AddCommand(callCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient starts a client node and logs in if credentials are given
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetNodeConfig(common.ModeClient)
	if len(config.Bootstrap) == 0 {
		return errors.New("at least one bootstrap endpoint is required (--bootstrap)")
	}

	var err error
	if kvNode, err = util.StartNode(cmd.Context(), config); err != nil {
		return err
	}

	username, password := viper.GetString("username"), viper.GetString("password")
	if username == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*config.RequestTimeout)
	defer cancel()
	if viper.GetBool("signup") {
		return kvNode.SignUp(ctx, username, password)
	}
	return kvNode.SignIn(ctx, username, password)
}

// closeKVClient stops the client node
func closeKVClient(_ *cobra.Command, _ []string) error {
	if kvNode == nil {
		return nil
	}
	return kvNode.Close()
}

// requestContext bounds a single command by the configured request timeout
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 2*kvNode.Config().RequestTimeout)
}
