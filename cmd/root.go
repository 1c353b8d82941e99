package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/pKV/cmd/kv"
	"github.com/ValentinKolb/pKV/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "pkv",
		Short: "peer-to-peer key-value store",
		Long: fmt.Sprintf(`pKV (v%s)

A peer-to-peer, eventually consistent key-value store written in Go.
Every entry is signed by its author and verified by every peer, servers
relay and persist all entries, CRDT keys merge concurrent writes.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
