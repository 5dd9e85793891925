package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// clientOptions are shared by the commands that talk to a running server.
type clientOptions struct {
	Addr    string
	Timeout time.Duration
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gamedb",
		Short: "gamedb - mirror and two year-partitioned shards with retrying replication",
		Long: `gamedb keeps one mirror node holding every record and two shard nodes
splitting records by the year of their partition key. Writes commit on the
node they are sent to and are replicated in the background; operations that
cannot reach their target are retried by the reconciler.`,
		SilenceUsage: true,
	}

	clientOpts := &clientOptions{}
	cmd.PersistentFlags().StringVar(&clientOpts.Addr, "addr", "http://localhost:8080", "base URL of a running gamedb server")
	cmd.PersistentFlags().DurationVar(&clientOpts.Timeout, "timeout", 5*time.Second, "request timeout for client commands")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newStatusCommand(clientOpts))
	cmd.AddCommand(newSimulateCommand(clientOpts))
	cmd.AddCommand(newReconcileCommand(clientOpts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gamedb", version)
		},
	}
}
