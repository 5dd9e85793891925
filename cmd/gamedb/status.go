package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/liushuochen/gotable"
	"github.com/liushuochen/gotable/cell"
	"github.com/spf13/cobra"

	"gamedb/pkg/replication"
	"gamedb/pkg/rpc"
	"gamedb/pkg/types"
)

func newStatusCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node health and queued operations of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rpc.NewClient(opts.Addr, opts.Timeout)

			nodes, err := c.Nodes(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := c.Pending(cmd.Context())
			if err != nil {
				return err
			}

			nodesOut, err := nodesTable(nodes)
			if err != nil {
				return err
			}
			pendingOut, err := pendingTable(pending)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Nodes:")
			fmt.Fprint(out, nodesOut)
			fmt.Fprintf(out, "\nPending operations: %d\n", len(pending))
			if len(pending) > 0 {
				fmt.Fprint(out, pendingOut)
			}
			return nil
		},
	}
}

func nodesTable(nodes []rpc.NodeStatus) (string, error) {
	table, err := gotable.Create("Node", "Role", "Range", "Status")
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		status := "online"
		if !n.Online {
			status = "offline"
		}
		row := []string{string(n.ID), string(n.Role), string(n.Range), status}
		if err := table.AddRow(row); err != nil {
			return "", err
		}
	}
	return table.String(), nil
}

func pendingTable(ops []replication.PendingOperation) (string, error) {
	cols := []string{"Id", "Op", "Target", "Statement", "Attempts", "Queued", "LastError"}
	table, err := gotable.Create(cols...)
	if err != nil {
		return "", err
	}
	for _, col := range cols {
		table.Align(col, cell.AlignLeft)
	}
	for _, op := range ops {
		row := []string{
			shortID(op.ID),
			string(op.Kind),
			string(op.Target),
			op.Stmt.String(),
			strconv.Itoa(op.Attempts),
			op.EnqueuedAt.Format(time.RFC3339),
			op.LastError,
		}
		if err := table.AddRow(row); err != nil {
			return "", err
		}
	}
	return table.String(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newSimulateCommand(opts *clientOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "simulate <node>",
		Short: "Mark a node online or offline for replication",
		Example: `  gamedb simulate shardB --offline
  gamedb simulate shardB`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rpc.NewClient(opts.Addr, opts.Timeout)
			msg, err := c.SimulateFailure(cmd.Context(), types.NodeID(args[0]), !offline)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "mark the node offline instead of online")

	return cmd
}

func newReconcileCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rpc.NewClient(opts.Addr, opts.Timeout)
			rep, err := c.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "visited=%d succeeded=%d retained=%d offline=%d deferred=%d\n",
				rep.Visited, rep.Succeeded, rep.Retained, rep.Offline, rep.Deferred)
			return nil
		},
	}
}
