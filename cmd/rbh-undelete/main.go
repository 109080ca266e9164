// Command rbh-undelete restores an HSM-archived file whose tombstone
// still lives in a robinhood metadata store, mirroring
// cmd/rbh-sync's cobra layout: one root command, with every subcommand
// added by the single init() below.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	_ "github.com/robinhood-suite/robinhood4-sub002/internal/mongosink"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rhlog"
	_ "github.com/robinhood-suite/robinhood4-sub002/internal/sqlitesink"
	"github.com/robinhood-suite/robinhood4-sub002/internal/undelete"
)

var logger = rhlog.Get("rbh-undelete")

var rootCmd = &cobra.Command{
	Use:   "rbh-undelete",
	Short: "Restore or list HSM-archived tombstones recorded in a robinhood metadata store",
}

func init() {
	rootCmd.AddCommand(restoreCmd, listCmd)
}

var restoreCmd = &cobra.Command{
	Use:   "restore <rbh-uri> <path>",
	Short: "Restore the archived copy of a deleted path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("restore requires exactly 2 arguments: <rbh-uri> <path>")
		}
		return runRestore(args[0], args[1])
	},
}

var listCmd = &cobra.Command{
	Use:   "list <rbh-uri> <path-prefix>",
	Short: "List tombstones still carrying a removal time under a path prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("list requires exactly 2 arguments: <rbh-uri> <path-prefix>")
		}
		return runList(args[0], args[1])
	},
}

func openTool(ctx context.Context, uri string) (*undelete.Tool, backend.Backend, error) {
	store, err := backend.New(ctx, uri, nil, false)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return &undelete.Tool{Store: store, FS: noHSM{}}, store, nil
}

func runRestore(uri, path string) error {
	ctx := context.Background()
	tool, store, err := openTool(ctx, uri)
	if err != nil {
		return err
	}
	defer store.Destroy(ctx)

	if err := tool.Restore(ctx, path); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	logger.Infof("restored %s", path)
	return nil
}

func runList(uri, prefix string) error {
	ctx := context.Background()
	tool, store, err := openTool(ctx, uri)
	if err != nil {
		return err
	}
	defer store.Destroy(ctx)

	entries, err := tool.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing %s: %w", prefix, err)
	}
	for _, e := range entries {
		path, _ := e.Path()
		fmt.Println(path)
	}
	logger.Infof("%d tombstone(s) under %s", len(entries), prefix)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
