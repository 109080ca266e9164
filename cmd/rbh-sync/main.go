// Command rbh-sync is the thin CLI driver wiring a source iterator, the
// enricher pipeline, and a sink Backend together, grounded on rclone's
// cmd-package-per-subcommand
// convention (backend/torrent/cmd/backend.go): one root cobra.Command,
// with every subcommand added by the single init() below.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/checkpoint"
	"github.com/robinhood-suite/robinhood4-sub002/internal/enrich"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	_ "github.com/robinhood-suite/robinhood4-sub002/internal/mongosink"
	"github.com/robinhood-suite/robinhood4-sub002/internal/posix"
	enrichext "github.com/robinhood-suite/robinhood4-sub002/internal/posix/enrich"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rhconfig"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rhlog"
	"github.com/robinhood-suite/robinhood4-sub002/internal/source/yamlsrc"
	_ "github.com/robinhood-suite/robinhood4-sub002/internal/sqlitesink"
)

var logger = rhlog.Get("rbh-sync")

var configPath string
var checkpointPath string
var enrichMount string

var rootCmd = &cobra.Command{
	Use:   "rbh-sync",
	Short: "Synchronize a filesystem tree or an fsevent stream into a robinhood metadata store",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a robinhood config YAML file")
	replayCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "bbolt file tracking the last replayed position, to resume an interrupted replay")
	replayCmd.Flags().StringVar(&enrichMount, "enrich-mount", "", "mountpoint to reopen inodes against, resolving statx/symlink enrichment hints before events reach the store")
	rootCmd.AddCommand(walkCmd, replayCmd)
}

var walkCmd = &cobra.Command{
	Use:   "walk <posix-path> <rbh-uri>",
	Short: "Walk a POSIX tree and upsert every entry into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("walk requires exactly 2 arguments: <posix-path> <rbh-uri>")
		}
		return runWalk(args[0], args[1])
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <events.yaml> <rbh-uri>",
	Short: "Replay a YAML fsevent stream into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("replay requires exactly 2 arguments: <events.yaml> <rbh-uri>")
		}
		return runReplay(args[0], args[1])
	},
}

func loadConfig() *rhconfig.Tree {
	if configPath == "" {
		return rhconfig.New()
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		logger.Warnf("reading config %s: %s; using defaults", configPath, err)
		return rhconfig.New()
	}
	tree, err := rhconfig.Load(data)
	if err != nil {
		logger.Warnf("parsing config %s: %s; using defaults", configPath, err)
		return rhconfig.New()
	}
	return tree
}

func runWalk(rootPath, uri string) error {
	ctx := context.Background()
	cfg := loadConfig()

	store, err := backend.New(ctx, uri, cfg.AsMap(), false)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Destroy(ctx)

	w, err := posix.NewWalker(rootPath, posix.Options{Enrichers: configuredEnrichers(cfg)})
	if err != nil {
		return fmt.Errorf("opening walker at %s: %w", rootPath, err)
	}
	defer w.Close()

	start := time.Now()
	applied, total, skipped, err := drainWalk(ctx, store, w)
	if err != nil {
		return err
	}
	logger.Infof("walked %d entries (%d applied, %d skipped) in %s", total, applied, skipped, time.Since(start))
	return nil
}

// configuredEnrichers maps backends/posix/enrichers names to concrete
// enricher implementations. "lustre" needs a real llapi layout reader,
// which this build does not carry; it is skipped with a warning.
func configuredEnrichers(cfg *rhconfig.Tree) []posix.Enricher {
	var out []posix.Enricher
	for _, name := range cfg.Enrichers("posix") {
		switch name {
		case "retention":
			out = append(out, &enrichext.Retention{XattrName: cfg.RetentionXattr()})
		default:
			logger.Warnf("no %q enricher available in this build; skipping", name)
		}
	}
	return out
}

func runReplay(path, uri string) error {
	ctx := context.Background()
	cfg := loadConfig()

	store, err := backend.New(ctx, uri, cfg.AsMap(), false)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Destroy(ctx)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var src fsevent.Iterator = yamlsrc.New(f)
	if enrichMount != "" {
		op, err := posix.NewOpener(enrichMount)
		if err != nil {
			return fmt.Errorf("opening enrichment mount %s: %w", enrichMount, err)
		}
		defer op.Close()
		src = enrich.NewPipeline(src, op, nil, true)
	}
	defer src.Close()

	var cp *checkpoint.Store
	var skip int64
	if checkpointPath != "" {
		cp, err = checkpoint.Open(checkpointPath)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		defer cp.Close()
		if pos, ok, cerr := cp.Last(path); cerr == nil && ok {
			skip = pos
		}
	}

	applied, total, err := drainReplay(ctx, store, src, skip)
	if err != nil {
		return err
	}
	if cp != nil {
		if err := cp.Set(path, skip+int64(total)); err != nil {
			logger.Warnf("recording checkpoint: %s", err)
		}
	}
	logger.Infof("replayed %d/%d events (resumed after position %d)", applied, total, skip)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
