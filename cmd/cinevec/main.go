// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/cinevec"
	"github.com/poiesic/cinevec/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cinevec",
		Usage: "Concept-weighted movie exploration and recommendation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{config.ConfigPathEnvVar},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the configuration",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "address",
						Usage: "Listen address; overrides the configuration",
					},
				},
			},
			{
				Name:   "bootstrap-concepts",
				Usage:  "Embed the concept vocabulary and replace the concept collection",
				Action: bootstrapCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Rebuild the item collection from the catalog",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of movies to embed per provider call; overrides the configuration",
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of batches in flight; overrides the configuration",
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Load movies and favorites from a JSON file into the catalog",
				ArgsUsage: "<file>",
				Action:    importCommand,
			},
			{
				Name:  "snapshot",
				Usage: "Manage vector index snapshots",
				Subcommands: []*cli.Command{
					{
						Name:   "create",
						Usage:  "Snapshot every collection",
						Action: snapshotCreateCommand,
					},
					{
						Name:   "list",
						Usage:  "List snapshots of every collection",
						Action: snapshotListCommand,
					},
					{
						Name:      "download",
						Usage:     "Write a snapshot to a file",
						ArgsUsage: "<collection> <name> <file>",
						Action:    snapshotDownloadCommand,
					},
					{
						Name:      "restore",
						Usage:     "Replace a collection with a snapshot file",
						ArgsUsage: "<collection> <file>",
						Action:    snapshotRestoreCommand,
					},
				},
			},
		},
	}
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	return cfg, nil
}

// openApp loads the configuration and builds the application.
func openApp(c *cli.Context) (*cinevec.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return openAppWith(c.Context, cfg)
}

func openAppWith(ctx context.Context, cfg *config.Config) (*cinevec.App, error) {
	app, err := cinevec.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return app, nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("address"); addr != "" {
		cfg.Server.Address = addr
	}

	app, err := openAppWith(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := app.NewServer()
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func bootstrapCommand(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	vectors, err := app.Concepts().Bootstrap(c.Context)
	if err != nil {
		return fmt.Errorf("concept bootstrap failed: %w", err)
	}
	out := c.App.Writer
	for _, v := range vectors {
		fmt.Fprintf(out, "%s\t%d\n", v.Name, len(v.Vector))
	}
	fmt.Fprintf(out, "Bootstrapped %d concepts into %s\n", len(vectors), app.Concepts().Collection())
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if n := c.Int("batch-size"); n > 0 {
		cfg.Reembed.BatchSize = n
	}
	if n := c.Int("pool-size"); n > 0 {
		cfg.Reembed.PoolSize = n
	}

	app, err := openAppWith(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := app.NewReembedder(c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Catalog: %s\n", cfg.Catalog.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	stats, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Embedded %d movies (%d skipped) and %d moods at dimension %d in %s\n",
		stats.Movies, stats.Skipped, stats.Moods, stats.Dimension, stats.Elapsed.Round(time.Millisecond))
	return nil
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("import requires exactly one file argument", 2)
	}
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := app.Catalog().Import(c.Context, f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Imported %d movies and %d favorites\n", stats.Movies, stats.Favorites)
	return nil
}

func snapshotCreateCommand(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	snaps, err := app.SnapshotAll(c.Context)
	if err != nil {
		return err
	}
	for _, collection := range app.Collections() {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", collection, snaps[collection].Name)
	}
	return nil
}

func snapshotListCommand(c *cli.Context) error {
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tNAME\tCREATED\tSIZE")
	for _, collection := range app.Collections() {
		snaps, err := app.Index().ListSnapshots(c.Context, collection)
		if err != nil {
			return fmt.Errorf("list snapshots of %s: %w", collection, err)
		}
		for _, s := range snaps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", collection, s.Name, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Size)
		}
	}
	return tw.Flush()
}

func snapshotDownloadCommand(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit("download requires <collection> <name> <file>", 2)
	}
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Create(c.Args().Get(2))
	if err != nil {
		return err
	}
	if err := app.Index().DownloadSnapshot(c.Context, c.Args().Get(0), c.Args().Get(1), f); err != nil {
		f.Close()
		return fmt.Errorf("download failed: %w", err)
	}
	return f.Close()
}

func snapshotRestoreCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("restore requires <collection> <file>", 2)
	}
	app, err := openApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Open(c.Args().Get(1))
	if err != nil {
		return err
	}
	defer f.Close()

	collection := c.Args().Get(0)
	if err := app.Index().RestoreSnapshot(c.Context, collection, f); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if collection == app.Concepts().Collection() {
		app.Concepts().Invalidate()
	}
	fmt.Fprintf(c.App.Writer, "Restored %s\n", collection)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))
	if levelStr == "" {
		levelStr = "info"
		if cfg, err := config.Load(c.String("config")); err == nil {
			levelStr = cfg.Logging.Level
		}
	}

	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}
