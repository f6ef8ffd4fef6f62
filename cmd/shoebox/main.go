package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/modules/mediamodule"
	"github.com/mantonx/shoebox/internal/modules/modulemanager"
	"github.com/mantonx/shoebox/internal/server"

	// Module load order: assets before media (the generator must exist
	// when the media manager is built), media before hierarchy.
	_ "github.com/mantonx/shoebox/internal/modules/assetmodule"
	_ "github.com/mantonx/shoebox/internal/modules/eventmodule"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "shoebox",
		Short: "Personal media library organizer",
		Long:  "Shoebox imports, deduplicates, and organizes a personal media library of photos, audio, and video.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(serveCmd(), importCmd(), initdbCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Logging.Level)

	db, err := database.Initialize(cfg)
	if err != nil {
		return nil, err
	}
	if err := modulemanager.LoadAll(db); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg).Run(ctx)
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import media files into the unsorted pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := bootstrap(); err != nil {
				return err
			}
			manager := mediamodule.GetManager()

			var failed int
			for _, path := range args {
				if err := importOne(manager, path); err != nil {
					logger.Error("import failed", "path", path, "error", err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d imports failed", failed, len(args))
			}
			return nil
		},
	}
}

func importOne(manager *mediamodule.Manager, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		return fmt.Errorf("cannot determine content type for %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	modTime := info.ModTime()

	result, err := manager.Import(mediamodule.Submission{
		Data:         data,
		ContentType:  contentType,
		OriginalName: filepath.Base(path),
		LastModified: &modTime,
	})
	if err != nil {
		return err
	}
	if result.Duplicate {
		fmt.Printf("%s: duplicate of %s\n", path, result.Item.ID)
		return nil
	}
	if err := manager.PostProcess(result.Item.ID); err != nil {
		logger.Warn("post-processing failed", "item_id", result.Item.ID, "error", err)
	}
	fmt.Printf("%s: imported as %s (%s)\n", path, result.Item.ID, result.Item.Filename)
	return nil
}

func initdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema and library directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.SetLevel(cfg.Logging.Level)

			if _, err := database.Initialize(cfg); err != nil {
				return err
			}
			for _, dir := range []string{
				cfg.Library.RootDir,
				cfg.Library.UnsortedDir,
				cfg.Library.DailyDir,
				cfg.Library.EventsDir,
				cfg.Library.InboxDir,
			} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}
			logger.Info("database and library initialized", "root", cfg.Library.RootDir)
			return nil
		},
	}
}
