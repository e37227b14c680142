package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/cli"
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/ingest"
	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/server"
	"github.com/hyperjump/snapfind/internal/storage"
	"github.com/hyperjump/snapfind/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServerCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the import watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(opts)
		},
	}
}

func runServer(opts *globalOptions) error {
	cfg, resolvedConfigPath, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	debugMode := opts.debugMode(cfg)
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("college", cfg.College),
		zap.String("storage", cfg.Storage.Driver))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		importHandler(watchCtx, components.Ingester, logger),
		watchOpts...,
	)
	if err := watchSvc.Start(watchCtx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watchSvc.Stop()
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Engine,
		components.Ingester,
		components.Store,
		components.Embedder,
		components.Auth,
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(ctx)
}

// importHandler ingests files reported by the watcher, skipping files that
// were already stored for the same event folder. Imports run one at a time.
func importHandler(ctx context.Context, in *ingest.Ingester, logger *zap.Logger) func(watcher.Import) {
	var mu sync.Mutex
	return func(imp watcher.Import) {
		mu.Lock()
		defer mu.Unlock()

		name := filepath.Base(imp.Path)
		exists, err := in.Exists(ctx, imp.EventName, imp.FolderName, name)
		if err != nil {
			logger.Warn("import lookup failed", zap.String("path", imp.Path), zap.Error(err))
			return
		}
		if exists {
			logger.Debug("import skipped, already stored", zap.String("path", imp.Path))
			return
		}
		result, err := in.IngestFile(ctx, imp.Path, imp.EventName, imp.EventDate, imp.FolderName)
		if err != nil {
			logger.Warn("import failed", zap.String("path", imp.Path), zap.Error(err))
			return
		}
		logger.Info("Imported photo",
			zap.String("path", imp.Path),
			zap.String("event", result.EventName),
			zap.String("folder", result.FolderName))
	}
}

func newUploadCommand(opts *globalOptions) *cobra.Command {
	var eventName, eventDate, folderName string
	cmd := &cobra.Command{
		Use:   "upload --event NAME [--date YYYY-MM-DD] [--folder NAME] <file|dir>...",
		Short: "Store photos for an event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventDate == "" {
				eventDate = time.Now().Format("2006-01-02")
			}
			cfg, _, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			paths, err := collectImages(args, cfg.Watch.Extensions)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no image files found")
			}

			var result *models.UploadResult
			if opts.serverURL != "" {
				result, err = newAPIClient(opts.serverURL, opts.token).upload(eventName, eventDate, folderName, paths)
			} else {
				result, err = uploadLocal(cmd.Context(), cfg, logger, opts.debugMode(cfg), eventName, eventDate, folderName, paths)
			}
			if result != nil {
				_ = cli.WriteUploadResult(cmd.OutOrStdout(), result, opts.format())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&eventName, "event", "", "event name (required)")
	cmd.Flags().StringVar(&eventDate, "date", "", "event date (default today)")
	cmd.Flags().StringVar(&folderName, "folder", "", "folder inside the event")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func uploadLocal(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool, eventName, eventDate, folderName string, paths []string) (*models.UploadResult, error) {
	components, err := initializeComponents(cfg, logger, debug)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	req := ingest.UploadRequest{EventName: eventName, EventDate: eventDate, FolderName: folderName}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		req.Files = append(req.Files, ingest.File{Filename: filepath.Base(p), Data: data})
	}
	return components.Ingester.Ingest(ctx, req)
}

// collectImages expands directories in args into the image files they
// contain, filtered by extension. Files named explicitly are always kept.
func collectImages(args []string, extensions []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if hasExtension(path, extensions) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func newSearchCommand(opts *globalOptions) *cobra.Command {
	var eventName string
	var threshold float64
	var limit int
	cmd := &cobra.Command{
		Use:   "search --event NAME <query>",
		Short: "Find event photos matching a description",
		Long: `Find event photos matching a description.

Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.

Examples:
  snapfind search --event "Annual Day" students dancing on stage
  snapfind search --event "Annual Day" --threshold 0.25 --limit 10 "group photo"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &models.SearchRequest{
				EventName: eventName,
				QueryText: buildSearchQuery(args),
				Limit:     limit,
			}
			if cmd.Flags().Changed("threshold") {
				req.Threshold = &threshold
			}

			var response *models.SearchResponse
			if opts.serverURL != "" {
				var err error
				response, err = newAPIClient(opts.serverURL, opts.token).search(req)
				if err != nil {
					return err
				}
			} else {
				cfg, _, logger, err := opts.setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				components, err := initializeComponents(cfg, logger, opts.debugMode(cfg))
				if err != nil {
					return err
				}
				defer components.Close()
				response, err = components.Engine.Search(cmd.Context(), req)
				if err != nil {
					return err
				}
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), response, opts.format())
		},
	}
	cmd.Flags().StringVar(&eventName, "event", "", "event to search (required)")
	cmd.Flags().Float64Var(&threshold, "threshold", config.DefaultSimilarityThreshold, "minimum similarity, inclusive")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (0 = all)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

// buildSearchQuery joins positional args into one query string.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newEventsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List events and their photo counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var events []*models.EventSummary
			err := withStore(opts, func(cfg *config.Config, store storage.PhotoStore) error {
				var err error
				events, err = store.ListEvents(cmd.Context(), cfg.College)
				return err
			}, func(c *apiClient) error {
				var err error
				events, err = c.events()
				return err
			})
			if err != nil {
				return err
			}
			return cli.WriteEvents(cmd.OutOrStdout(), events, opts.format())
		},
	}
}

func newDeleteEventCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-event <name>",
		Short: "Delete every photo of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int64
			err := withStore(opts, func(cfg *config.Config, store storage.PhotoStore) error {
				var err error
				n, err = store.DeleteEvent(cmd.Context(), cfg.College, args[0])
				return err
			}, func(c *apiClient) error {
				var err error
				n, err = c.deleteEvent(args[0])
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d photos from %q\n", n, args[0])
			return nil
		},
	}
}

// withStore runs remote against --server when set, otherwise local against the configured store.
func withStore(opts *globalOptions, local func(*config.Config, storage.PhotoStore) error, remote func(*apiClient) error) error {
	if opts.serverURL != "" {
		return remote(newAPIClient(opts.serverURL, opts.token))
	}
	cfg, _, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	store, err := storage.Open(cfg.Storage, storage.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	return local(cfg, store)
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show photo counts and storage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var status map[string]any
			err := withStore(opts, func(cfg *config.Config, store storage.PhotoStore) error {
				var err error
				status, err = localStatus(cmd.Context(), cfg, store)
				return err
			}, func(c *apiClient) error {
				var err error
				status, err = c.status()
				return err
			})
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), status, opts.jsonOutput)
		},
	}
}

func localStatus(ctx context.Context, cfg *config.Config, store storage.PhotoStore) (map[string]any, error) {
	count, err := store.CountPhotos(ctx)
	if err != nil {
		return nil, err
	}
	events, err := store.ListEvents(ctx, cfg.College)
	if err != nil {
		return nil, err
	}
	status := map[string]any{
		"college": cfg.College,
		"photos":  count,
		"events":  len(events),
		"config": map[string]any{
			"storage_driver":       cfg.Storage.Driver,
			"table":                cfg.Storage.Table,
			"object_store":         cfg.ObjectStore.Type,
			"similarity_threshold": cfg.Search.ThresholdOrDefault(),
			"embedding_provider":   cfg.Embedding.Provider,
			"watch_directories":    cfg.Watch.Directories,
		},
	}
	if cfg.Storage.Driver == config.DriverSQLite {
		if n, err := storage.DiskUsageBytes(storage.SQLiteFiles(cfg.Storage.DatabasePath)...); err == nil {
			status["disk_usage_bytes"] = n
		}
	}
	return status, nil
}

func writeStatus(w io.Writer, status map[string]any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "College: %v\n", status["college"])
	fmt.Fprintf(w, "Photos:  %v\n", status["photos"])
	fmt.Fprintf(w, "Events:  %v\n", status["events"])
	if n, ok := status["disk_usage_bytes"]; ok {
		fmt.Fprintf(w, "Disk:    %v bytes\n", n)
	}
	if cfg, ok := status["config"].(map[string]any); ok {
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\nConfig:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-22s %v\n", k, cfg[k])
		}
	}
	return nil
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage import directories of a running server",
	}
	requireServer := func() (*apiClient, error) {
		if opts.serverURL == "" {
			return nil, errors.New("watch commands need --server")
		}
		return newAPIClient(opts.serverURL, opts.token), nil
	}

	var noSync bool
	add := &cobra.Command{
		Use:   "add <dir>",
		Short: "Start importing photos from a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireServer()
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := c.watchAdd(abs, !noSync); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", abs)
			return nil
		},
	}
	add.Flags().BoolVar(&noSync, "no-sync", false, "do not import files already in the directory")

	remove := &cobra.Command{
		Use:   "remove <dir>",
		Short: "Stop importing from a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireServer()
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := c.watchRemove(abs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s\n", abs)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List import directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := requireServer()
			if err != nil {
				return err
			}
			dirs, err := c.watchList()
			if err != nil {
				return err
			}
			for _, d := range dirs {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
	cmd.AddCommand(add, remove, list)
	return cmd
}
