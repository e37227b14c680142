// Package main is the snapfind CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/cli"
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/snapfind/config.yaml"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	jsonOutput bool
	serverURL  string
	token      string
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). A missing file yields
// an environment-and-defaults config. The returned path is empty when no file
// was read, so nothing is written back.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, found, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return cfg, "", nil
	}
	return cfg, path, nil
}

// setup loads the configuration and builds the logger for a command.
func (o *globalOptions) setup() (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(o.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || o.debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, resolved, logger, nil
}

func (o *globalOptions) debugMode(cfg *config.Config) bool {
	return cfg.Debug || o.debug
}

func (o *globalOptions) format() cli.OutputFormat {
	if o.jsonOutput {
		return cli.OutputJSON
	}
	return cli.OutputText
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "snapfind",
		Short:         "Search event photos by describing them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "", "send the request to a running server (e.g. http://localhost:8080)")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SNAPFIND_TOKEN"), "bearer token for --server requests")

	root.AddCommand(
		newServerCommand(opts),
		newUploadCommand(opts),
		newSearchCommand(opts),
		newEventsCommand(opts),
		newDeleteEventCommand(opts),
		newStatusCommand(opts),
		newWatchCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "snapfind version %s\n", version)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
