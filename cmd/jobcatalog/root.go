package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/logging"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobcatalog",
	Short: "Job posting catalog: collect, normalize, deduplicate, search",
	Long:  "jobcatalog collects postings from job boards, normalizes and deduplicates them into a searchable catalog.",
	// Default to `start` so that `jobcatalog` with no args runs the daemon.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBCATALOG_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBCATALOG_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	if path == "" {
		if env := os.Getenv("JOBCATALOG_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setup loads config and builds the logger every command starts from.
// The returned cleanup closes the log file, if any.
func setup() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := logging.New(os.Stdout, logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Debug:  debug,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}
