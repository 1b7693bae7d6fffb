package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andreyvit/tupledb"
	"github.com/andreyvit/tupledb/pebblestore"
)

const (
	backendBolt   = "bolt"
	backendPebble = "pebble"
	backendMemory = "memory"
)

var validBackends = []string{backendBolt, backendPebble, backendMemory}

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Backend              string
	Path                 string
	Verbose              bool
	ConfigFile           string
	MaxIndexerIterations int
}

// fileConfig is the YAML config file layout.
type fileConfig struct {
	Backend              string `yaml:"backend"`
	Path                 string `yaml:"path"`
	Verbose              *bool  `yaml:"verbose"`
	MaxIndexerIterations int    `yaml:"max_indexer_iterations"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolve merges the config file into opts. Flags given on the command line
// take precedence.
func (opts *rootOptions) resolve(cmd *cobra.Command) error {
	if opts.ConfigFile != "" {
		cfg, err := loadFileConfig(opts.ConfigFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if cfg.Backend != "" && !flags.Changed("backend") {
			opts.Backend = cfg.Backend
		}
		if cfg.Path != "" && !flags.Changed("db") {
			opts.Path = cfg.Path
		}
		if cfg.Verbose != nil && !flags.Changed("verbose") {
			opts.Verbose = *cfg.Verbose
		}
		if cfg.MaxIndexerIterations != 0 {
			opts.MaxIndexerIterations = cfg.MaxIndexerIterations
		}
	}

	if !isValidBackend(opts.Backend) {
		return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, validBackends)
	}
	if opts.Backend != backendMemory && opts.Path == "" {
		return fmt.Errorf("--db is required for the %s backend", opts.Backend)
	}
	return nil
}

func isValidBackend(name string) bool {
	for _, b := range validBackends {
		if b == name {
			return true
		}
	}
	return false
}

func (opts *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}

func (opts *rootOptions) openStore(cmd *cobra.Command) (*tupledb.Store, error) {
	var backend tupledb.Backend
	var err error
	switch opts.Backend {
	case backendBolt:
		backend, err = tupledb.OpenBolt(opts.Path, tupledb.BoltOptions{})
	case backendPebble:
		backend, err = pebblestore.Open(opts.Path, pebblestore.Options{})
	case backendMemory:
		backend = tupledb.NewMemBackend()
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", opts.Backend, err)
	}

	logger := opts.logger(cmd)
	logger.Debug("opened database", "backend", opts.Backend, "path", opts.Path)
	store, err := tupledb.Open(backend, tupledb.Options{
		Logger:               logger,
		Verbose:              opts.Verbose,
		MaxIndexerIterations: opts.MaxIndexerIterations,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}
