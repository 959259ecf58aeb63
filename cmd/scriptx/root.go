package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver"
	"github.com/Doomsta/scriptx/internal/config"
)

var (
	configPath string
	dbURL      string
	dir        string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "scriptx",
	Short:         "scriptx applies versioned SQL scripts to a database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: scriptx.yaml found from the working directory up)")
	flags.StringVar(&dbURL, "db", "", "database URL, overrides database.url")
	flags.StringVar(&dir, "dir", "", "migrations directory, overrides migrations.dir")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug events")
}

func loadConfig() (*config.Config, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, configError("loading config", err)
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if dir != "" {
		cfg.Migrations.Dir = dir
	}
	return cfg, nil
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session is an open target with a Migrator bound to it
type session struct {
	target   *driver.Target
	migrator *scriptx.Migrator
}

func (s *session) Close() {
	_ = s.target.Close()
}

// openSession connects to the configured database. extra options are applied
// after the ones derived from cfg.
func openSession(ctx context.Context, cfg *config.Config, extra ...scriptx.Option) (*session, error) {
	dc, err := cfg.Driver()
	if err != nil {
		return nil, configError("invalid config", err)
	}
	policy, err := dc.Policy()
	if err != nil {
		return nil, configError("invalid config", err)
	}

	target, err := driver.Open(ctx, dc)
	if err != nil {
		return nil, classify("opening database", err)
	}

	options := append([]scriptx.Option{
		scriptx.WithDirectory(cfg.Migrations.Dir),
		scriptx.WithMaxAttempts(cfg.Migrations.MaxAttempts),
		scriptx.WithPolicy(policy),
	}, extra...)
	m, err := scriptx.New(target.Conn, target.Backend, options...)
	if err != nil {
		_ = target.Close()
		return nil, configError("invalid config", err)
	}
	return &session{target: target, migrator: m}, nil
}
