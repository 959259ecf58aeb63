package main

import (
	"context"
	"embed"
	"log/slog"
	"os"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	target, err := driver.Open(ctx, driver.Config{Kind: driver.SQLite, Database: "example.db"})
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = target.Close() }()

	m, err := scriptx.New(target.Conn, target.Backend,
		scriptx.WithCatalog(scriptx.FS(migrations, "migrations")),
		scriptx.WithLogger(logger))
	if err != nil {
		logger.Error("create migrator", "error", err)
		os.Exit(1)
	}

	if err := m.Migrate(ctx); err != nil {
		os.Exit(1)
	}
}
