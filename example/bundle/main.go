package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver"
)

const txt = `---- 1 Creating table posts
CREATE TABLE posts (
	id INT,
	title VARCHAR(255),
	PRIMARY KEY (id)
);

---- 2 Adding column body
ALTER TABLE posts ADD COLUMN body TEXT;`

func main() {
	ctx := context.Background()

	target, err := driver.Open(ctx, driver.Config{Kind: driver.SQLite})
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = target.Close() }()

	m, _ := scriptx.New(target.Conn, target.Backend,
		scriptx.WithCatalog(scriptx.Bundle(txt)),
		scriptx.WithLogger(slog.Default()))

	if err := m.Migrate(ctx); err != nil {
		os.Exit(1)
	}
}
