package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spotmylyrics/internal/lyrics"
	logx "spotmylyrics/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteCache struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Cache, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("cache path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	c := &sqliteCache{db: db, log: log}
	if err := c.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	log.Debug("sqlite cache opened", logx.String("path", path))
	return c, nil
}

func (c *sqliteCache) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, string(b))
	return err
}

func (c *sqliteCache) Get(ctx context.Context, key lyrics.Key) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx,
		`SELECT text FROM lyrics WHERE artist = ? AND title = ?`, key.Artist, key.Title,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *sqliteCache) Put(ctx context.Context, key lyrics.Key, text string, overwrite bool) (bool, error) {
	q := `INSERT INTO lyrics(artist, title, text, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(artist, title) DO NOTHING`
	if overwrite {
		q = `INSERT INTO lyrics(artist, title, text, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(artist, title) DO UPDATE SET text=excluded.text, updated_at=excluded.updated_at`
	}
	res, err := c.db.ExecContext(ctx, q, key.Artist, key.Title, text, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *sqliteCache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(text AS BLOB))), 0) FROM lyrics`,
	).Scan(&st.Items, &st.Bytes)
	return st, err
}

func (c *sqliteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM lyrics`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.log.Info("cache cleared")
	return nil
}

func (c *sqliteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
