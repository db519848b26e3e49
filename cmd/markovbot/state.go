package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/markovbot/pkg/markov"
	"github.com/CTAG07/markovbot/pkg/snapshot"
)

// sqliteExtensions select the SQLite backend instead of a JSON snapshot file.
var sqliteExtensions = []string{".db", ".sqlite", ".sqlite3"}

// dsnPath returns the file path of a SQLite data source, dropping any query
// parameters, e.g. "./data/bot.db?_journal_mode=WAL" gives "./data/bot.db".
func dsnPath(path string) string {
	file, _, _ := strings.Cut(path, "?")
	return file
}

func isSQLitePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(dsnPath(path)))
	for _, e := range sqliteExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// loadStore applies the store persisted at path. A missing file is not an
// error, so the first run starts from an empty store.
func loadStore(ctx context.Context, store *markov.Store, path string, overwrite bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(dsnPath(path)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if !isSQLitePath(path) {
		return snapshot.LoadFile(ctx, store, path, overwrite)
	}

	db, err := openStateDB(path)
	if err != nil {
		return err
	}
	defer func(db *sql.DB) {
		_ = db.Close()
	}(db)
	return store.LoadDB(ctx, db, overwrite)
}

// saveStore persists the whole store to path, creating parent directories.
func saveStore(ctx context.Context, store *markov.Store, path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsnPath(path)), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if !isSQLitePath(path) {
		return snapshot.SaveFile(ctx, store, path)
	}

	db, err := openStateDB(path)
	if err != nil {
		return err
	}
	defer func(db *sql.DB) {
		_ = db.Close()
	}(db)
	return store.SaveDB(ctx, db)
}

func openStateDB(path string) (*sql.DB, error) {
	db, err := initDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err = markov.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup markov schema: %w", err)
	}
	return db, nil
}
