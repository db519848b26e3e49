package markov

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// SetupSchema initializes the tables used by SaveDB and LoadDB in the provided
// database. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaDatabases = `
CREATE TABLE IF NOT EXISTS markov_databases (
    database_id INTEGER PRIMARY KEY,
    database_name TEXT NOT NULL UNIQUE
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    database_id INTEGER NOT NULL,
    w1 TEXT NOT NULL,
    w2 TEXT NOT NULL,
    position INTEGER NOT NULL,
    successor TEXT NOT NULL,
    PRIMARY KEY (database_id, w1, w2, position)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaDatabases); err != nil {
		return fmt.Errorf("could not create databases schema: %w", err)
	}

	if _, err = tx.Exec(schemaChains); err != nil {
		return fmt.Errorf("could not create chains schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// SaveDB replaces everything previously saved in db with the current contents
// of the store. The operation is performed within a transaction.
func (s *Store) SaveDB(ctx context.Context, db *sql.DB) error {
	snap := s.Snapshot()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains"); err != nil {
		return fmt.Errorf("failed to clear chains: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_databases"); err != nil {
		return fmt.Errorf("failed to clear databases: %w", err)
	}

	stmtInsertDatabase, err := tx.PrepareContext(ctx, `INSERT INTO markov_databases (database_name) VALUES (?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare database insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertDatabase)

	stmtInsertChain, err := tx.PrepareContext(ctx, `INSERT INTO markov_chains (database_id, w1, w2, position, successor) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChain)

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	var rowCount int
	for _, name := range names {
		res, err := stmtInsertDatabase.ExecContext(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to insert database '%s': %w", name, err)
		}
		databaseID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read id of database '%s': %w", name, err)
		}

		for k, list := range snap[name] {
			for pos, next := range list {
				if _, err = stmtInsertChain.ExecContext(ctx, databaseID, k[0], k[1], pos, next); err != nil {
					return fmt.Errorf("failed to insert chain link (%s %s -> %s): %w", k[0], k[1], next, err)
				}
				rowCount++
			}
		}
	}

	s.logger.InfoContext(ctx, "Store saved to database",
		slog.Int("databases_saved", len(names)),
		slog.Int("transitions_saved", rowCount),
	)

	return tx.Commit()
}

// LoadDB reads a store previously written by SaveDB and applies it with Load.
func (s *Store) LoadDB(ctx context.Context, db *sql.DB, overwrite bool) error {
	rows, err := db.QueryContext(ctx, `
		SELECT d.database_name, c.w1, c.w2, c.successor
		FROM markov_databases d
		LEFT JOIN markov_chains c ON c.database_id = d.database_id
		ORDER BY d.database_id, c.w1, c.w2, c.position;
	`)
	if err != nil {
		return fmt.Errorf("could not query chains for load: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	snap := make(Snapshot)
	var rowCount int
	for rows.Next() {
		var name string
		var w1, w2, next sql.NullString
		if err = rows.Scan(&name, &w1, &w2, &next); err != nil {
			return err
		}
		idx, ok := snap[name]
		if !ok {
			idx = Index{}
			snap[name] = idx
		}
		// A database without chains still comes back as one row of NULLs.
		if !next.Valid {
			continue
		}
		k := Key{w1.String, w2.String}
		idx[k] = append(idx[k], next.String)
		rowCount++
	}
	if err = rows.Err(); err != nil {
		return err
	}

	s.Load(snap, overwrite)

	s.logger.InfoContext(ctx, "Store loaded from database",
		slog.Bool("overwrite", overwrite),
		slog.Int("databases_loaded", len(snap)),
		slog.Int("transitions_loaded", rowCount),
	)
	return nil
}
