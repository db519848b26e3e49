//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// initDB opens a SQLite state database with the sqlite driver.
func initDB(dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	// The state is read and written in whole-store transactions; one connection is enough.
	db.SetMaxOpenConns(1)
	return db, nil
}
