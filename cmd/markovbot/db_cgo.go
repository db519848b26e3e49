//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens a SQLite state database with the sqlite3 driver.
func initDB(dataSource string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSource)
	if err != nil {
		return nil, err
	}
	// The state is read and written in whole-store transactions; one connection is enough.
	db.SetMaxOpenConns(1)
	return db, nil
}
