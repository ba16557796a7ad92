package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:bess_dados.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection also keeps
	// in-memory databases alive across calls.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{
		db: db,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS ` + TableReadings + ` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				id_bess TEXT NOT NULL,
				tensao REAL NOT NULL,
				corrente REAL NOT NULL,
				potencia REAL NOT NULL,
				timestamp TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS ` + TableAlarms + ` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				id_bess TEXT NOT NULL,
				tipo_alarme TEXT NOT NULL,
				mensagem TEXT NOT NULL,
				timestamp TEXT NOT NULL
			)`,
		},
		placeholder: func(int) string { return "?" },
	}}, nil
}
