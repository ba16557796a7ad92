package storage

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/bessmon?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{
		db: db,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS ` + TableReadings + ` (
				id BIGSERIAL PRIMARY KEY,
				id_bess TEXT NOT NULL,
				tensao DOUBLE PRECISION NOT NULL,
				corrente DOUBLE PRECISION NOT NULL,
				potencia DOUBLE PRECISION NOT NULL,
				timestamp TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS ` + TableAlarms + ` (
				id BIGSERIAL PRIMARY KEY,
				id_bess TEXT NOT NULL,
				tipo_alarme TEXT NOT NULL,
				mensagem TEXT NOT NULL,
				timestamp TEXT NOT NULL
			)`,
		},
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}}, nil
}
