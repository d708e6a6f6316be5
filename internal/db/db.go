package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

type Database struct {
	Conn   *sql.DB
	Driver string
}

// NewDatabase opens and pings a Postgres database.
func NewDatabase(dsn string) (*Database, error) {
	return Open(DriverPostgres, dsn)
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(path string) (*Database, error) {
	return Open(DriverSQLite, path+"?_foreign_keys=1&_journal_mode=WAL")
}

func Open(driver, dsn string) (*Database, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(25)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}
	return &Database{Conn: conn, Driver: driver}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

func (d *Database) AutoMigrate() error {
	var queries []string
	switch d.Driver {
	case DriverSQLite:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS chat_state (
            id INTEGER PRIMARY KEY,
            body TEXT NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		}
	default:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS chat_state (
            id INT PRIMARY KEY,
            body JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		}
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
