package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"relay-chat/internal/db"
)

// Memory keeps nothing beyond the process lifetime.
type Memory struct{}

func (Memory) Load(context.Context) (*Document, error) { return nil, nil }
func (Memory) Save(context.Context, *Document) error { return nil }
func (Memory) Close() error { return nil }

// File writes the document as indented JSON. Writes go to a temp file in
// the same directory which is then renamed over the target.
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Load(_ context.Context) (*Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return doc, nil
}

func (f *File) Save(_ context.Context, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

func (f *File) Close() error { return nil }

// Redis stores the document under a single key.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) Load(ctx context.Context) (*Document, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode redis key %s: %w", r.key, err)
	}
	return doc, nil
}

func (r *Redis) Save(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// SQL keeps the document in the single row of the chat_state table, on
// Postgres (JSONB) or SQLite (TEXT).
type SQL struct {
	database *db.Database
}

const stateRowID = 1

func NewSQL(database *db.Database) (*SQL, error) {
	if err := database.AutoMigrate(); err != nil {
		return nil, err
	}
	return &SQL{database: database}, nil
}

func (s *SQL) Load(ctx context.Context) (*Document, error) {
	query := "SELECT body FROM chat_state WHERE id = $1"
	if s.database.Driver == db.DriverSQLite {
		query = "SELECT body FROM chat_state WHERE id = ?"
	}

	var body []byte
	err := s.database.Conn.QueryRowContext(ctx, query, stateRowID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	doc := &Document{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("decode chat_state: %w", err)
	}
	return doc, nil
}

func (s *SQL) Save(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	query := `INSERT INTO chat_state (id, body, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = CURRENT_TIMESTAMP`
	if s.database.Driver == db.DriverSQLite {
		query = `INSERT INTO chat_state (id, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`
	}

	_, err = s.database.Conn.ExecContext(ctx, query, stateRowID, string(data))
	return err
}

func (s *SQL) Close() error {
	return s.database.Close()
}
