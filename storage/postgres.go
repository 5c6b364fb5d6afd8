package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/oasislabs/ready-layer-two/audit"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// PostgresStore owns the database connection shared by Postgres-backed maps
// and the fact log.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and runs migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		namespace VARCHAR(64) NOT NULL,
		key TEXT NOT NULL,
		value JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (namespace, key)
	);

	CREATE TABLE IF NOT EXISTS audit_facts (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		kind VARCHAR(64) NOT NULL,
		winner TEXT NOT NULL,
		recorded_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// PostgresMap implements Map on the kv_entries table.
type PostgresMap[V any] struct {
	db        *sql.DB
	namespace string
}

// NewPostgresMap returns a map confined to namespace.
func NewPostgresMap[V any](store *PostgresStore, namespace string) *PostgresMap[V] {
	return &PostgresMap[V]{db: store.db, namespace: namespace}
}

func (m *PostgresMap[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var (
		value V
		raw   []byte
	)
	err := m.db.QueryRowContext(ctx,
		"SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2",
		m.namespace, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return value, true, nil
}

func (m *PostgresMap[V]) Insert(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	query := `
	INSERT INTO kv_entries (namespace, key, value, updated_at)
	VALUES ($1, $2, $3::jsonb, NOW())
	ON CONFLICT (namespace, key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = NOW()
	`
	_, err = m.db.ExecContext(ctx, query, m.namespace, key, string(raw))
	return err
}

func (m *PostgresMap[V]) InsertNew(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	res, err := m.db.ExecContext(ctx, `
	INSERT INTO kv_entries (namespace, key, value)
	VALUES ($1, $2, $3::jsonb)
	ON CONFLICT (namespace, key) DO NOTHING
	`, m.namespace, key, string(raw))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyExists
	}
	return nil
}

func (m *PostgresMap[V]) Iterate(ctx context.Context, fn func(key string, value V) error) error {
	rows, err := m.db.QueryContext(ctx,
		"SELECT key, value FROM kv_entries WHERE namespace = $1 ORDER BY key",
		m.namespace,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		var value V
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	return rows.Err()
}

// PostgresFactLog is an append-only audit.Sink on the audit_facts table.
type PostgresFactLog struct {
	db *sql.DB
}

// FactLog returns the store's fact log.
func (s *PostgresStore) FactLog() *PostgresFactLog {
	return &PostgresFactLog{db: s.db}
}

func (l *PostgresFactLog) Record(ctx context.Context, fact audit.Fact) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO audit_facts (id, kind, winner, recorded_at) VALUES ($1, $2, $3, $4)",
		fact.ID.String(), fact.Kind, fact.Winner, fact.RecordedAt,
	)
	return err
}

func (l *PostgresFactLog) Facts(ctx context.Context) ([]audit.Fact, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, kind, winner, recorded_at FROM audit_facts ORDER BY seq",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []audit.Fact
	for rows.Next() {
		var (
			id   string
			fact audit.Fact
		)
		if err := rows.Scan(&id, &fact.Kind, &fact.Winner, &fact.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if fact.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing fact id: %w", err)
		}
		facts = append(facts, fact)
	}

	return facts, rows.Err()
}
