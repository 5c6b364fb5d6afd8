package storage

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oasislabs/ready-layer-two/audit"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Locator string `json:"locator"`
	Key     []byte `json:"key"`
}

func runMapContract(t *testing.T, newMap func(t *testing.T, namespace string) Map[entry]) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		m := newMap(t, "missing")
		_, found, err := m.Get(ctx, "alice")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("insert overwrites", func(t *testing.T) {
		m := newMap(t, "overwrite")
		require.NoError(t, m.Insert(ctx, "alice", entry{Locator: "file:///a1", Key: []byte{1}}))
		require.NoError(t, m.Insert(ctx, "alice", entry{Locator: "file:///a2", Key: []byte{2}}))

		got, found, err := m.Get(ctx, "alice")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, entry{Locator: "file:///a2", Key: []byte{2}}, got)
	})

	t.Run("insert new conflicts", func(t *testing.T) {
		m := newMap(t, "unique")
		require.NoError(t, m.InsertNew(ctx, "alice", entry{Locator: "first"}))

		err := m.InsertNew(ctx, "alice", entry{Locator: "second"})
		require.ErrorIs(t, err, ErrKeyExists)

		got, _, err := m.Get(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "first", got.Locator)

		// keys are case-sensitive
		require.NoError(t, m.InsertNew(ctx, "Alice", entry{Locator: "third"}))
	})

	t.Run("iterate", func(t *testing.T) {
		m := newMap(t, "iterate")
		require.NoError(t, m.Insert(ctx, "alice", entry{Locator: "a"}))
		require.NoError(t, m.Insert(ctx, "bob", entry{Locator: "b"}))

		all, err := Collect[entry](ctx, m)
		require.NoError(t, err)
		require.Equal(t, map[string]entry{
			"alice": {Locator: "a"},
			"bob":   {Locator: "b"},
		}, all)

		stop := errors.New("stop")
		calls := 0
		err = m.Iterate(ctx, func(string, entry) error {
			calls++
			return stop
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, 1, calls)
	})
}

func TestMemoryMap(t *testing.T) {
	runMapContract(t, func(t *testing.T, _ string) Map[entry] {
		return NewMemoryMap[entry]()
	})
}

func TestBadgerMap(t *testing.T) {
	db, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runMapContract(t, func(t *testing.T, namespace string) Map[entry] {
		return NewBadgerMap[entry](db, namespace)
	})
}

func TestBadgerMap_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()

	db, err := OpenBadger("")
	require.NoError(t, err)
	defer db.Close()

	accounts := NewBadgerMap[entry](db, "accounts")
	submissions := NewBadgerMap[entry](db, "submissions")

	require.NoError(t, accounts.Insert(ctx, "alice", entry{Locator: "account"}))
	require.NoError(t, submissions.InsertNew(ctx, "alice", entry{Locator: "submission"}))

	all, err := Collect[entry](ctx, submissions)
	require.NoError(t, err)
	require.Equal(t, map[string]entry{"alice": {Locator: "submission"}}, all)
}

func TestBadgerFactLog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := OpenBadger(dir)
	require.NoError(t, err)

	// Maps sharing the database do not show up as facts.
	require.NoError(t, NewBadgerMap[entry](db, "submissions").Insert(ctx, "alice", entry{Locator: "m"}))

	log, err := NewBadgerFactLog(db)
	require.NoError(t, err)
	facts, err := log.Facts(ctx)
	require.NoError(t, err)
	require.Empty(t, facts)

	winners := []string{"alice", "bob"}
	for _, w := range winners {
		require.NoError(t, log.Record(ctx, audit.Fact{ID: uuid.New(), Kind: audit.KindCompetitionCompleted, Winner: w}))
	}
	require.NoError(t, db.Close())

	db, err = OpenBadger(dir)
	require.NoError(t, err)
	defer db.Close()

	log, err = NewBadgerFactLog(db)
	require.NoError(t, err)
	require.NoError(t, log.Record(ctx, audit.Fact{ID: uuid.New(), Kind: audit.KindCompetitionCompleted, Winner: "carol"}))

	facts, err = log.Facts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	for i, w := range []string{"alice", "bob", "carol"} {
		require.Equal(t, w, facts[i].Winner)
	}
}

func postgresConfigFromEnv(t *testing.T) *PostgresConfig {
	t.Helper()

	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("TEST_POSTGRES_HOST not set")
	}
	port, err := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT"))
	if err != nil {
		port = 5432
	}
	return &PostgresConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_POSTGRES_USER"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
		Database: os.Getenv("TEST_POSTGRES_DB"),
	}
}

func TestPostgresMap(t *testing.T) {
	store, err := NewPostgresStore(postgresConfigFromEnv(t))
	require.NoError(t, err)
	defer store.Close()

	runMapContract(t, func(t *testing.T, namespace string) Map[entry] {
		return NewPostgresMap[entry](store, namespace+"-"+uuid.NewString()[:8])
	})
}

func TestPostgresFactLog(t *testing.T) {
	store, err := NewPostgresStore(postgresConfigFromEnv(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	log := store.FactLog()

	fact := audit.Fact{
		ID:         uuid.New(),
		Kind:       audit.KindCompetitionCompleted,
		Winner:     "alice",
		RecordedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, log.Record(ctx, fact))

	facts, err := log.Facts(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, facts)

	last := facts[len(facts)-1]
	require.Equal(t, fact.ID, last.ID)
	require.Equal(t, "alice", last.Winner)
	require.True(t, fact.RecordedAt.Equal(last.RecordedAt))
}

func TestNewPostgresStore_Unreachable(t *testing.T) {
	// Nothing listens on port 1; the half-open connection pool is released.
	store, err := NewPostgresStore(&PostgresConfig{Host: "127.0.0.1", Port: 1, User: "u", Database: "d"})
	require.ErrorContains(t, err, "pinging database")
	require.Nil(t, store)
}

func TestPostgresConfig_ConnectionString(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "competition"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=competition sslmode=disable", cfg.ConnectionString())

	cfg.SSLMode = "require"
	require.Contains(t, cfg.ConnectionString(), "sslmode=require")
}
