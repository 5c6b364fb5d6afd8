// Package storage provides the key-value mappings the services keep their
// state in.
//
// Map is the abstraction the registry and coordinator depend on. Three
// backends are provided:
//
//   - MemoryMap: process-local, for tests and ephemeral deployments
//   - BadgerMap: embedded persistent store (github.com/dgraph-io/badger/v2)
//   - PostgresMap: shared PostgreSQL table (github.com/lib/pq)
//
// Values are encoded as JSON by the persistent backends. Several maps can share
// one Badger database or Postgres table; each is confined to its namespace.
package storage
