package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v2"
	"github.com/oasislabs/ready-layer-two/audit"
)

// OpenBadger opens (or creates) a Badger database at path.
// An empty path opens an in-memory database.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", path, err)
	}
	return db, nil
}

// BadgerMap implements Map on top of a Badger database.
type BadgerMap[V any] struct {
	db     *badger.DB
	prefix []byte
}

// NewBadgerMap returns a map confined to namespace within db.
func NewBadgerMap[V any](db *badger.DB, namespace string) *BadgerMap[V] {
	return &BadgerMap[V]{
		db:     db,
		prefix: []byte(namespace + "/"),
	}
}

func (m *BadgerMap[V]) key(k string) []byte {
	out := make([]byte, 0, len(m.prefix)+len(k))
	out = append(out, m.prefix...)
	return append(out, k...)
}

func (m *BadgerMap[V]) Get(_ context.Context, key string) (V, bool, error) {
	var (
		value V
		found bool
	)
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &value)
		})
	})
	return value, found, err
}

func (m *BadgerMap[V]) Insert(_ context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(m.key(key), raw)
	})
}

func (m *BadgerMap[V]) InsertNew(_ context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	return m.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(m.key(key))
		if err == nil {
			return ErrKeyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(m.key(key), raw)
	})
}

func (m *BadgerMap[V]) Iterate(_ context.Context, fn func(key string, value V) error) error {
	return m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = m.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(m.prefix); it.ValidForPrefix(m.prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(m.prefix):])

			var value V
			if err := item.Value(func(raw []byte) error {
				return json.Unmarshal(raw, &value)
			}); err != nil {
				return fmt.Errorf("decoding %q: %w", key, err)
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

var factPrefix = []byte("audit_facts/")

// BadgerFactLog is an append-only audit.Sink kept under the audit_facts/ prefix.
// Keys are big-endian sequence numbers so iteration returns facts in record order.
type BadgerFactLog struct {
	db *badger.DB

	mu   sync.Mutex
	next uint64
}

// NewBadgerFactLog opens the fact log in db, continuing after the last recorded fact.
func NewBadgerFactLog(db *badger.DB) (*BadgerFactLog, error) {
	l := &BadgerFactLog{db: db}
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = factPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(bytes.Clone(factPrefix), 0xff))
		if it.ValidForPrefix(factPrefix) {
			l.next = binary.BigEndian.Uint64(it.Item().Key()[len(factPrefix):]) + 1
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading fact log: %w", err)
	}
	return l, nil
}

func (l *BadgerFactLog) Record(_ context.Context, fact audit.Fact) error {
	raw, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("encoding fact: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := binary.BigEndian.AppendUint64(bytes.Clone(factPrefix), l.next)
	if err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	}); err != nil {
		return err
	}
	l.next++
	return nil
}

func (l *BadgerFactLog) Facts(_ context.Context) ([]audit.Fact, error) {
	var facts []audit.Fact
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = factPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(factPrefix); it.ValidForPrefix(factPrefix); it.Next() {
			var fact audit.Fact
			if err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &fact)
			}); err != nil {
				return fmt.Errorf("decoding fact: %w", err)
			}
			facts = append(facts, fact)
		}
		return nil
	})
	return facts, err
}
