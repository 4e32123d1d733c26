// Package badgerstore implements storage.Store on an embedded Badger database.
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/xtrntr/bazaar/internal/storage"
)

// Key prefixes. Index keys use big-endian uint64 so iteration follows index order.
var (
	prefixTrader    = []byte("trader/acct/")
	prefixTraderIdx = []byte("trader/idx/")
	prefixTrade     = []byte("trade/")
	prefixOpen      = []byte("open/")
	prefixSeq       = []byte("seq/")
	prefixBalance   = []byte("bal/")
	prefixCred      = []byte("cred/")
	keyGenesis      = []byte("meta/genesis")
)

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
	// Logger receives Badger's internal logs. Nil silences them.
	Logger badger.Logger
}

// Store is a Badger-backed storage.Store
type Store struct {
	db *badger.DB
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("badger path is required: %w", storage.ErrInvalidInput)
	}

	bopts := badger.DefaultOptions(opts.Path).WithLogger(opts.Logger)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(opts.Logger)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

// Atomic runs fn in a read-write transaction, replaying it on write conflicts.
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	return storage.Retry(ctx, func() error {
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(&tx{txn: txn})
		})
		if errors.Is(err, badger.ErrConflict) {
			return storage.ErrConflict
		}
		return err
	})
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// tx adapts one badger transaction to storage.Tx
type tx struct {
	txn *badger.Txn
}

func key(prefix []byte, suffix []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(suffix))
	k = append(k, prefix...)
	return append(k, suffix...)
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (t *tx) get(k []byte) ([]byte, error) {
	item, err := t.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", k, err)
	}
	return item.ValueCopy(nil)
}

func (t *tx) exists(k []byte) (bool, error) {
	_, err := t.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %q: %w", k, err)
	}
	return true, nil
}

func (t *tx) getJSON(k []byte, v any) error {
	raw, err := t.get(k)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", k, err)
	}
	return nil
}

func (t *tx) putJSON(k []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", k, err)
	}
	return t.set(k, raw)
}

func (t *tx) set(k, v []byte) error {
	if err := t.txn.Set(k, v); err != nil {
		return fmt.Errorf("failed to set %q: %w", k, err)
	}
	return nil
}

func (t *tx) getUint64(k []byte) (uint64, error) {
	raw, err := t.get(k)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("counter %q has %d bytes", k, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// scan calls fn for every key/value under prefix in key order.
func (t *tx) scan(prefix []byte, fn func(k, v []byte) error) error {
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", item.Key(), err)
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}
