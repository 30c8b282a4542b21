package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/tinylib/msgp/msgp"

	"github.com/benjaminschubert/offcache/internal/logging"
)

var (
	ErrKeyNotFound = badger.ErrKeyNotFound
	ErrNoRewrite   = badger.ErrNoRewrite
	ErrConflict    = errors.New("trying to update an entry that got updated already")
)

type encodable interface {
	msgp.Marshaler
}

type Ptr[T encodable] interface {
	*T
	msgp.Unmarshaler
}

type Entry[T any] struct {
	Value   T
	version uint64
}

// KV is a key and its value, as written by Table.SetAll.
type KV[T any] struct {
	Key   string
	Value T
}

type Database struct {
	db *badger.DB
}

func Open(path string, logger *zerolog.Logger) (*Database, error) {
	badgerDB, err := badger.Open(
		badger.DefaultOptions(path).
			WithLogger(logging.NewStorageLogger(logger, "database", zerolog.WarnLevel)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open the database, it might be corrupted: %w", err)
	}

	return &Database{badgerDB}, nil
}

func (d *Database) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("unable to close the database, it might be corrupted: %w", err)
	}
	return nil
}

func (d *Database) GetStatistics() (lsmSize, vlogSize int64) {
	return d.db.Size()
}

func (d *Database) RunGarbageCollector() error {
	return d.db.RunValueLogGC(0.5)
}

// Table is a typed view over every key of the database sharing a prefix.
type Table[T encodable, TPtr Ptr[T]] struct {
	db     *badger.DB
	prefix []byte
}

func NewTable[T encodable, TPtr Ptr[T]](d *Database, prefix string) *Table[T, TPtr] {
	return &Table[T, TPtr]{d.db, []byte(prefix)}
}

func (t *Table[T, TPtr]) key(key string) []byte {
	k := make([]byte, 0, len(t.prefix)+len(key))
	k = append(k, t.prefix...)
	return append(k, key...)
}

func (t *Table[T, TPtr]) decode(item *badger.Item) (*Entry[T], error) {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("unexpected error extracting value: %w", err)
	}

	var value TPtr = new(T)
	if _, err := value.UnmarshalMsg(val); err != nil {
		return nil, fmt.Errorf(
			"entry in the database is not of the correct format, this should not happen: %w",
			err,
		)
	}

	return &Entry[T]{*value, item.Version()}, nil
}

func (t *Table[T, TPtr]) Get(key string) (*Entry[T], error) {
	var entry *Entry[T]

	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(t.key(key))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("unexpected error loading key: %w", err)
		}

		entry, err = t.decode(item)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("unable to load key: %w", err)
	}

	return entry, nil
}

// Save writes the entry, failing with ErrConflict if it got modified since it
// was read.
func (t *Table[T, TPtr]) Save(key string, entry *Entry[T]) error {
	data, err := entry.Value.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf(
			"entry in the database is not of the correct format, this should not happen: %w",
			err,
		)
	}

	err = t.db.Update(func(txn *badger.Txn) error {
		k := t.key(key)

		item, err := txn.Get(k)
		if err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("unable to check for previous entry with same key: %w", err)
			}
		} else if item.Version() != entry.version {
			return ErrConflict
		}

		return txn.Set(k, data)
	})
	if err != nil {
		return fmt.Errorf("unable to save entry in database: %w", err)
	}
	return nil
}

// New creates the entry, failing with ErrConflict if the key exists already.
func (t *Table[T, TPtr]) New(key string, value T) error {
	return t.Save(key, &Entry[T]{Value: value})
}

// Set writes the value, replacing whatever was there before.
func (t *Table[T, TPtr]) Set(key string, value T) error {
	return t.SetAll([]KV[T]{{key, value}})
}

// SetAll writes every value in a single transaction: either all of them are
// visible afterwards or none is.
func (t *Table[T, TPtr]) SetAll(values []KV[T]) error {
	encoded := make([][]byte, len(values))
	for i, kv := range values {
		data, err := kv.Value.MarshalMsg(nil)
		if err != nil {
			return fmt.Errorf(
				"entry in the database is not of the correct format, this should not happen: %w",
				err,
			)
		}
		encoded[i] = data
	}

	err := t.db.Update(func(txn *badger.Txn) error {
		for i, kv := range values {
			if err := txn.Set(t.key(kv.Key), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unable to save entries in database: %w", err)
	}
	return nil
}

func (t *Table[T, TPtr]) Delete(key string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		k := t.key(key)
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("unable to delete entry from database: %w", err)
	}
	return nil
}

// DropPrefix removes every key of the table starting with prefix.
func (t *Table[T, TPtr]) DropPrefix(prefix string) error {
	if err := t.db.DropPrefix(t.key(prefix)); err != nil {
		return fmt.Errorf("unable to drop entries from database: %w", err)
	}
	return nil
}

// Iterate calls fn for every key of the table starting with prefix, in key
// order. The key passed to fn has the table prefix stripped.
func (t *Table[T, TPtr]) Iterate(
	ctx context.Context,
	prefix string,
	fn func(key string, entry *Entry[T]) error,
) error {
	return t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = t.key(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			entry, err := t.decode(item)
			if err != nil {
				return err
			}

			key := string(bytes.TrimPrefix(item.KeyCopy(nil), t.prefix))
			if err := fn(key, entry); err != nil {
				return err
			}
		}

		return nil
	})
}
