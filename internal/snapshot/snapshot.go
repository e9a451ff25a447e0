// Package snapshot holds the most recently generated dashboard, optionally
// persisted to BadgerDB so a restart can serve it before the first
// regeneration finishes.
package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrEmpty is returned by Get when no dashboard has been generated yet.
var ErrEmpty = errors.New("no dashboard snapshot")

// Entry is one encoded dashboard and when it was generated.
type Entry struct {
	Data        []byte
	GeneratedAt time.Time
	Events      int
}

type record struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Events      int             `json:"events"`
	Data        json.RawMessage `json:"data"`
}

// Cache is safe for concurrent use. Entries are replaced whole and never
// modified in place.
type Cache struct {
	mu    sync.RWMutex
	entry *Entry

	db  *badger.DB
	key []byte
}

// NewMemory returns a cache that is not persisted.
func NewMemory() *Cache {
	return &Cache{}
}

// Open returns a cache persisted in a Badger database at dir, loading any
// snapshot previously stored for user.
func Open(dir, user string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db: %w", err)
	}

	c := &Cache{db: db, key: []byte("dashboard:" + user)}
	if err := c.load(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	var rec record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	c.entry = &Entry{Data: rec.Data, GeneratedAt: rec.GeneratedAt, Events: rec.Events}
	return nil
}

// Get returns the current entry, or ErrEmpty.
func (c *Cache) Get() (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Entry{}, ErrEmpty
	}
	return *c.entry, nil
}

// Replace swaps in a new entry. The entry is persisted before it becomes
// visible; on a persistence error the previous entry stays in place.
func (c *Cache) Replace(e Entry) error {
	if c.db != nil {
		data, err := json.Marshal(record{GeneratedAt: e.GeneratedAt, Events: e.Events, Data: e.Data})
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		err = c.db.Update(func(txn *badger.Txn) error {
			return txn.Set(c.key, data)
		})
		if err != nil {
			return fmt.Errorf("persisting snapshot: %w", err)
		}
	}

	c.mu.Lock()
	c.entry = &e
	c.mu.Unlock()
	return nil
}

// Invalidate drops the current entry, including its persisted copy.
func (c *Cache) Invalidate() error {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.key)
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
