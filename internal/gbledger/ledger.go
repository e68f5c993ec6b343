// Package gbledger persists the resource system's ID seed across process
// restarts using Badger, so freshly minted resource IDs never collide with
// ones a previous run handed out for durable resources. Grounded on
// ternarybob-quaero/internal/storage/badger/connection.go's open/close
// lifecycle (config struct, directory creation, reset-on-startup, arbor
// logging), adapted from its badgerhold wrapper to the raw
// github.com/dgraph-io/badger/v4 API.
package gbledger

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
)

var logger = arbor.NewLogger()

var seedKey = []byte("gbresource:id_seed")

// Config configures the durable seed store.
type Config struct {
	Path           string // database directory
	ResetOnStartup bool   // delete any existing database before opening
}

// Store persists a single uint64 high-water-mark under a fixed key. It
// implements gbresource.IDSeedStore (LoadSeed/SaveSeed) without importing
// gbresource, keeping the dependency direction one-way.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the Badger database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.ResetOnStartup {
		if _, err := os.Stat(cfg.Path); err == nil {
			logger.Debug().Str("path", cfg.Path).Msg("gbledger: deleting existing database (reset_on_startup)")
			if err := os.RemoveAll(cfg.Path); err != nil {
				logger.Warn().Err(err).Str("path", cfg.Path).Msg("gbledger: failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("gbledger: creating database directory: %w", err)
	}

	logger.Debug().Str("path", cfg.Path).Msg("gbledger: opening database")
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gbledger: opening database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadSeed returns the last saved seed, or ok=false if none has ever been
// saved.
func (s *Store) LoadSeed() (uint64, bool, error) {
	var seed uint64
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(seedKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("gbledger: corrupt seed value (%d bytes)", len(val))
			}
			seed = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("gbledger: loading seed: %w", err)
	}
	return seed, found, nil
}

// SaveSeed persists seed, overwriting whatever was saved before.
func (s *Store) SaveSeed(seed uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seed)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seedKey, buf[:])
	})
	if err != nil {
		return fmt.Errorf("gbledger: saving seed: %w", err)
	}
	return nil
}
