// Copyright 2025 Govex DAO
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blob provides the Badger-backed blob store used for action bundle
// payloads and other opaque values. Runs in-memory when no data directory is
// given.
package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/govex-dao/futarchy/database/types"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// badgerTxn wraps a badger transaction and implements types.Txn
type badgerTxn struct {
	store    *Store
	tx       *badger.Txn
	finished bool
}

func (t *badgerTxn) Commit() error {
	if t.finished {
		return nil
	}
	if t.tx == nil {
		t.finished = true
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.finished = true
	return nil
}

func (t *badgerTxn) Rollback() error {
	if t.finished {
		return nil
	}
	if t.tx != nil {
		t.tx.Discard()
	}
	t.finished = true
	return nil
}

// Store stores opaque values in badger. Data is not persisted when running
// in-memory.
type Store struct {
	db        *badger.DB
	logger    *slog.Logger
	gcTicker  *time.Ticker
	gcStopCh  chan struct{}
	gcWg      sync.WaitGroup
	dataDir   string
	gcEnabled bool
}

// New creates a new blob store under dataDir, or in-memory when dataDir is
// empty
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		dataDir: dataDir,
		logger:  logger,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var blobDb *badger.DB
	var err error
	if dataDir == "" {
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(s.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		blobDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		blobDir := filepath.Join(dataDir, "blob")
		badgerOpts := badger.DefaultOptions(blobDir).
			WithLogger(newBadgerLogger(s.logger)).
			WithLoggingLevel(badger.WARNING).
			WithCompression(options.Snappy)
		blobDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
		// GC only makes sense for disk-backed stores
		s.gcEnabled = true
	}
	s.db = blobDb
	if s.gcEnabled {
		s.gcTicker = time.NewTicker(5 * time.Minute)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.blobGc(s.gcTicker, s.gcStopCh)
	}
	return s, nil
}

func (s *Store) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := s.db.RunValueLogGC(0.5)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// Close stops the GC goroutine and closes the database handle
func (s *Store) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		if s.gcStopCh != nil {
			close(s.gcStopCh)
			s.gcStopCh = nil
		}
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	return s.db.Close()
}

// DB returns the database handle
func (s *Store) DB() *badger.DB {
	return s.db
}

// NewTransaction creates a new badger transaction
func (s *Store) NewTransaction(update bool) types.Txn {
	return &badgerTxn{store: s, tx: s.db.NewTransaction(update)}
}

// validateTxn validates a types.Txn for this store and returns the
// underlying *badgerTxn if valid.
func (s *Store) validateTxn(txn types.Txn) (*badgerTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	bTxn, ok := txn.(*badgerTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if bTxn.store != s {
		return nil, errors.New("transaction from different store")
	}
	if bTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	if bTxn.tx == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	return bTxn, nil
}

// Get retrieves a value within a transaction
func (s *Store) Get(txn types.Txn, key []byte) ([]byte, error) {
	bTxn, err := s.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	item, err := bTxn.tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a key-value pair within a transaction
func (s *Store) Set(txn types.Txn, key, val []byte) error {
	bTxn, err := s.validateTxn(txn)
	if err != nil {
		return err
	}
	return bTxn.tx.Set(key, val)
}

// Delete removes a key within a transaction
func (s *Store) Delete(txn types.Txn, key []byte) error {
	bTxn, err := s.validateTxn(txn)
	if err != nil {
		return err
	}
	return bTxn.tx.Delete(key)
}

// DeletePrefix removes all keys under a prefix within a transaction
func (s *Store) DeletePrefix(txn types.Txn, prefix []byte) error {
	bTxn, err := s.validateTxn(txn)
	if err != nil {
		return err
	}
	iterOpts := badger.IteratorOptions{Prefix: prefix}
	iter := bTxn.tx.NewIterator(iterOpts)
	defer iter.Close()
	var keys [][]byte
	for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	for _, key := range keys {
		if err := bTxn.tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

const commitTimestampKey = "metadata_commit_timestamp"

// GetCommitTimestamp returns the stored commit timestamp, or 0 when absent
func (s *Store) GetCommitTimestamp() (int64, error) {
	txn := s.NewTransaction(false)
	defer func() { _ = txn.Rollback() }()
	val, err := s.Get(txn, []byte(commitTimestampKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("unexpected commit timestamp length: %d", len(val))
	}
	var ts int64
	for _, b := range val {
		ts = ts<<8 | int64(b)
	}
	return ts, nil
}

// SetCommitTimestamp records the commit timestamp within a transaction
func (s *Store) SetCommitTimestamp(txn types.Txn, timestamp int64) error {
	val := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		val[i] = byte(timestamp)
		timestamp >>= 8
	}
	return s.Set(txn, []byte(commitTimestampKey), val)
}
