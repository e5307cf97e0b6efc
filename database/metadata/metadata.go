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

// Package metadata provides the SQLite-backed metadata store holding the
// queryable proposal and outcome tables. Uses an in-memory database when no
// data directory is given.
package metadata

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

	"github.com/govex-dao/futarchy/database/models"
	"github.com/govex-dao/futarchy/database/types"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store is the SQLite-based metadata store. It provides persistent storage
// for proposal metadata and outcome rows.
type Store struct {
	db          *gorm.DB
	logger      *slog.Logger
	timerVacuum *time.Timer
	timerMutex  sync.Mutex
	dataDir     string
	closed      bool
	vacuumWG    sync.WaitGroup
}

// New creates a SQLite metadata store. Uses in-memory database if dataDir is
// empty.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	var metadataDb *gorm.DB
	var err error
	if dataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		metadataDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(
			dataDir,
			"metadata.sqlite",
		)
		// WAL journal mode, disable sync on write, increase cache size to 50MB (from 2MB)
		metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)"
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	s := &Store{
		db:      metadataDb,
		dataDir: dataDir,
		logger:  logger,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return s, err
	}
	// Create table schemas
	if err := s.db.AutoMigrate(&CommitTimestamp{}); err != nil {
		return s, err
	}
	for _, model := range models.MigrateModels {
		s.logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := s.db.AutoMigrate(model); err != nil {
			return s, err
		}
	}
	// Schedule daily database vacuum to free unused space
	s.scheduleDailyVacuum()
	return s, nil
}

func (s *Store) runVacuum() error {
	s.timerMutex.Lock()
	if s.dataDir == "" || s.closed {
		s.timerMutex.Unlock()
		return nil
	}
	// Track this vacuum operation while we know the store is open
	s.vacuumWG.Add(1)
	s.timerMutex.Unlock()
	defer s.vacuumWG.Done()

	if result := s.DB().Raw("VACUUM"); result.Error != nil {
		return result.Error
	}
	return nil
}

// scheduleDailyVacuum schedules a daily vacuum operation
func (s *Store) scheduleDailyVacuum() {
	s.timerMutex.Lock()
	defer s.timerMutex.Unlock()
	if s.closed {
		return
	}
	if s.timerVacuum != nil {
		s.timerVacuum.Stop()
	}
	daily := time.Duration(24) * time.Hour
	f := func() {
		s.logger.Debug(
			"running vacuum on sqlite metadata database",
			"component", "database",
		)
		// schedule next run
		defer s.scheduleDailyVacuum()
		if err := s.runVacuum(); err != nil {
			s.logger.Error(
				"failed to free unused space in metadata store",
				"component", "database",
				"error", err,
			)
		}
	}
	s.timerVacuum = time.AfterFunc(daily, f)
}

// Close stops background timers and closes the underlying connection
func (s *Store) Close() error {
	s.timerMutex.Lock()
	if s.closed {
		s.timerMutex.Unlock()
		return nil
	}
	s.closed = true
	if s.timerVacuum != nil {
		s.timerVacuum.Stop()
		s.timerVacuum = nil
	}
	s.timerMutex.Unlock()
	// Wait for any in-flight vacuum to finish
	s.vacuumWG.Wait()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the gorm database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// gormTxn wraps a gorm transaction and implements types.Txn
type gormTxn struct {
	store    *Store
	tx       *gorm.DB
	finished bool
}

func (t *gormTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	return t.tx.Commit().Error
}

func (t *gormTxn) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	return t.tx.Rollback().Error
}

// Transaction starts a new metadata transaction
func (s *Store) Transaction() types.Txn {
	return &gormTxn{store: s, tx: s.db.Begin()}
}

// ResolveDB returns the gorm handle for a transaction, or the base handle
// when txn is nil.
func (s *Store) ResolveDB(txn types.Txn) (*gorm.DB, error) {
	if txn == nil {
		return s.db, nil
	}
	gTxn, ok := txn.(*gormTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if gTxn.store != s {
		return nil, errors.New("transaction from different store")
	}
	if gTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	return gTxn.tx, nil
}

const commitTimestampRowId = 1

// CommitTimestamp tracks the current commit timestamp for cross-store
// consistency checks
type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}

// GetCommitTimestamp returns the stored commit timestamp, or 0 when absent
func (s *Store) GetCommitTimestamp() (int64, error) {
	var tmpCommitTimestamp CommitTimestamp
	result := s.DB().First(&tmpCommitTimestamp)
	if result.Error != nil {
		// It's not an error if there's no records found
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return tmpCommitTimestamp.Timestamp, nil
}

// SetCommitTimestamp records the commit timestamp within a transaction
func (s *Store) SetCommitTimestamp(txn types.Txn, timestamp int64) error {
	tmpCommitTimestamp := CommitTimestamp{
		ID:        commitTimestampRowId,
		Timestamp: timestamp,
	}
	db, err := s.ResolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
	}).Create(&tmpCommitTimestamp)
	return result.Error
}
