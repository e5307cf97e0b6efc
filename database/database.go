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

// Package database pairs a SQLite metadata store with a Badger blob store
// behind a single coordinated transaction handle. Proposal metadata and
// outcome rows live in SQLite; opaque action bundle payloads live in Badger.
package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/govex-dao/futarchy/database/blob"
	"github.com/govex-dao/futarchy/database/metadata"
)

type Database struct {
	logger   *slog.Logger
	blob     *blob.Store
	metadata *metadata.Store
	dataDir  string
}

// New creates a new database instance with optional persistence using the
// provided data directory
func New(logger *slog.Logger, dataDir string) (*Database, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataDb, err := metadata.New(dataDir, logger)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(dataDir, logger)
	if err != nil {
		return nil, err
	}
	db := &Database{
		logger:   logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  dataDir,
	}
	if err := db.checkCommitTimestamp(); err != nil {
		// Database is available for recovery, so return it with error
		return db, err
	}
	return db, nil
}

// Blob returns the underlying blob store instance
func (d *Database) Blob() *blob.Store {
	return d.blob
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() *metadata.Store {
	return d.metadata
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	metadataErr := d.metadata.Close()
	err = errors.Join(err, metadataErr)
	blobErr := d.blob.Close()
	err = errors.Join(err, blobErr)
	return err
}

// CommitTimestampError indicates the two stores last committed at different
// times, which means a torn write happened
type CommitTimestampError struct {
	MetadataTimestamp int64
	BlobTimestamp     int64
}

func (e CommitTimestampError) Error() string {
	return fmt.Sprintf(
		"commit timestamp mismatch: %d (metadata) != %d (blob)",
		e.MetadataTimestamp,
		e.BlobTimestamp,
	)
}

func (d *Database) checkCommitTimestamp() error {
	metadataTimestamp, metadataErr := d.metadata.GetCommitTimestamp()
	if metadataErr != nil {
		return fmt.Errorf(
			"failed to get metadata timestamp: %w",
			metadataErr,
		)
	}
	// No timestamp in the database
	if metadataTimestamp <= 0 {
		return nil
	}
	blobTimestamp, blobErr := d.blob.GetCommitTimestamp()
	if blobErr != nil {
		return fmt.Errorf(
			"failed to get blob timestamp: %w",
			blobErr,
		)
	}
	if blobTimestamp != metadataTimestamp {
		return CommitTimestampError{
			MetadataTimestamp: metadataTimestamp,
			BlobTimestamp:     blobTimestamp,
		}
	}
	return nil
}

func (d *Database) updateCommitTimestamp(txn *Txn, timestamp int64) error {
	if err := d.metadata.SetCommitTimestamp(txn.Metadata(), timestamp); err != nil {
		return err
	}
	if err := d.blob.SetCommitTimestamp(txn.Blob(), timestamp); err != nil {
		return err
	}
	return nil
}
