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

// Package futarchy wires the proposal resolution engine together: event bus,
// storage, market oracle, sponsor quota registry, treasury vault, proposal
// manager, and the keeper automation loop.
package futarchy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/govex-dao/futarchy/database"
	"github.com/govex-dao/futarchy/event"
	"github.com/govex-dao/futarchy/keeper"
	"github.com/govex-dao/futarchy/oracle"
	"github.com/govex-dao/futarchy/proposal"
	"github.com/govex-dao/futarchy/quota"
	"github.com/govex-dao/futarchy/treasury"
)

type Engine struct {
	eventBus     *event.EventBus
	db           *database.Database
	oracle       *oracle.Oracle
	quota        *quota.Registry
	vault        *treasury.Vault
	manager      *proposal.Manager
	keeper       *keeper.Keeper
	config       Config
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	e := &Engine{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	return e, nil
}

func (e *Engine) Run() error {
	// Load database
	db, err := database.New(e.config.logger, e.config.dataDir)
	if err != nil {
		var dbErr database.CommitTimestampError
		if !errors.As(err, &dbErr) {
			return fmt.Errorf("failed to open database: %w", err)
		}
		// A torn write can only lose the most recent proposal snapshot;
		// the authoritative copy is re-persisted on the next mutation
		e.config.logger.Warn(
			"database initialization error, continuing with last consistent state",
			"error",
			err,
		)
	}
	if db == nil {
		return errors.New("empty database returned")
	}
	e.db = db
	// Initialize market oracle
	e.oracle = oracle.New(oracle.Config{
		Logger: e.config.logger,
	})
	// Initialize sponsor quota registry
	e.quota = quota.NewRegistry(quota.RegistryConfig{
		QuotaPerWindow: e.config.quotaPerWindow,
		Window:         e.config.quotaWindow,
	})
	// Initialize treasury vault
	e.vault = treasury.NewVault(treasury.VaultConfig{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
	})
	// Initialize proposal manager
	e.manager = proposal.NewManager(proposal.ManagerConfig{
		PromRegistry: e.config.promRegistry,
		Logger:       e.config.logger,
		EventBus:     e.eventBus,
		Oracle:       e.oracle,
		Executor:     e.config.executor,
		Quota:        e.quota,
		Vault:        e.vault,
		Clock:        e.config.clock,
		Store:        e.db,
	})
	for daoId, daoCfg := range e.config.daoConfigs {
		if err := e.manager.RegisterDAO(daoId, daoCfg); err != nil {
			return fmt.Errorf("registering DAO %s: %w", daoId, err)
		}
	}
	// Start keeper
	if !e.config.keeperDisabled {
		e.keeper = keeper.NewKeeper(keeper.KeeperConfig{
			Logger:       e.config.logger,
			PromRegistry: e.config.promRegistry,
			Manager:      e.manager,
			Identity:     e.config.keeperIdentity,
			Interval:     e.config.keeperInterval,
			EarlyResolve: e.config.earlyResolve,
		})
		if err := e.keeper.Start(context.Background()); err != nil {
			return err
		}
	}

	// Wait for shutdown signal
	<-e.done
	return nil
}

func (e *Engine) Stop() error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.shutdown()
	})
	return err
}

func (e *Engine) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if e.config.shutdownTimeout > 0 {
		shutdownTimeout = e.config.shutdownTimeout
	}
	_, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	e.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop the keeper so no new transitions begin
	e.config.logger.Debug("shutdown phase 1: stopping new work")

	if e.keeper != nil {
		if stopErr := e.keeper.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("keeper shutdown: %w", stopErr))
		}
	}

	// Phase 2: Flush state and close database
	e.config.logger.Debug("shutdown phase 2: flushing state")

	if e.db != nil {
		if closeErr := e.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	e.config.logger.Debug("shutdown phase 3: cleanup resources")

	if e.eventBus != nil {
		e.eventBus.Stop()
	}

	e.config.logger.Debug("graceful shutdown complete")
	close(e.done)
	return err
}

// EventBus returns the engine's event bus
func (e *Engine) EventBus() *event.EventBus {
	return e.eventBus
}

// Database returns the engine's database, or nil before Run
func (e *Engine) Database() *database.Database {
	return e.db
}

// Oracle returns the engine's market oracle, or nil before Run
func (e *Engine) Oracle() *oracle.Oracle {
	return e.oracle
}

// Quota returns the engine's sponsor quota registry, or nil before Run
func (e *Engine) Quota() *quota.Registry {
	return e.quota
}

// Vault returns the engine's treasury vault, or nil before Run
func (e *Engine) Vault() *treasury.Vault {
	return e.vault
}

// Manager returns the engine's proposal manager, or nil before Run
func (e *Engine) Manager() *proposal.Manager {
	return e.manager
}
