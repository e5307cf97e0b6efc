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

package futarchy

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/govex-dao/futarchy/config/dao"
	"github.com/govex-dao/futarchy/proposal"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	clock           proposal.Clock
	executor        proposal.ActionExecutor
	daoConfigs      map[uuid.UUID]*dao.Config
	dataDir         string
	keeperIdentity  string
	keeperInterval  time.Duration
	shutdownTimeout time.Duration
	quotaPerWindow  int
	quotaWindow     time.Duration
	earlyResolve    bool
	keeperDisabled  bool
}

// ConfigOptionFunc is a type that represents functions that modify the engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new engine config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		daoConfigs: make(map[uuid.UUID]*dao.Config),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *Config) validate() error {
	if c.shutdownTimeout < 0 {
		return errors.New("shutdown timeout must not be negative")
	}
	if c.keeperInterval < 0 {
		return errors.New("keeper interval must not be negative")
	}
	for daoId, cfg := range c.daoConfigs {
		if cfg == nil {
			return errors.New("nil DAO config for " + daoId.String())
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDAOConfig registers a DAO's governance parameters at startup. May be
// given multiple times for multiple DAOs
func WithDAOConfig(daoId uuid.UUID, cfg *dao.Config) ConfigOptionFunc {
	return func(c *Config) {
		c.daoConfigs[daoId] = cfg
	}
}

// WithClock overrides the wall clock used for lifecycle timing. Mostly
// useful for testing
func WithClock(clock proposal.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithActionExecutor supplies the executor that winning action bundles are
// dispatched to
func WithActionExecutor(executor proposal.ActionExecutor) ConfigOptionFunc {
	return func(c *Config) {
		c.executor = executor
	}
}

// WithKeeperIdentity specifies the identity credited with early-resolution
// rewards earned by the built-in keeper
func WithKeeperIdentity(identity string) ConfigOptionFunc {
	return func(c *Config) {
		c.keeperIdentity = identity
	}
}

// WithKeeperInterval specifies the keeper sweep interval. The default is 1 second
func WithKeeperInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.keeperInterval = interval
	}
}

// WithKeeperDisabled disables the built-in keeper loop. Lifecycle transitions
// must then be driven externally
func WithKeeperDisabled(disabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.keeperDisabled = disabled
	}
}

// WithEarlyResolve enables early-resolution attempts by the built-in keeper.
// This is disabled by default
func WithEarlyResolve(earlyResolve bool) ConfigOptionFunc {
	return func(c *Config) {
		c.earlyResolve = earlyResolve
	}
}

// WithSponsorQuota specifies the default per-sponsor quota and its rolling
// window
func WithSponsorQuota(perWindow int, window time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.quotaPerWindow = perWindow
		c.quotaWindow = window
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
