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

// Package keeper runs the automation loop that drives time-based proposal
// transitions: advancing lifecycle states, finalizing proposals whose
// trading period has ended, and attempting early resolution where the DAO
// allows it.
package keeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/govex-dao/futarchy/proposal"
)

type KeeperConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Manager      *proposal.Manager
	// Identity is the keeper identity credited with early-resolution rewards
	Identity string
	// Interval is the sweep period; defaults to 1s
	Interval time.Duration
	// EarlyResolve enables early-resolution attempts during sweeps
	EarlyResolve bool
}

type keeperMetrics struct {
	sweeps        prometheus.Counter
	finalizations prometheus.Counter
	earlyResolved prometheus.Counter
	sweepErrors   prometheus.Counter
}

// Keeper periodically sweeps all open proposals. It is a background
// convenience; every operation it performs can also be invoked directly.
type Keeper struct {
	config   KeeperConfig
	logger   *slog.Logger
	metrics  keeperMetrics
	cancel   context.CancelFunc
	doneChan chan struct{}
	mutex    sync.Mutex
}

func NewKeeper(config KeeperConfig) *Keeper {
	k := &Keeper{
		config: config,
		logger: config.Logger,
	}
	if k.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		k.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if k.config.Interval <= 0 {
		k.config.Interval = time.Second
	}
	if config.PromRegistry != nil {
		promRegistry := config.PromRegistry
		k.metrics.sweeps = promauto.With(promRegistry).NewCounter(
			prometheus.CounterOpts{
				Name: "futarchy_keeper_sweeps_total",
				Help: "total number of keeper sweeps",
			},
		)
		k.metrics.finalizations = promauto.With(promRegistry).NewCounter(
			prometheus.CounterOpts{
				Name: "futarchy_keeper_finalizations_total",
				Help: "total number of scheduled finalizations performed by the keeper",
			},
		)
		k.metrics.earlyResolved = promauto.With(promRegistry).NewCounter(
			prometheus.CounterOpts{
				Name: "futarchy_keeper_early_resolutions_total",
				Help: "total number of early resolutions performed by the keeper",
			},
		)
		k.metrics.sweepErrors = promauto.With(promRegistry).NewCounter(
			prometheus.CounterOpts{
				Name: "futarchy_keeper_sweep_errors_total",
				Help: "total number of unexpected errors during keeper sweeps",
			},
		)
	}
	return k
}

// Start launches the sweep loop. Returns an error if already started.
func (k *Keeper) Start(ctx context.Context) error {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	if k.cancel != nil {
		return errors.New("keeper already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.doneChan = make(chan struct{})
	go k.run(ctx)
	return nil
}

// Stop halts the sweep loop and waits for it to exit
func (k *Keeper) Stop() error {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	if k.cancel == nil {
		return nil
	}
	k.cancel()
	<-k.doneChan
	k.cancel = nil
	k.doneChan = nil
	return nil
}

func (k *Keeper) run(ctx context.Context) {
	defer close(k.doneChan)
	ticker := time.NewTicker(k.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Sweep()
		}
	}
}

// Sweep makes one pass over all open proposals. Exposed for direct use in
// tests and manual operation.
func (k *Keeper) Sweep() {
	if k.metrics.sweeps != nil {
		k.metrics.sweeps.Inc()
	}
	for _, proposalId := range k.config.Manager.OpenProposalIds() {
		state, err := k.config.Manager.AdvanceState(proposalId)
		if err != nil {
			k.sweepError("advancing state", proposalId.String(), err)
			continue
		}
		if state != proposal.StateTrading {
			continue
		}
		winner, err := k.config.Manager.FinalizeMarket(proposalId)
		if err == nil {
			if k.metrics.finalizations != nil {
				k.metrics.finalizations.Inc()
			}
			k.logger.Info(
				"finalized proposal",
				"component", "keeper",
				"proposal", proposalId.String(),
				"winning_outcome", winner,
			)
			continue
		}
		if !errors.Is(err, proposal.ErrTradingNotEnded) {
			k.sweepError("finalizing", proposalId.String(), err)
			continue
		}
		// Trading is still open; attempt early resolution if enabled
		if !k.config.EarlyResolve {
			continue
		}
		winner, err = k.config.Manager.TryEarlyResolve(
			proposalId,
			k.config.Identity,
		)
		if err != nil {
			if earlyResolveGuardError(err) {
				k.logger.Debug(
					"early resolution not available",
					"component", "keeper",
					"proposal", proposalId.String(),
					"reason", err.Error(),
				)
			} else {
				k.sweepError("early resolving", proposalId.String(), err)
			}
			continue
		}
		if k.metrics.earlyResolved != nil {
			k.metrics.earlyResolved.Inc()
		}
		k.logger.Info(
			"early resolved proposal",
			"component", "keeper",
			"proposal", proposalId.String(),
			"winning_outcome", winner,
		)
	}
}

func (k *Keeper) sweepError(action, proposalId string, err error) {
	if k.metrics.sweepErrors != nil {
		k.metrics.sweepErrors.Inc()
	}
	k.logger.Warn(
		"keeper sweep failure",
		"component", "keeper",
		"action", action,
		"proposal", proposalId,
		"error", err,
	)
}

// earlyResolveGuardError reports whether an early-resolution failure is an
// expected guard outcome rather than an operational problem
func earlyResolveGuardError(err error) bool {
	var spreadErr *proposal.SpreadTooNarrowError
	var flipErr *proposal.FlipRateError
	var eligErr *proposal.EligibilityError
	return errors.As(err, &spreadErr) ||
		errors.As(err, &flipErr) ||
		errors.As(err, &eligErr) ||
		errors.Is(err, proposal.ErrAlreadyFinalized)
}
