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

// Package oracle provides the in-process reference implementation of the
// market oracle consumed by the resolution engine: per-outcome price
// observations averaged over time to resist short-term manipulation, plus
// the leader-flip history the early-resolution guard inspects. Production
// deployments may substitute any implementation of the same interface.
package oracle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrMarketNotFound  = errors.New("market not found")
	ErrMarketExists    = errors.New("market already registered")
	ErrMarketFinalized = errors.New("market already finalized")
	ErrNotTrading      = errors.New("market is not trading")
)

// observation is a single price point for one outcome.
type observation struct {
	atMs  int64
	price uint64
}

// market holds the oracle state for one proposal's outcome markets.
type market struct {
	observations [][]observation
	instant      []uint64
	// flipTimes records when the instantaneous leading outcome changed
	flipTimes []int64
	leader    int
	startMs   int64
	stopMs    int64
	stepMax   uint64
	initial   uint64
	trading   bool
	finalized bool
	winner    int
}

type Config struct {
	Logger *slog.Logger
}

// Oracle tracks every registered market. Implements the engine's
// MarketOracle interface.
type Oracle struct {
	config  Config
	logger  *slog.Logger
	markets map[uuid.UUID]*market
	mutex   sync.RWMutex
}

func New(config Config) *Oracle {
	o := &Oracle{
		config:  config,
		markets: make(map[uuid.UUID]*market),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		o.logger = config.Logger
	}
	return o
}

// CreateMarket registers the outcome markets for a proposal. The initial
// observation seeds every outcome when trading starts; stepMax caps how far
// a single recorded price may move from the previous observation (zero
// disables clamping).
func (o *Oracle) CreateMarket(
	proposalId uuid.UUID,
	outcomeCount int,
	initialObservation uint64,
	stepMax uint64,
) error {
	if outcomeCount < 2 {
		return fmt.Errorf("market requires at least two outcomes, got %d", outcomeCount)
	}
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if _, ok := o.markets[proposalId]; ok {
		return fmt.Errorf("%w: %s", ErrMarketExists, proposalId)
	}
	o.markets[proposalId] = &market{
		observations: make([][]observation, outcomeCount),
		instant:      make([]uint64, outcomeCount),
		stepMax:      stepMax,
		initial:      initialObservation,
	}
	return nil
}

func (o *Oracle) get(proposalId uuid.UUID) (*market, error) {
	mkt, ok := o.markets[proposalId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, proposalId)
	}
	return mkt, nil
}

// StartTrading begins accepting price observations and seeds every outcome
// with the initial observation at the given start time.
func (o *Oracle) StartTrading(proposalId uuid.UUID, atMs int64) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return err
	}
	if mkt.finalized {
		return ErrMarketFinalized
	}
	if mkt.trading {
		return nil
	}
	mkt.trading = true
	mkt.startMs = atMs
	for i := range mkt.observations {
		mkt.observations[i] = append(
			mkt.observations[i],
			observation{atMs: atMs, price: mkt.initial},
		)
		mkt.instant[i] = mkt.initial
	}
	return nil
}

// RecordPrice registers a trade-driven price movement for one outcome. The
// movement is clamped to stepMax from the previous observation so a single
// large trade cannot swing the average.
func (o *Oracle) RecordPrice(
	proposalId uuid.UUID,
	outcomeIndex int,
	price uint64,
	atMs int64,
) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return err
	}
	if !mkt.trading {
		return ErrNotTrading
	}
	if outcomeIndex < 0 || outcomeIndex >= len(mkt.observations) {
		return fmt.Errorf(
			"outcome index %d out of range [0, %d)",
			outcomeIndex,
			len(mkt.observations),
		)
	}
	obs := mkt.observations[outcomeIndex]
	prev := obs[len(obs)-1].price
	clamped := clampStep(prev, price, mkt.stepMax)
	mkt.observations[outcomeIndex] = append(
		obs,
		observation{atMs: atMs, price: clamped},
	)
	mkt.instant[outcomeIndex] = clamped
	// Track leader changes for the flip-rate guard
	newLeader := leaderOf(mkt.instant)
	if newLeader != mkt.leader {
		mkt.leader = newLeader
		mkt.flipTimes = append(mkt.flipTimes, atMs)
	}
	return nil
}

// clampStep limits a price movement to at most stepMax in either direction.
func clampStep(prev, next, stepMax uint64) uint64 {
	if stepMax == 0 {
		return next
	}
	if next > prev && next-prev > stepMax {
		return prev + stepMax
	}
	if prev > next && prev-next > stepMax {
		return prev - stepMax
	}
	return next
}

func leaderOf(prices []uint64) int {
	leader := 0
	for i := 1; i < len(prices); i++ {
		if prices[i] > prices[leader] {
			leader = i
		}
	}
	return leader
}

// StopTrading halts observation recording; idempotent. The stop time bounds
// the TWAP window.
func (o *Oracle) StopTrading(proposalId uuid.UUID) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return err
	}
	if !mkt.trading {
		return nil
	}
	mkt.trading = false
	if len(mkt.observations) > 0 && len(mkt.observations[0]) > 0 {
		last := mkt.observations[0][0].atMs
		for _, outcomeObs := range mkt.observations {
			if n := len(outcomeObs); n > 0 && outcomeObs[n-1].atMs > last {
				last = outcomeObs[n-1].atMs
			}
		}
		mkt.stopMs = last
	}
	return nil
}

// MarkFinalized records the winning outcome on the market state.
func (o *Oracle) MarkFinalized(proposalId uuid.UUID, winningOutcome int) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return err
	}
	if mkt.finalized {
		return ErrMarketFinalized
	}
	mkt.finalized = true
	mkt.winner = winningOutcome
	o.logger.Debug(
		"market finalized",
		"component", "oracle",
		"proposal", proposalId.String(),
		"winning_outcome", winningOutcome,
	)
	return nil
}

// TimeWeightedPrices returns the per-outcome TWAPs over the observation
// window. Each outcome's average weights every observed price by how long it
// held before the next observation.
func (o *Oracle) TimeWeightedPrices(proposalId uuid.UUID) ([]uint64, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return nil, err
	}
	prices := make([]uint64, len(mkt.observations))
	for i, outcomeObs := range mkt.observations {
		prices[i] = timeWeighted(outcomeObs, mkt.endMs())
	}
	return prices, nil
}

func (mkt *market) endMs() int64 {
	if mkt.stopMs > 0 {
		return mkt.stopMs
	}
	// Still trading: use the latest observation across outcomes
	end := mkt.startMs
	for _, outcomeObs := range mkt.observations {
		if n := len(outcomeObs); n > 0 && outcomeObs[n-1].atMs > end {
			end = outcomeObs[n-1].atMs
		}
	}
	return end
}

func timeWeighted(obs []observation, endMs int64) uint64 {
	if len(obs) == 0 {
		return 0
	}
	if len(obs) == 1 || endMs <= obs[0].atMs {
		return obs[0].price
	}
	var weightedSum, totalWeight uint64
	for i, ob := range obs {
		var holdMs int64
		if i+1 < len(obs) {
			holdMs = obs[i+1].atMs - ob.atMs
		} else {
			holdMs = endMs - ob.atMs
		}
		if holdMs <= 0 {
			continue
		}
		weightedSum += ob.price * uint64(holdMs)
		totalWeight += uint64(holdMs)
	}
	if totalWeight == 0 {
		return obs[len(obs)-1].price
	}
	return weightedSum / totalWeight
}

// InstantPrices returns the current (non-time-weighted) per-outcome prices.
func (o *Oracle) InstantPrices(proposalId uuid.UUID) ([]uint64, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return nil, err
	}
	prices := make([]uint64, len(mkt.instant))
	copy(prices, mkt.instant)
	return prices, nil
}

// FlipCount returns how many times the instantaneous leader changed within
// the trailing window [nowMs-windowMs, nowMs].
func (o *Oracle) FlipCount(
	proposalId uuid.UUID,
	nowMs int64,
	windowMs int64,
) (int, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	mkt, err := o.get(proposalId)
	if err != nil {
		return 0, err
	}
	cutoff := nowMs - windowMs
	count := 0
	for i := len(mkt.flipTimes) - 1; i >= 0; i-- {
		if mkt.flipTimes[i] < cutoff {
			break
		}
		if mkt.flipTimes[i] <= nowMs {
			count++
		}
	}
	return count, nil
}
