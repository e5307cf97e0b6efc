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

package proposal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govex-dao/futarchy/config/dao"
	"github.com/govex-dao/futarchy/fixed"
)

func earlyResolveDaoConfig() *dao.Config {
	return &dao.Config{
		MinSpread:            4,
		FlipWindowMs:         300,
		BaseMaxFlips:         1,
		AdaptiveFlipScaling:  true,
		EarlyResolveMinAgeMs: 20_000,
		EarlyResolveMaxAgeMs: 100_000,
		KeeperReward:         7,
		ReviewPeriodMs:       10_000,
		TradingPeriodMs:      60_000,
	}
}

func TestEffectiveMaxFlips(t *testing.T) {
	cfg := earlyResolveDaoConfig()
	testDefs := []struct {
		name   string
		spread uint64
		want   int
	}{
		{"below one step", 3, 1},
		{"one step", 4, 2},
		{"two steps", 8, 3},
		{"fractional step rounds down", 11, 3},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(t, testDef.want, EffectiveMaxFlips(cfg, testDef.spread))
		})
	}

	t.Run("scaling disabled", func(t *testing.T) {
		flat := earlyResolveDaoConfig()
		flat.AdaptiveFlipScaling = false
		assert.Equal(t, 1, EffectiveMaxFlips(flat, 800))
	})

	t.Run("zero min spread", func(t *testing.T) {
		zero := earlyResolveDaoConfig()
		zero.MinSpread = 0
		assert.Equal(t, 1, EffectiveMaxFlips(zero, 800))
	})
}

// newEarlyFixture puts a proposal into TRADING past the minimum
// early-resolution age, with both outcomes still at the seed price of 500.
func newEarlyFixture(t *testing.T) (*fixture, uuid.UUID) {
	t.Helper()
	f := newFixture(t, earlyResolveDaoConfig())
	f.vault.DepositRevenue(10)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.clock.nowMs = 25_000
	return f, proposalId
}

// recordFlips drives alternating leader changes ending inside the flip
// window, leaving an instantaneous spread of 8.
func recordFlips(t *testing.T, f *fixture, proposalId uuid.UUID, flips int) {
	t.Helper()
	prices := []struct {
		outcomeIndex int
		price        uint64
		atMs         int64
	}{
		{1, 506, 24_800},
		{0, 512, 24_850},
		{1, 520, 24_900},
		{0, 528, 24_950},
	}
	require.LessOrEqual(t, flips, len(prices))
	for _, move := range prices[:flips] {
		require.NoError(t, f.oracle.RecordPrice(
			proposalId,
			move.outcomeIndex,
			move.price,
			move.atMs,
		))
	}
}

func TestTryEarlyResolveSuccess(t *testing.T) {
	f, proposalId := newEarlyFixture(t)
	_, earlyChan := f.bus.Subscribe(EarlyResolvedEventType)
	recordFlips(t, f, proposalId, 3)

	winner, err := f.manager.TryEarlyResolve(proposalId, "keeper-1")
	require.NoError(t, err)
	// The TWAP never left the neighborhood of the 500 seed, so outcome 0
	// fails its 600 threshold even though it can lead instantaneously
	assert.Equal(t, 1, winner)

	state, err := f.manager.StateOf(proposalId)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, state)

	// Keeper reward paid from protocol revenue
	assert.Equal(t, uint64(7), f.vault.PaidTo("keeper-1"))
	assert.Equal(t, uint64(3), f.vault.RevenueBalance())

	evt := <-earlyChan
	resolved, ok := evt.Data.(EarlyResolvedEvent)
	require.True(t, ok)
	assert.Equal(t, proposalId, resolved.ProposalId)
	assert.Equal(t, 1, resolved.WinningOutcome)
	assert.Equal(t, int64(24_000), resolved.AgeMs)
	assert.Equal(t, "keeper-1", resolved.Keeper)
	assert.Equal(t, uint64(7), resolved.Reward)

	_, err = f.manager.TryEarlyResolve(proposalId, "keeper-1")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestTryEarlyResolveFlipRate(t *testing.T) {
	f, proposalId := newEarlyFixture(t)
	// Spread 8 with minSpread 4 scales base 1 to a tolerance of 3 flips;
	// a fourth flip in the window disqualifies
	recordFlips(t, f, proposalId, 4)

	_, err := f.manager.TryEarlyResolve(proposalId, "keeper-1")
	var flipErr *FlipRateError
	require.ErrorAs(t, err, &flipErr)
	assert.Equal(t, 4, flipErr.ObservedFlips)
	assert.Equal(t, 3, flipErr.MaxFlips)
	assert.Equal(t, int64(300), flipErr.WindowMs)

	// Guard failures leave no side effects
	state, err := f.manager.StateOf(proposalId)
	require.NoError(t, err)
	assert.Equal(t, StateTrading, state)
	assert.Equal(t, uint64(0), f.vault.PaidTo("keeper-1"))
}

func TestTryEarlyResolveSpreadTooNarrow(t *testing.T) {
	f, proposalId := newEarlyFixture(t)
	// Both outcomes still at the seed price
	_, err := f.manager.TryEarlyResolve(proposalId, "keeper-1")
	var spreadErr *SpreadTooNarrowError
	require.ErrorAs(t, err, &spreadErr)
	assert.Equal(t, uint64(0), spreadErr.Spread)
	assert.Equal(t, uint64(4), spreadErr.MinSpread)
}

func TestTryEarlyResolveAgeWindow(t *testing.T) {
	f := newFixture(t, earlyResolveDaoConfig())
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)

	// Too young at trading start
	var eligErr *EligibilityError
	_, err := f.manager.TryEarlyResolve(proposalId, "keeper-1")
	require.ErrorAs(t, err, &eligErr)
	assert.Contains(t, eligErr.Reason, "below minimum")

	// Too old past the maximum age
	f.clock.nowMs = 150_000
	_, err = f.manager.TryEarlyResolve(proposalId, "keeper-1")
	require.ErrorAs(t, err, &eligErr)
	assert.Contains(t, eligErr.Reason, "above maximum")
}

func TestTryEarlyResolveRequiresTrading(t *testing.T) {
	f := newFixture(t, earlyResolveDaoConfig())
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)

	_, err := f.manager.TryEarlyResolve(proposalId, "keeper-1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StateReview, stateErr.State)
}

func TestTryEarlyResolveRewardShortfall(t *testing.T) {
	f := newFixture(t, earlyResolveDaoConfig())
	// No revenue deposited; resolution still succeeds, reward is skipped
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.clock.nowMs = 25_000
	_, earlyChan := f.bus.Subscribe(EarlyResolvedEventType)
	recordFlips(t, f, proposalId, 3)

	winner, err := f.manager.TryEarlyResolve(proposalId, "keeper-1")
	require.NoError(t, err)
	assert.Equal(t, 1, winner)
	assert.Equal(t, uint64(0), f.vault.PaidTo("keeper-1"))

	evt := <-earlyChan
	resolved, ok := evt.Data.(EarlyResolvedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(0), resolved.Reward)
}
