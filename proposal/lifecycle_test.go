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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govex-dao/futarchy/config/dao"
	"github.com/govex-dao/futarchy/fixed"
)

// Fixture timing: created and attached at 1_000, trading starts at 11_000,
// trading ends at 71_000.
const (
	testTradingStartMs = 11_000
	testTradingEndMs   = 71_000
)

func TestLifecycleStatesMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	_, stateChan := f.bus.Subscribe(StateChangeEventType)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	state, err := f.manager.StateOf(proposalId)
	require.NoError(t, err)
	assert.Equal(t, StatePremarket, state)

	f.attach(t, proposalId)

	// Advancing before the review period elapses is a no-op
	assert.Equal(t, StateReview, f.advanceTo(t, proposalId, testTradingStartMs-1))
	assert.Equal(t, StateTrading, f.advanceTo(t, proposalId, testTradingStartMs))
	// Advancing mid-trading is a no-op
	assert.Equal(t, StateTrading, f.advanceTo(t, proposalId, testTradingStartMs+5_000))

	// Trading ends; finalization is a distinct call
	assert.Equal(t, StateTrading, f.advanceTo(t, proposalId, testTradingEndMs))
	_, err = f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	state, err = f.manager.StateOf(proposalId)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, state)

	wantTransitions := []struct {
		oldState State
		newState State
	}{
		{StatePremarket, StateReview},
		{StateReview, StateTrading},
		{StateTrading, StateFinalized},
	}
	for _, want := range wantTransitions {
		evt := <-stateChan
		change, ok := evt.Data.(StateChangeEvent)
		require.True(t, ok)
		assert.Equal(t, want.oldState, change.OldState)
		assert.Equal(t, want.newState, change.NewState)
	}
}

func TestFinalizeBeforeTradingEnds(t *testing.T) {
	f := newFixture(t, nil)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	_, err := f.manager.FinalizeMarket(proposalId)
	assert.ErrorIs(t, err, ErrTradingNotEnded)
}

func TestFinalizeExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)

	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	// Seed 500 never clears threshold 600
	assert.Equal(t, 1, winner)

	_, err = f.manager.FinalizeMarket(proposalId)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// The recorded winner never changes
	got, err := f.manager.WinningOutcomeOf(proposalId)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	prices, err := f.manager.TwapPricesOf(proposalId)
	require.NoError(t, err)
	assert.Equal(t, []uint64{500, 500}, prices)
}

func TestFinalizeEmitsApproval(t *testing.T) {
	f := newFixture(t, nil)
	_, finalizedChan := f.bus.Subscribe(FinalizedEventType)
	// Seed 700 clears threshold 600
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 700,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)

	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, OutcomeZeroIndex, winner)

	evt := <-finalizedChan
	finalized, ok := evt.Data.(FinalizedEvent)
	require.True(t, ok)
	assert.Equal(t, proposalId, finalized.ProposalId)
	assert.Equal(t, OutcomeZeroIndex, finalized.WinningOutcome)
	assert.True(t, finalized.Approved)
}

func TestFinalizeWinnerZeroReleasesEscrowToDAO(t *testing.T) {
	f := newFixture(t, nil)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 700,
		fees:      []uint64{0, 40, 40},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)

	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, OutcomeZeroIndex, winner)

	// All escrowed fees go to the DAO; nothing refunded, nothing burned
	assert.Equal(t, uint64(80), f.vault.PaidTo(f.daoId.String()))
	assert.Equal(t, uint64(0), f.vault.PaidTo("bob"))
	assert.Equal(t, uint64(0), f.vault.BurnedTotal())
	assert.Equal(t, uint64(0), f.vault.EscrowBalance(proposalId))
}

func TestFinalizeRefundsCreatorsAndBurnsRemainder(t *testing.T) {
	f := newFixture(t, &dao.Config{
		ReviewPeriodMs:  10_000,
		TradingPeriodMs: 60_000,
		CreatorBonus:    25,
	})
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 40, 40},
	})
	// Extra escrow beyond creator fees is burned at settlement
	f.vault.EscrowDeposit(proposalId, 20)
	f.vault.DepositRevenue(100)
	initialEscrow := f.vault.EscrowBalance(proposalId)
	require.Equal(t, uint64(100), initialEscrow)

	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)
	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, 1, winner)

	// Refunds plus burned remainder account for the entire escrow
	refunded := f.vault.PaidTo("bob") + f.vault.PaidTo("carol")
	assert.Equal(t, uint64(40), f.vault.PaidTo("carol"))
	assert.Equal(t, uint64(20), f.vault.BurnedTotal())
	assert.Equal(t, initialEscrow, refunded+f.vault.BurnedTotal())
	assert.Equal(t, uint64(0), f.vault.EscrowBalance(proposalId))

	// Winning creator bonus draws from protocol revenue, not escrow
	assert.Equal(t, uint64(40+25), f.vault.PaidTo("bob"))
	assert.Equal(t, uint64(75), f.vault.RevenueBalance())
}

func TestFinalizeSkipsBonusForQuotaProposals(t *testing.T) {
	f := newFixture(t, &dao.Config{
		ReviewPeriodMs:  10_000,
		TradingPeriodMs: 60_000,
		CreatorBonus:    25,
	})
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 40},
		usedQuota: true,
	})
	f.vault.DepositRevenue(100)
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)
	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, 1, winner)

	// Fee refund only; the bonus is withheld from quota-funded proposals
	assert.Equal(t, uint64(40), f.vault.PaidTo("bob"))
	assert.Equal(t, uint64(100), f.vault.RevenueBalance())
}

func TestFinalizeClearsLosingSlots(t *testing.T) {
	f := newFixture(t, nil)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0, 0},
		actions: []*ActionBundle{
			nil,
			{Payload: []byte("upgrade"), Count: 2},
			{Payload: []byte("divest"), Count: 1},
		},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)
	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, 1, winner)

	// The losing populated slot is consumed by cancellation
	hasPending, err := f.manager.HasPendingAction(proposalId, 2)
	require.NoError(t, err)
	assert.False(t, hasPending)
	assert.True(t, f.manager.proposals[proposalId].SlotConsumed(2))

	// The winning slot survives for exactly one execution take
	ticket, bundle, err := f.manager.TakeWinningAction(proposalId)
	require.NoError(t, err)
	assert.Equal(t, proposalId, ticket.ProposalId())
	assert.Equal(t, 1, ticket.OutcomeIndex())
	require.NotNil(t, bundle)
	assert.Equal(t, []byte("upgrade"), bundle.Payload)
	assert.Equal(t, 2, bundle.Count)

	_, _, err = f.manager.TakeWinningAction(proposalId)
	var takenErr *SlotTakenError
	require.ErrorAs(t, err, &takenErr)
	assert.Equal(t, 1, takenErr.OutcomeIndex)
}

func TestTakeWinningActionEmptySlot(t *testing.T) {
	f := newFixture(t, nil)
	// Winner 0 carries no actions by construction
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 700,
		fees:      []uint64{0, 0},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)
	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, OutcomeZeroIndex, winner)

	_, _, err = f.manager.TakeWinningAction(proposalId)
	var emptyErr *SlotEmptyError
	assert.ErrorAs(t, err, &emptyErr)
}

type recordingExecutor struct {
	tickets []CancelTicket
	bundles []*ActionBundle
}

func (e *recordingExecutor) ExecuteActions(
	ticket CancelTicket,
	bundle *ActionBundle,
) error {
	e.tickets = append(e.tickets, ticket)
	e.bundles = append(e.bundles, bundle)
	return nil
}

func TestExecuteWinningAction(t *testing.T) {
	f := newFixture(t, nil)
	executor := &recordingExecutor{}
	f.manager.config.Executor = executor
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
		actions: []*ActionBundle{
			nil,
			{Payload: []byte("upgrade"), Count: 1},
		},
	})
	f.attach(t, proposalId)
	f.advanceTo(t, proposalId, testTradingStartMs)
	f.advanceTo(t, proposalId, testTradingEndMs)
	winner, err := f.manager.FinalizeMarket(proposalId)
	require.NoError(t, err)
	require.Equal(t, 1, winner)

	require.NoError(t, f.manager.ExecuteWinningAction(proposalId))
	require.Len(t, executor.tickets, 1)
	assert.Equal(t, proposalId, executor.tickets[0].ProposalId())
	assert.Equal(t, 1, executor.tickets[0].OutcomeIndex())
	assert.Equal(t, []byte("upgrade"), executor.bundles[0].Payload)

	// The slot is spent; a second dispatch cannot happen
	err = f.manager.ExecuteWinningAction(proposalId)
	var takenErr *SlotTakenError
	assert.ErrorAs(t, err, &takenErr)
}

func TestAdvanceStateUnattachedProposal(t *testing.T) {
	f := newFixture(t, nil)
	proposalId := f.create(t, createOptions{
		threshold: fixed.FromUint64(600),
		seedPrice: 500,
		fees:      []uint64{0, 0},
	})
	// PREMARKET proposals never advance on time alone
	state := f.advanceTo(t, proposalId, testTradingEndMs+1_000_000)
	assert.Equal(t, StatePremarket, state)
}
