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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/govex-dao/futarchy/event"
)

// AdvanceState performs any time-driven lifecycle transition that is due:
// REVIEW moves to TRADING once the review period elapses, and trading
// acceptance is halted once the trading period elapses. Returns the state
// after advancement. Calling when nothing is due is a no-op, not an error.
func (m *Manager) AdvanceState(proposalId uuid.UUID) (State, error) {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return 0, err
	}
	now := m.clock.NowMs()
	if p.State == StateReview && now >= p.TradingStartsAtMs() {
		if m.config.Oracle != nil {
			if err := m.config.Oracle.StartTrading(p.Id, p.TradingStartsAtMs()); err != nil {
				return p.State, fmt.Errorf(
					"starting trading for proposal %s: %w",
					p.Id,
					err,
				)
			}
		}
		m.transition(p, StateTrading)
		if err := m.persist(p); err != nil {
			return p.State, err
		}
	}
	if p.State == StateTrading && !p.marketStopped && p.TradingEnded(now) {
		if m.config.Oracle != nil {
			if err := m.config.Oracle.StopTrading(p.Id); err != nil {
				return p.State, fmt.Errorf(
					"stopping trading for proposal %s: %w",
					p.Id,
					err,
				)
			}
		}
		// Trading has ended but the proposal is not yet FINALIZED;
		// finalization is a distinct, explicit call
		p.marketStopped = true
		m.logger.Info(
			"trading period ended",
			"component", "proposal",
			"proposal", p.Id.String(),
		)
		if err := m.persist(p); err != nil {
			return p.State, err
		}
	}
	return p.State, nil
}

// FinalizeMarket resolves a proposal whose trading period has ended: it
// computes the winner from time-weighted prices, clears all losing
// pending-action slots, settles creator economics, and emits the
// finalization event. Early resolution reaches the same code path through
// TryEarlyResolve.
func (m *Manager) FinalizeMarket(proposalId uuid.UUID) (int, error) {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return 0, err
	}
	now := m.clock.NowMs()
	if !p.TradingEnded(now) {
		return 0, ErrTradingNotEnded
	}
	return m.finalize(p, now)
}

// finalize is the single finalization critical section, shared by scheduled
// and early resolution. Callers must hold the lock.
func (m *Manager) finalize(p *Proposal, nowMs int64) (int, error) {
	// Re-check atomically so only one path can complete finalization
	if p.State == StateFinalized {
		return 0, ErrAlreadyFinalized
	}
	if p.State != StateTrading {
		return 0, &InvalidStateError{
			ProposalId: p.Id,
			State:      p.State,
			Operation:  "finalize market",
		}
	}
	if m.config.Oracle == nil {
		return 0, fmt.Errorf("proposal %s: no market oracle configured", p.Id)
	}
	twapPrices, err := m.config.Oracle.TimeWeightedPrices(p.Id)
	if err != nil {
		return 0, fmt.Errorf(
			"fetching time-weighted prices for proposal %s: %w",
			p.Id,
			err,
		)
	}
	if p.OutcomeCount > 2 {
		m.logger.Warn(
			"binary resolution rule applied to multi-outcome proposal",
			"component", "proposal",
			"proposal", p.Id.String(),
			"outcomes", p.OutcomeCount,
		)
	}
	winner, err := ResolveByTwap(p, twapPrices)
	if err != nil {
		return 0, err
	}
	p.TwapPrices = twapPrices
	p.WinningOutcome = &winner

	if !p.marketStopped {
		if err := m.config.Oracle.StopTrading(p.Id); err != nil {
			return 0, fmt.Errorf(
				"stopping trading for proposal %s: %w",
				p.Id,
				err,
			)
		}
		p.marketStopped = true
	}
	if err := m.config.Oracle.MarkFinalized(p.Id, winner); err != nil {
		return 0, fmt.Errorf(
			"marking market finalized for proposal %s: %w",
			p.Id,
			err,
		)
	}
	// Recombine DAO-owned conditional liquidity back into the spot pool; the
	// spot oracle backfill from the winning conditional oracle is delegated
	if p.FundedByDAOLiquidity && m.config.Liquidity != nil {
		if err := m.config.Liquidity.RecombineOnFinalize(p.Id, winner); err != nil {
			return 0, fmt.Errorf(
				"recombining liquidity for proposal %s: %w",
				p.Id,
				err,
			)
		}
	}
	// Take and discard every losing outcome's pending-action slot via its
	// one-time cancellation capability
	var clearedOutcomes []int
	for i := range p.OutcomeCount {
		if i == winner || !p.HasPendingAction(i) {
			continue
		}
		ticket, _, err := p.takePendingAction(i)
		if err != nil {
			return 0, fmt.Errorf(
				"cancelling actions for proposal %s outcome %d: %w",
				p.Id,
				i,
				err,
			)
		}
		clearedOutcomes = append(clearedOutcomes, ticket.OutcomeIndex())
	}
	m.settleCreatorEconomics(p, winner)
	m.transition(p, StateFinalized)
	// Slot clearing and the metadata update commit in one transaction
	if m.config.Store != nil {
		if err := m.config.Store.FinalizeProposal(p, clearedOutcomes); err != nil {
			return 0, fmt.Errorf("persisting proposal %s: %w", p.Id, err)
		}
	}
	m.metrics.proposalsFinalized.Inc()
	m.metrics.openProposals.Dec()
	approved := winner == OutcomeZeroIndex
	m.logger.Info(
		"proposal finalized",
		"component", "proposal",
		"proposal", p.Id.String(),
		"dao", p.DaoId.String(),
		"winning_outcome", winner,
		"approved", approved,
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			FinalizedEventType,
			event.NewEvent(FinalizedEventType, FinalizedEvent{
				ProposalId:     p.Id,
				DaoId:          p.DaoId,
				WinningOutcome: winner,
				Approved:       approved,
				Timestamp:      time.UnixMilli(nowMs),
			}),
		)
	}
	return winner, nil
}

// settleCreatorEconomics disburses the fee escrow and pays the winning
// creator bonus. Refunds only happen when the winner is a non-zero outcome;
// a winning outcome 0 leaves all escrowed fees with the DAO.
func (m *Manager) settleCreatorEconomics(p *Proposal, winner int) {
	if m.config.Vault == nil {
		return
	}
	if winner == OutcomeZeroIndex {
		// Sponsored outcome fees are refunded before the DAO takes the rest
		for i := 1; i < p.OutcomeCount; i++ {
			fee := p.OutcomeCreatorFees[i]
			if fee == 0 || p.OutcomeSponsor(i) == "" {
				continue
			}
			err := m.config.Vault.RefundFromEscrow(p.Id, p.OutcomeCreators[i], fee)
			if err != nil {
				m.logger.Warn(
					"sponsored fee refund skipped",
					"component", "proposal",
					"proposal", p.Id.String(),
					"outcome", i,
					"error", err,
				)
				continue
			}
			p.FeeEscrowBalance -= fee
		}
		released := m.config.Vault.ReleaseEscrowToDAO(p.Id, p.DaoId.String())
		p.FeeEscrowBalance = 0
		if released > 0 {
			m.logger.Info(
				"escrowed creator fees retained by DAO",
				"component", "proposal",
				"proposal", p.Id.String(),
				"amount", released,
			)
		}
		return
	}
	// Refund creators in fee order, skipping any fee the remaining escrow
	// cannot fully cover; partial-fill protection, not an error
	for i := 1; i < p.OutcomeCount; i++ {
		fee := p.OutcomeCreatorFees[i]
		if fee == 0 {
			continue
		}
		err := m.config.Vault.RefundFromEscrow(p.Id, p.OutcomeCreators[i], fee)
		if err != nil {
			m.logger.Warn(
				"creator fee refund skipped",
				"component", "proposal",
				"proposal", p.Id.String(),
				"outcome", i,
				"error", err,
			)
			continue
		}
		p.FeeEscrowBalance -= fee
	}
	// Any remainder is destroyed, never retained
	burned := m.config.Vault.BurnEscrowRemainder(p.Id)
	p.FeeEscrowBalance = 0
	if burned > 0 {
		m.logger.Info(
			"escrow remainder burned",
			"component", "proposal",
			"proposal", p.Id.String(),
			"amount", burned,
		)
	}
	// Bonus reward for the winning outcome's creator, skipped for proposals
	// that consumed an admin quota
	daoCfg, err := m.daoConfig(p.DaoId)
	if err != nil || daoCfg.CreatorBonus == 0 || p.UsedQuota {
		return
	}
	creator := p.OutcomeCreators[winner]
	if err := m.config.Vault.PayFromRevenue(creator, daoCfg.CreatorBonus); err != nil {
		m.logger.Warn(
			"winning creator bonus skipped",
			"component", "proposal",
			"proposal", p.Id.String(),
			"creator", creator,
			"error", err,
		)
	}
}
