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

	"github.com/google/uuid"

	"github.com/govex-dao/futarchy/config/dao"
	"github.com/govex-dao/futarchy/event"
)

// EffectiveMaxFlips computes the flip tolerance for an observed spread. With
// adaptive scaling enabled, wider spreads earn linearly more tolerance:
// base + base*floor(spread/minSpread).
func EffectiveMaxFlips(cfg *dao.Config, spread uint64) int {
	if !cfg.AdaptiveFlipScaling || cfg.MinSpread == 0 {
		return cfg.BaseMaxFlips
	}
	scaleFactor := int(spread / cfg.MinSpread)
	return cfg.BaseMaxFlips + cfg.BaseMaxFlips*scaleFactor
}

// TryEarlyResolve attempts to finalize a proposal before the scheduled end of
// its trading period. Callable by anyone, typically an automated keeper; a
// successful call pays the keeper reward from protocol revenue. Eligibility
// failures leave no side effects and may be retried once conditions change.
func (m *Manager) TryEarlyResolve(
	proposalId uuid.UUID,
	keeper string,
) (int, error) {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return 0, err
	}
	if p.State == StateFinalized {
		return 0, ErrAlreadyFinalized
	}
	if p.State != StateTrading {
		return 0, &InvalidStateError{
			ProposalId: p.Id,
			State:      p.State,
			Operation:  "early resolve",
		}
	}
	daoCfg, err := m.daoConfig(p.DaoId)
	if err != nil {
		return 0, err
	}
	now := m.clock.NowMs()
	age := p.AgeMs(now)
	// Age/stability eligibility
	if age < daoCfg.EarlyResolveMinAgeMs {
		return 0, &EligibilityError{
			ProposalId: p.Id,
			Reason: fmt.Sprintf(
				"age %dms below minimum %dms",
				age,
				daoCfg.EarlyResolveMinAgeMs,
			),
		}
	}
	if daoCfg.EarlyResolveMaxAgeMs > 0 && age > daoCfg.EarlyResolveMaxAgeMs {
		return 0, &EligibilityError{
			ProposalId: p.Id,
			Reason: fmt.Sprintf(
				"age %dms above maximum %dms; use scheduled finalization",
				age,
				daoCfg.EarlyResolveMaxAgeMs,
			),
		}
	}
	if m.config.Oracle == nil {
		return 0, fmt.Errorf("proposal %s: no market oracle configured", p.Id)
	}
	// Spread requirement on instantaneous prices
	instantPrices, err := m.config.Oracle.InstantPrices(p.Id)
	if err != nil {
		return 0, fmt.Errorf(
			"fetching instant prices for proposal %s: %w",
			p.Id,
			err,
		)
	}
	instant, err := ResolveByInstantPrice(p, instantPrices)
	if err != nil {
		return 0, err
	}
	if instant.Spread < daoCfg.MinSpread {
		return 0, &SpreadTooNarrowError{
			Spread:    instant.Spread,
			MinSpread: daoCfg.MinSpread,
		}
	}
	// Flip-rate requirement: manipulation through rapid leader changes earns
	// no extra tolerance from a wide spread snapshot alone
	flips, err := m.config.Oracle.FlipCount(p.Id, now, daoCfg.FlipWindowMs)
	if err != nil {
		return 0, fmt.Errorf(
			"counting leader flips for proposal %s: %w",
			p.Id,
			err,
		)
	}
	maxFlips := EffectiveMaxFlips(daoCfg, instant.Spread)
	if flips > maxFlips {
		return 0, &FlipRateError{
			ObservedFlips: flips,
			MaxFlips:      maxFlips,
			WindowMs:      daoCfg.FlipWindowMs,
		}
	}
	// All guards passed: same finalization path as scheduled resolution
	winner, err := m.finalize(p, now)
	if err != nil {
		return 0, err
	}
	m.metrics.earlyResolutions.Inc()
	reward := daoCfg.KeeperReward
	if reward > 0 && m.config.Vault != nil {
		if err := m.config.Vault.PayFromRevenue(keeper, reward); err != nil {
			m.logger.Warn(
				"keeper reward skipped",
				"component", "proposal",
				"proposal", p.Id.String(),
				"keeper", keeper,
				"error", err,
			)
			reward = 0
		}
	}
	m.logger.Info(
		"proposal resolved early",
		"component", "proposal",
		"proposal", p.Id.String(),
		"winning_outcome", winner,
		"age_ms", age,
		"keeper", keeper,
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			EarlyResolvedEventType,
			event.NewEvent(EarlyResolvedEventType, EarlyResolvedEvent{
				ProposalId:     p.Id,
				WinningOutcome: winner,
				AgeMs:          age,
				Keeper:         keeper,
				Reward:         reward,
			}),
		)
	}
	return winner, nil
}
