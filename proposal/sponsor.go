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
	"github.com/govex-dao/futarchy/fixed"
)

// checkSponsorable applies the guards shared by the mutating sponsorship
// calls and the CanSponsor predicate. Callers must hold the lock.
func (m *Manager) checkSponsorable(p *Proposal, daoCfg *dao.Config) error {
	if !daoCfg.SponsorshipEnabled {
		return ErrSponsorshipDisabled
	}
	if p.State == StateFinalized {
		return ErrAlreadyFinalized
	}
	if p.Sponsored() {
		return ErrAlreadySponsored
	}
	// Sponsorship before price recording begins is always safe; after the
	// window opens it is never allowed, even when the time-driven transition
	// to TRADING has not been applied yet
	if p.State != StatePremarket && m.clock.NowMs() >= p.TwapWindowOpensAtMs() {
		return ErrSponsorWindowClosed
	}
	return nil
}

// CanSponsor is the side-effect-free predicate matching SponsorProposal's
// guards exactly.
func (m *Manager) CanSponsor(proposalId uuid.UUID, sponsor string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	p, err := m.get(proposalId)
	if err != nil {
		return false, err
	}
	daoCfg, err := m.daoConfig(p.DaoId)
	if err != nil {
		return false, err
	}
	if err := m.checkSponsorable(p, daoCfg); err != nil {
		return false, nil
	}
	if m.config.Quota == nil {
		return false, nil
	}
	ok, _, err := m.config.Quota.CheckSponsorQuota(p.DaoId, sponsor)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SponsorProposal consumes one unit of the sponsor's time-windowed quota to
// apply the DAO's configured threshold reduction to the proposal.
func (m *Manager) SponsorProposal(proposalId uuid.UUID, sponsor string) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	daoCfg, err := m.daoConfig(p.DaoId)
	if err != nil {
		return err
	}
	if err := m.checkSponsorable(p, daoCfg); err != nil {
		return err
	}
	if m.config.Quota == nil {
		return ErrSponsorNoQuota
	}
	ok, _, err := m.config.Quota.CheckSponsorQuota(p.DaoId, sponsor)
	if err != nil {
		return fmt.Errorf("checking sponsor quota: %w", err)
	}
	if !ok {
		return ErrSponsorNoQuota
	}
	reduction := fixed.FromUint64(daoCfg.SponsorThresholdReduction)
	// Verify the adjusted threshold is representable before consuming quota
	if _, err := fixed.Sub(p.Twap.Threshold, reduction); err != nil {
		return fmt.Errorf("proposal %s: %w", p.Id, err)
	}
	if err := m.config.Quota.UseSponsorQuota(p.DaoId, sponsor); err != nil {
		return fmt.Errorf("consuming sponsor quota: %w", err)
	}
	m.applySponsorship(p, sponsor, reduction, true)
	return m.persist(p)
}

// SponsorOutcome consumes one unit of the sponsor's quota to back a single
// outcome's creator fee: a backed fee is refunded to its creator at
// finalization even when outcome 0 wins and unbacked fees are retained by
// the DAO. One backer per outcome; the timing guards match SponsorProposal.
func (m *Manager) SponsorOutcome(
	proposalId uuid.UUID,
	outcomeIndex int,
	sponsor string,
) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	daoCfg, err := m.daoConfig(p.DaoId)
	if err != nil {
		return err
	}
	if !daoCfg.SponsorshipEnabled {
		return ErrSponsorshipDisabled
	}
	if p.State == StateFinalized {
		return ErrAlreadyFinalized
	}
	if p.State != StatePremarket && m.clock.NowMs() >= p.TwapWindowOpensAtMs() {
		return ErrSponsorWindowClosed
	}
	if outcomeIndex < 0 || outcomeIndex >= p.OutcomeCount {
		return &OutcomeOutOfRangeError{
			ProposalId:   p.Id,
			OutcomeIndex: outcomeIndex,
			OutcomeCount: p.OutcomeCount,
		}
	}
	// Outcome 0 carries no fee to protect
	if outcomeIndex == OutcomeZeroIndex ||
		p.OutcomeCreatorFees[outcomeIndex] == 0 {
		return ErrOutcomeNotSponsorable
	}
	if p.OutcomeSponsors[outcomeIndex] != "" {
		return ErrOutcomeSponsored
	}
	if m.config.Quota == nil {
		return ErrSponsorNoQuota
	}
	ok, _, err := m.config.Quota.CheckSponsorQuota(p.DaoId, sponsor)
	if err != nil {
		return fmt.Errorf("checking sponsor quota: %w", err)
	}
	if !ok {
		return ErrSponsorNoQuota
	}
	if err := m.config.Quota.UseSponsorQuota(p.DaoId, sponsor); err != nil {
		return fmt.Errorf("consuming sponsor quota: %w", err)
	}
	p.OutcomeSponsors[outcomeIndex] = sponsor
	m.metrics.sponsorships.Inc()
	m.logger.Info(
		"outcome sponsored",
		"component", "proposal",
		"proposal", p.Id.String(),
		"outcome", outcomeIndex,
		"sponsor", sponsor,
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			OutcomeSponsoredEventType,
			event.NewEvent(OutcomeSponsoredEventType, OutcomeSponsoredEvent{
				ProposalId:   p.Id,
				OutcomeIndex: outcomeIndex,
				Sponsor:      sponsor,
			}),
		)
	}
	return m.persist(p)
}

// SponsorToZero is the free variant: any quota-registry member may set the
// reduction so the effective threshold becomes exactly zero. No quota is
// consumed.
func (m *Manager) SponsorToZero(proposalId uuid.UUID, sponsor string) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	daoCfg, err := m.daoConfig(p.DaoId)
	if err != nil {
		return err
	}
	if err := m.checkSponsorable(p, daoCfg); err != nil {
		return err
	}
	if m.config.Quota == nil || !m.config.Quota.IsMember(p.DaoId, sponsor) {
		return ErrSponsorNotRegistered
	}
	// threshold - reduction == 0 requires reduction == threshold
	m.applySponsorship(p, sponsor, p.Twap.Threshold, false)
	return m.persist(p)
}

func (m *Manager) applySponsorship(
	p *Proposal,
	sponsor string,
	reduction fixed.Signed,
	quotaConsumed bool,
) {
	p.SponsoredBy = sponsor
	p.SponsorThresholdReduction = reduction
	p.sponsorQuotaConsumed = quotaConsumed
	m.metrics.sponsorships.Inc()
	m.logger.Info(
		"proposal sponsored",
		"component", "proposal",
		"proposal", p.Id.String(),
		"sponsor", sponsor,
		"quota_consumed", quotaConsumed,
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			SponsoredEventType,
			event.NewEvent(SponsoredEventType, SponsoredEvent{
				ProposalId:    p.Id,
				Sponsor:       sponsor,
				QuotaConsumed: quotaConsumed,
			}),
		)
	}
}

// EvictSponsorship is the explicit reversal path: it clears the sponsorship
// fields and refunds the consumed quota. Idempotent when no quota was
// actually consumed.
func (m *Manager) EvictSponsorship(proposalId uuid.UUID) error {
	m.Lock()
	defer m.Unlock()
	p, err := m.get(proposalId)
	if err != nil {
		return err
	}
	if !p.Sponsored() {
		return nil
	}
	if p.State == StateFinalized {
		return ErrAlreadyFinalized
	}
	sponsor := p.SponsoredBy
	quotaRefunded := false
	if p.sponsorQuotaConsumed && m.config.Quota != nil {
		if err := m.config.Quota.RefundSponsorQuota(p.DaoId, sponsor); err != nil {
			return fmt.Errorf("refunding sponsor quota: %w", err)
		}
		quotaRefunded = true
	}
	p.SponsoredBy = ""
	p.SponsorThresholdReduction = fixed.Zero()
	p.sponsorQuotaConsumed = false
	m.logger.Info(
		"sponsorship evicted",
		"component", "proposal",
		"proposal", p.Id.String(),
		"sponsor", sponsor,
		"quota_refunded", quotaRefunded,
	)
	if m.eventBus != nil {
		m.eventBus.Publish(
			SponsorEvictedEventType,
			event.NewEvent(SponsorEvictedEventType, SponsorEvictedEvent{
				ProposalId:    p.Id,
				Sponsor:       sponsor,
				QuotaRefunded: quotaRefunded,
			}),
		)
	}
	return m.persist(p)
}
