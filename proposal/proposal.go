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

// Package proposal implements the futarchy proposal resolution engine: the
// proposal aggregate, its lifecycle state machine, price-based outcome
// resolution, the early-resolution guard, and sponsorship management.
package proposal

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/govex-dao/futarchy/fixed"
)

// State is the lifecycle state of a proposal. States only move forward.
type State uint8

const (
	StatePremarket State = iota
	StateReview
	StateTrading
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StatePremarket:
		return "premarket"
	case StateReview:
		return "review"
	case StateTrading:
		return "trading"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(s))
	}
}

// OutcomeZeroIndex is the special outcome slot: it carries no actions and
// its creator fee is conventionally zero. Under the binary resolution rule
// its time-weighted price clearing the threshold counts as acceptance.
const OutcomeZeroIndex = 0

// TwapConfig holds the time-weighted price parameters for a proposal's
// outcome markets.
type TwapConfig struct {
	// InitialObservation seeds each outcome oracle when trading starts
	InitialObservation uint64
	// StepMax caps per-observation price movement in the oracle
	StepMax uint64
	// Threshold is the base pass/fail bar for outcome 0; may be negative
	Threshold fixed.Signed
	// StartDelayMs is how long after trading starts before prices are recorded
	StartDelayMs int64
}

// ActionBundle is the opaque serialized action set stored for one outcome.
// The wire encoding is owned by the action/intent layer; this engine only
// guarantees slot integrity.
type ActionBundle struct {
	Payload []byte
	Count   int
}

// CancelTicket is the one-time capability proving ownership of a single
// pending-action slot. It can only be minted by the method that atomically
// empties the slot it attests to, which makes a replay against another
// proposal or outcome impossible.
type CancelTicket struct {
	proposalId   uuid.UUID
	outcomeIndex int
}

func (t CancelTicket) ProposalId() uuid.UUID {
	return t.proposalId
}

func (t CancelTicket) OutcomeIndex() int {
	return t.outcomeIndex
}

// Proposal is the aggregate record for a single governance vote. All
// mutation goes through methods on this type or the Manager; there is no
// free-floating proposal state anywhere else.
type Proposal struct {
	Id   uuid.UUID
	DaoId uuid.UUID

	State    State
	Proposer string

	// Outcome metadata; index 0 is always the "no action" outcome
	OutcomeCount       int
	OutcomeMessages    []string
	OutcomeCreators    []string
	OutcomeCreatorFees []uint64

	// Timing (unix milliseconds)
	CreatedAtMs           int64
	MarketInitializedAtMs int64 // zero until trading infrastructure attaches
	ReviewPeriodMs        int64
	TradingPeriodMs       int64

	Twap TwapConfig
	// TwapPrices is populated at finalization only
	TwapPrices []uint64

	// Sponsorship; SponsoredBy empty means unsponsored
	SponsoredBy               string
	SponsorThresholdReduction fixed.Signed
	// Per-outcome fee backing; an empty entry means unbacked. A backed
	// outcome's creator fee is refunded even when outcome 0 wins.
	OutcomeSponsors []string
	// sponsorQuotaConsumed distinguishes quota-costing sponsorship from the
	// free sponsor-to-zero variant for eviction refunds
	sponsorQuotaConsumed bool

	WinningOutcome *int

	UsedQuota            bool
	FeeEscrowBalance     uint64
	FundedByDAOLiquidity bool

	// One pending-action slot per outcome; a slot is nil when empty and
	// slotConsumed marks it permanently empty once taken
	pendingActions        []*ActionBundle
	slotConsumed          []bool
	ActionCountPerOutcome []int

	// marketStopped records that trading acceptance was already halted
	marketStopped bool
}

// referenceTimeMs is the anchor for all time-driven transitions. Falls back
// to creation time when trading infrastructure was never attached.
func (p *Proposal) referenceTimeMs() int64 {
	if p.MarketInitializedAtMs > 0 {
		return p.MarketInitializedAtMs
	}
	return p.CreatedAtMs
}

// TradingStartsAtMs returns when the review period ends and trading begins.
func (p *Proposal) TradingStartsAtMs() int64 {
	return p.referenceTimeMs() + p.ReviewPeriodMs
}

// TradingEndsAtMs returns the scheduled end of the trading period.
func (p *Proposal) TradingEndsAtMs() int64 {
	return p.TradingStartsAtMs() + p.TradingPeriodMs
}

// TwapWindowOpensAtMs returns when price recording begins during trading.
// Sponsorship is forbidden at or after this instant.
func (p *Proposal) TwapWindowOpensAtMs() int64 {
	return p.TradingStartsAtMs() + p.Twap.StartDelayMs
}

// TradingEnded reports whether the scheduled trading period has elapsed.
func (p *Proposal) TradingEnded(nowMs int64) bool {
	return nowMs >= p.TradingEndsAtMs()
}

// AgeMs returns the proposal age relative to its reference time.
func (p *Proposal) AgeMs(nowMs int64) int64 {
	return nowMs - p.referenceTimeMs()
}

// Sponsored reports whether a sponsorship is currently applied.
func (p *Proposal) Sponsored() bool {
	return p.SponsoredBy != ""
}

// OutcomeSponsor returns the backer of an outcome's creator fee, or the
// empty string when the outcome is unbacked.
func (p *Proposal) OutcomeSponsor(outcomeIndex int) string {
	if outcomeIndex < 0 || outcomeIndex >= len(p.OutcomeSponsors) {
		return ""
	}
	return p.OutcomeSponsors[outcomeIndex]
}

// checkInvariants verifies the structural invariants that must hold at every
// mutation boundary.
func (p *Proposal) checkInvariants() error {
	if p.OutcomeCount != len(p.OutcomeMessages) ||
		p.OutcomeCount != len(p.OutcomeCreators) ||
		p.OutcomeCount != len(p.OutcomeCreatorFees) ||
		p.OutcomeCount != len(p.OutcomeSponsors) ||
		p.OutcomeCount != len(p.pendingActions) ||
		p.OutcomeCount != len(p.slotConsumed) ||
		p.OutcomeCount != len(p.ActionCountPerOutcome) {
		return fmt.Errorf(
			"proposal %s: outcome array length mismatch (count=%d)",
			p.Id,
			p.OutcomeCount,
		)
	}
	return nil
}

// addOutcome appends a new outcome slot. Only legal while PREMARKET.
func (p *Proposal) addOutcome(
	message string,
	creator string,
	fee uint64,
	actions *ActionBundle,
) error {
	if p.State != StatePremarket {
		return &InvalidStateError{
			ProposalId: p.Id,
			State:      p.State,
			Operation:  "add outcome",
		}
	}
	p.OutcomeMessages = append(p.OutcomeMessages, message)
	p.OutcomeCreators = append(p.OutcomeCreators, creator)
	p.OutcomeCreatorFees = append(p.OutcomeCreatorFees, fee)
	p.OutcomeSponsors = append(p.OutcomeSponsors, "")
	p.pendingActions = append(p.pendingActions, actions)
	p.slotConsumed = append(p.slotConsumed, false)
	actionCount := 0
	if actions != nil {
		actionCount = actions.Count
	}
	p.ActionCountPerOutcome = append(p.ActionCountPerOutcome, actionCount)
	p.OutcomeCount++
	p.FeeEscrowBalance += fee
	return p.checkInvariants()
}

// HasPendingAction reports whether the slot for an outcome currently holds an
// action bundle.
func (p *Proposal) HasPendingAction(outcomeIndex int) bool {
	if outcomeIndex < 0 || outcomeIndex >= p.OutcomeCount {
		return false
	}
	return p.pendingActions[outcomeIndex] != nil
}

// SlotConsumed reports whether an outcome's slot was already taken.
func (p *Proposal) SlotConsumed(outcomeIndex int) bool {
	if outcomeIndex < 0 || outcomeIndex >= len(p.slotConsumed) {
		return false
	}
	return p.slotConsumed[outcomeIndex]
}

// takePendingAction atomically empties an outcome's pending-action slot and
// mints the one-time cancellation capability for it. A slot can be taken at
// most once; a second take fails.
func (p *Proposal) takePendingAction(
	outcomeIndex int,
) (CancelTicket, *ActionBundle, error) {
	if outcomeIndex < 0 || outcomeIndex >= p.OutcomeCount {
		return CancelTicket{}, nil, &OutcomeOutOfRangeError{
			ProposalId:   p.Id,
			OutcomeIndex: outcomeIndex,
			OutcomeCount: p.OutcomeCount,
		}
	}
	if p.slotConsumed[outcomeIndex] {
		return CancelTicket{}, nil, &SlotTakenError{
			ProposalId:   p.Id,
			OutcomeIndex: outcomeIndex,
		}
	}
	bundle := p.pendingActions[outcomeIndex]
	if bundle == nil {
		return CancelTicket{}, nil, &SlotEmptyError{
			ProposalId:   p.Id,
			OutcomeIndex: outcomeIndex,
		}
	}
	p.pendingActions[outcomeIndex] = nil
	p.slotConsumed[outcomeIndex] = true
	ticket := CancelTicket{
		proposalId:   p.Id,
		outcomeIndex: outcomeIndex,
	}
	return ticket, bundle, nil
}
