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
	"time"

	"github.com/google/uuid"
)

// MarketOracle is the pricing/oracle primitive the engine consumes. Prices
// are opaque non-negative fixed-point units; the AMM pricing formula is a
// separate subsystem. Implementations must return exactly one price per
// outcome.
type MarketOracle interface {
	// CreateMarket registers the outcome markets for a proposal; the initial
	// observation seeds every outcome when trading starts and stepMax caps
	// per-observation price movement (zero disables clamping)
	CreateMarket(
		proposalId uuid.UUID,
		outcomeCount int,
		initialObservation uint64,
		stepMax uint64,
	) error
	// TimeWeightedPrices returns the per-outcome TWAPs for a proposal
	TimeWeightedPrices(proposalId uuid.UUID) ([]uint64, error)
	// InstantPrices returns the current (non-time-weighted) per-outcome prices
	InstantPrices(proposalId uuid.UUID) ([]uint64, error)
	// FlipCount returns how many times the instantaneous leading outcome
	// changed within the trailing window [nowMs-windowMs, nowMs]
	FlipCount(proposalId uuid.UUID, nowMs int64, windowMs int64) (int, error)
	// StartTrading begins accepting trades and seeds each outcome pool's
	// oracle start time
	StartTrading(proposalId uuid.UUID, atMs int64) error
	// StopTrading halts trade acceptance; idempotent
	StopTrading(proposalId uuid.UUID) error
	// MarkFinalized records the winning outcome on the market state
	MarkFinalized(proposalId uuid.UUID, winningOutcome int) error
}

// LiquidityCoordinator moves funds between the spot pool and the per-outcome
// conditional pools. Invoked only for proposals funded from DAO-owned
// liquidity; the recombination and oracle backfill algorithms are delegated.
type LiquidityCoordinator interface {
	RecombineOnFinalize(proposalId uuid.UUID, winningOutcome int) error
}

// ActionExecutor consumes the winning outcome's action bundle after
// finalization. It receives the cancellation capability alongside the bundle
// as proof the slot was emptied exactly once; the wire format of the bundle
// payload is owned by the executor.
type ActionExecutor interface {
	ExecuteActions(ticket CancelTicket, bundle *ActionBundle) error
}

// QuotaRegistry tracks time-windowed sponsorship quotas per (DAO, sponsor).
type QuotaRegistry interface {
	// CheckSponsorQuota reports whether the sponsor can consume quota and
	// how much remains
	CheckSponsorQuota(daoId uuid.UUID, sponsor string) (bool, int, error)
	UseSponsorQuota(daoId uuid.UUID, sponsor string) error
	RefundSponsorQuota(daoId uuid.UUID, sponsor string) error
	// IsMember reports whether the sponsor is registered with the DAO's
	// quota registry at all (sponsor-to-zero requires membership only)
	IsMember(daoId uuid.UUID, sponsor string) bool
}

// Clock provides monotonic wall-clock milliseconds. Injected so tests and
// the keeper can control time.
type Clock interface {
	NowMs() int64
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Store is the persistence surface the Manager writes proposals and action
// bundles through. Implemented by the database package; a nil Store keeps
// everything in memory.
type Store interface {
	SaveProposal(p *Proposal) error
	// FinalizeProposal persists the finalized proposal and removes the
	// cleared outcomes' action bundles in a single transaction
	FinalizeProposal(p *Proposal, clearedOutcomes []int) error
	DeleteProposal(proposalId uuid.UUID) error
	PutActionBundle(proposalId uuid.UUID, outcomeIndex int, payload []byte) error
	DeleteActionBundle(proposalId uuid.UUID, outcomeIndex int) error
}
