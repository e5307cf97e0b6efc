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

	"github.com/govex-dao/futarchy/event"
)

const (
	CreatedEventType          event.EventType = "proposal.created"
	StateChangeEventType      event.EventType = "proposal.state"
	SponsoredEventType        event.EventType = "proposal.sponsored"
	OutcomeSponsoredEventType event.EventType = "proposal.outcome_sponsored"
	SponsorEvictedEventType   event.EventType = "proposal.sponsor_evicted"
	FinalizedEventType        event.EventType = "proposal.finalized"
	EarlyResolvedEventType    event.EventType = "proposal.early_resolved"
)

type CreatedEvent struct {
	ProposalId   uuid.UUID
	DaoId        uuid.UUID
	Proposer     string
	OutcomeCount int
}

type StateChangeEvent struct {
	ProposalId uuid.UUID
	OldState   State
	NewState   State
}

type SponsoredEvent struct {
	ProposalId uuid.UUID
	Sponsor    string
	// QuotaConsumed is false for the free sponsor-to-zero variant
	QuotaConsumed bool
}

// OutcomeSponsoredEvent is emitted when a quota holder backs one outcome's
// creator fee.
type OutcomeSponsoredEvent struct {
	ProposalId   uuid.UUID
	OutcomeIndex int
	Sponsor      string
}

type SponsorEvictedEvent struct {
	ProposalId    uuid.UUID
	Sponsor       string
	QuotaRefunded bool
}

// FinalizedEvent is emitted exactly once per proposal, whether finalization
// happened on schedule or early.
type FinalizedEvent struct {
	ProposalId     uuid.UUID
	DaoId          uuid.UUID
	WinningOutcome int
	Approved       bool
	Timestamp      time.Time
}

type EarlyResolvedEvent struct {
	ProposalId     uuid.UUID
	WinningOutcome int
	// AgeMs is the proposal age at the moment of resolution
	AgeMs  int64
	Keeper string
	Reward uint64
}
