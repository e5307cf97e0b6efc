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

// Package models defines the GORM table models for proposal metadata.
package models

import (
	"github.com/govex-dao/futarchy/database/types"
)

// MigrateModels is the list of table models auto-migrated on startup
var MigrateModels = []any{
	&Proposal{},
	&Outcome{},
}

// Proposal is the queryable metadata row for a single proposal. The full
// aggregate lives in memory; this row exists for restart recovery and
// operator queries.
type Proposal struct {
	ID                        uint   `gorm:"primarykey"`
	ProposalId                string `gorm:"uniqueIndex"`
	DaoId                     string `gorm:"index"`
	State                     uint8  `gorm:"index"`
	Proposer                  string
	OutcomeCount              int
	CreatedAtMs               int64
	MarketInitializedAtMs     int64
	ReviewPeriodMs            int64
	TradingPeriodMs           int64
	TwapStartDelayMs          int64
	TwapInitialObservation    types.Uint64
	TwapStepMax               types.Uint64
	ThresholdMagnitudeHi      types.Uint64
	ThresholdMagnitudeLo      types.Uint64
	ThresholdNegative         bool
	SponsoredBy               string
	SponsorReductionHi        types.Uint64
	SponsorReductionLo        types.Uint64
	SponsorReductionNegative  bool
	WinningOutcome            *int
	UsedQuota                 bool
	FeeEscrowBalance          types.Uint64
	FundedByDAOLiquidity      bool
}

func (Proposal) TableName() string {
	return "proposal"
}

// Outcome is one outcome row belonging to a proposal. The action bundle
// payload itself lives in the blob store keyed by proposal and index.
type Outcome struct {
	ID           uint   `gorm:"primarykey"`
	ProposalId   string `gorm:"index:idx_outcome_proposal_index,unique"`
	OutcomeIndex int    `gorm:"index:idx_outcome_proposal_index,unique"`
	Message      string
	Creator      string
	CreatorFee   types.Uint64
	Sponsor      string
	ActionCount  int
	TwapPrice    types.Uint64
	SlotConsumed bool
}

func (Outcome) TableName() string {
	return "outcome"
}
