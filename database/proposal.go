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

package database

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/govex-dao/futarchy/database/models"
	"github.com/govex-dao/futarchy/database/types"
	"github.com/govex-dao/futarchy/proposal"
)

func actionBundleKey(proposalId uuid.UUID, outcomeIndex int) []byte {
	return []byte(fmt.Sprintf("action/%s/%d", proposalId, outcomeIndex))
}

func actionBundlePrefix(proposalId uuid.UUID) []byte {
	return []byte(fmt.Sprintf("action/%s/", proposalId))
}

// SaveProposal upserts the proposal metadata row and its outcome rows
func (d *Database) SaveProposal(p *proposal.Proposal) error {
	txn := newMetadataOnlyTxn(d, true)
	return txn.Do(func(txn *Txn) error {
		db, err := d.metadata.ResolveDB(txn.Metadata())
		if err != nil {
			return err
		}
		return upsertProposalRows(db, p)
	})
}

// FinalizeProposal persists the finalized proposal and removes the cleared
// outcomes' action bundle payloads in a single coordinated transaction, so
// the winner metadata and the slot clearing commit together
func (d *Database) FinalizeProposal(
	p *proposal.Proposal,
	clearedOutcomes []int,
) error {
	txn := d.Transaction(true)
	return txn.Do(func(txn *Txn) error {
		db, err := d.metadata.ResolveDB(txn.Metadata())
		if err != nil {
			return err
		}
		if err := upsertProposalRows(db, p); err != nil {
			return err
		}
		for _, outcomeIndex := range clearedOutcomes {
			err := d.blob.Delete(
				txn.Blob(),
				actionBundleKey(p.Id, outcomeIndex),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// upsertProposalRows writes the proposal row and its outcome rows through an
// already-resolved transaction handle
func upsertProposalRows(db *gorm.DB, p *proposal.Proposal) error {
	row := models.Proposal{
		ProposalId:             p.Id.String(),
		DaoId:                  p.DaoId.String(),
		State:                  uint8(p.State),
		Proposer:               p.Proposer,
		OutcomeCount:           p.OutcomeCount,
		CreatedAtMs:            p.CreatedAtMs,
		MarketInitializedAtMs:  p.MarketInitializedAtMs,
		ReviewPeriodMs:         p.ReviewPeriodMs,
		TradingPeriodMs:        p.TradingPeriodMs,
		TwapStartDelayMs:       p.Twap.StartDelayMs,
		TwapInitialObservation: types.Uint64(p.Twap.InitialObservation),
		TwapStepMax:            types.Uint64(p.Twap.StepMax),
		ThresholdMagnitudeHi:   types.Uint64(p.Twap.Threshold.Magnitude.Hi),
		ThresholdMagnitudeLo:   types.Uint64(p.Twap.Threshold.Magnitude.Lo),
		ThresholdNegative:      p.Twap.Threshold.Negative,
		SponsoredBy:            p.SponsoredBy,
		SponsorReductionHi: types.Uint64(
			p.SponsorThresholdReduction.Magnitude.Hi,
		),
		SponsorReductionLo: types.Uint64(
			p.SponsorThresholdReduction.Magnitude.Lo,
		),
		SponsorReductionNegative: p.SponsorThresholdReduction.Negative,
		WinningOutcome:           p.WinningOutcome,
		UsedQuota:                p.UsedQuota,
		FeeEscrowBalance:         types.Uint64(p.FeeEscrowBalance),
		FundedByDAOLiquidity:     p.FundedByDAOLiquidity,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "proposal_id"}},
		UpdateAll: true,
	}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	for i := range p.OutcomeCount {
		var twapPrice uint64
		if i < len(p.TwapPrices) {
			twapPrice = p.TwapPrices[i]
		}
		outcomeRow := models.Outcome{
			ProposalId:   p.Id.String(),
			OutcomeIndex: i,
			Message:      p.OutcomeMessages[i],
			Creator:      p.OutcomeCreators[i],
			CreatorFee:   types.Uint64(p.OutcomeCreatorFees[i]),
			Sponsor:      p.OutcomeSponsor(i),
			ActionCount:  p.ActionCountPerOutcome[i],
			TwapPrice:    types.Uint64(twapPrice),
			SlotConsumed: p.SlotConsumed(i),
		}
		result := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "proposal_id"},
				{Name: "outcome_index"},
			},
			UpdateAll: true,
		}).Create(&outcomeRow)
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// DeleteProposal removes a proposal's metadata rows and any action bundle
// payloads still held for it
func (d *Database) DeleteProposal(proposalId uuid.UUID) error {
	txn := d.Transaction(true)
	return txn.Do(func(txn *Txn) error {
		db, err := d.metadata.ResolveDB(txn.Metadata())
		if err != nil {
			return err
		}
		result := db.Where("proposal_id = ?", proposalId.String()).
			Delete(&models.Proposal{})
		if result.Error != nil {
			return result.Error
		}
		result = db.Where("proposal_id = ?", proposalId.String()).
			Delete(&models.Outcome{})
		if result.Error != nil {
			return result.Error
		}
		return d.blob.DeletePrefix(txn.Blob(), actionBundlePrefix(proposalId))
	})
}

// PutActionBundle stores an outcome's serialized action payload
func (d *Database) PutActionBundle(
	proposalId uuid.UUID,
	outcomeIndex int,
	payload []byte,
) error {
	txn := newBlobOnlyTxn(d, true)
	return txn.Do(func(txn *Txn) error {
		return d.blob.Set(
			txn.Blob(),
			actionBundleKey(proposalId, outcomeIndex),
			payload,
		)
	})
}

// DeleteActionBundle removes an outcome's serialized action payload
func (d *Database) DeleteActionBundle(
	proposalId uuid.UUID,
	outcomeIndex int,
) error {
	txn := newBlobOnlyTxn(d, true)
	return txn.Do(func(txn *Txn) error {
		return d.blob.Delete(
			txn.Blob(),
			actionBundleKey(proposalId, outcomeIndex),
		)
	})
}

// GetActionBundle retrieves an outcome's serialized action payload. Returns
// types.ErrBlobKeyNotFound when absent.
func (d *Database) GetActionBundle(
	proposalId uuid.UUID,
	outcomeIndex int,
) ([]byte, error) {
	txn := newBlobOnlyTxn(d, false)
	defer txn.Release()
	return d.blob.Get(txn.Blob(), actionBundleKey(proposalId, outcomeIndex))
}

// GetProposalRow retrieves a proposal's metadata row by id
func (d *Database) GetProposalRow(
	proposalId uuid.UUID,
) (*models.Proposal, error) {
	var row models.Proposal
	result := d.metadata.DB().
		Where("proposal_id = ?", proposalId.String()).
		First(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	return &row, nil
}

// GetOutcomeRows retrieves a proposal's outcome rows ordered by index
func (d *Database) GetOutcomeRows(
	proposalId uuid.UUID,
) ([]models.Outcome, error) {
	var rows []models.Outcome
	result := d.metadata.DB().
		Where("proposal_id = ?", proposalId.String()).
		Order("outcome_index").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	return rows, nil
}

func newBlobOnlyTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if bs := db.Blob(); bs != nil {
		t.blobTxn = bs.NewTransaction(readWrite)
	}
	return t
}

func newMetadataOnlyTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if ms := db.Metadata(); ms != nil {
		t.metadataTxn = ms.Transaction()
	}
	return t
}
