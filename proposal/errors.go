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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProposalNotFound      = errors.New("proposal not found")
	ErrUnknownDAO            = errors.New("unknown DAO")
	ErrTooFewOutcomes        = errors.New("proposal requires at least two outcomes")
	ErrAlreadyFinalized      = errors.New("proposal already finalized")
	ErrTradingNotEnded       = errors.New("trading period has not ended")
	ErrMarketNotAttached     = errors.New("trading infrastructure not attached")
	ErrSponsorshipDisabled   = errors.New("sponsorship disabled for DAO")
	ErrAlreadySponsored      = errors.New("proposal already sponsored")
	ErrSponsorWindowClosed   = errors.New("sponsorship window closed: price recording has begun")
	ErrSponsorNoQuota        = errors.New("sponsor has no remaining quota")
	ErrSponsorNotRegistered  = errors.New("sponsor is not a quota registry member")
	ErrOutcomeSponsored      = errors.New("outcome already sponsored")
	ErrOutcomeNotSponsorable = errors.New("outcome has no refundable creator fee")
	ErrWinnerNotDetermined   = errors.New("winning outcome not determined")
)

// InvalidStateError is a precondition violation: the operation is not legal
// in the proposal's current lifecycle state.
type InvalidStateError struct {
	ProposalId uuid.UUID
	State      State
	Operation  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf(
		"proposal %s: cannot %s in state %s",
		e.ProposalId,
		e.Operation,
		e.State,
	)
}

type OutcomeOutOfRangeError struct {
	ProposalId   uuid.UUID
	OutcomeIndex int
	OutcomeCount int
}

func (e *OutcomeOutOfRangeError) Error() string {
	return fmt.Sprintf(
		"proposal %s: outcome index %d out of range [0, %d)",
		e.ProposalId,
		e.OutcomeIndex,
		e.OutcomeCount,
	)
}

// SlotTakenError indicates a second take attempt against an already-consumed
// pending-action slot.
type SlotTakenError struct {
	ProposalId   uuid.UUID
	OutcomeIndex int
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf(
		"proposal %s: pending-action slot %d already taken",
		e.ProposalId,
		e.OutcomeIndex,
	)
}

type SlotEmptyError struct {
	ProposalId   uuid.UUID
	OutcomeIndex int
}

func (e *SlotEmptyError) Error() string {
	return fmt.Sprintf(
		"proposal %s: pending-action slot %d is empty",
		e.ProposalId,
		e.OutcomeIndex,
	)
}

// SpreadTooNarrowError is an eligibility failure: the instantaneous price
// spread has not reached the DAO's early-resolution minimum. No side effects;
// callers may retry later.
type SpreadTooNarrowError struct {
	Spread    uint64
	MinSpread uint64
}

func (e *SpreadTooNarrowError) Error() string {
	return fmt.Sprintf(
		"spread %d below early-resolution minimum %d",
		e.Spread,
		e.MinSpread,
	)
}

// FlipRateError is an eligibility failure: the leading outcome changed too
// often within the trailing window.
type FlipRateError struct {
	ObservedFlips int
	MaxFlips      int
	WindowMs      int64
}

func (e *FlipRateError) Error() string {
	return fmt.Sprintf(
		"observed %d leader flips in %dms window, max allowed %d",
		e.ObservedFlips,
		e.WindowMs,
		e.MaxFlips,
	)
}

// EligibilityError is an eligibility failure from the external age/stability
// check.
type EligibilityError struct {
	ProposalId uuid.UUID
	Reason     string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf(
		"proposal %s not eligible for early resolution: %s",
		e.ProposalId,
		e.Reason,
	)
}
