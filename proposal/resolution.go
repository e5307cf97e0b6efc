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

	"github.com/govex-dao/futarchy/fixed"
)

// EffectiveThreshold returns the pass/fail bar for outcome 0 after applying
// any sponsorship reduction. Sponsorship always lowers the bar, regardless of
// the sign of the base threshold. A magnitude overflow here is a proposal
// setup error and is never clamped.
func EffectiveThreshold(p *Proposal) (fixed.Signed, error) {
	if !p.Sponsored() {
		return p.Twap.Threshold, nil
	}
	threshold, err := fixed.Sub(p.Twap.Threshold, p.SponsorThresholdReduction)
	if err != nil {
		return fixed.Signed{}, fmt.Errorf(
			"proposal %s: threshold adjustment: %w",
			p.Id,
			err,
		)
	}
	return threshold, nil
}

// ResolveByTwap computes the winning outcome from per-outcome time-weighted
// prices. The only resolution rule implemented is binary: outcome 0's TWAP
// strictly above the effective threshold selects outcome 0, anything else
// selects outcome 1. For proposals with more than two outcomes the same
// binary comparison is applied; generalizing to a true N-way rule is an open
// design question and deliberately not invented here.
func ResolveByTwap(p *Proposal, twapPrices []uint64) (int, error) {
	if p.OutcomeCount < 2 {
		return 0, ErrTooFewOutcomes
	}
	if len(twapPrices) != p.OutcomeCount {
		return 0, fmt.Errorf(
			"proposal %s: oracle returned %d prices for %d outcomes",
			p.Id,
			len(twapPrices),
			p.OutcomeCount,
		)
	}
	threshold, err := EffectiveThreshold(p)
	if err != nil {
		return 0, err
	}
	if fixed.Compare(fixed.FromUint64(twapPrices[0]), threshold) == fixed.Greater {
		return 0, nil
	}
	return 1, nil
}

// InstantResolution is the result of scanning current (non-time-weighted)
// prices. Used only for early-resolution eligibility, never for settlement.
type InstantResolution struct {
	WinnerIndex int
	WinnerPrice uint64
	// Spread is winner price minus second-place price; never negative
	Spread uint64
}

// ResolveByInstantPrice scans all outcomes' current prices and returns the
// leader, its price, and the spread to second place. Ties resolve to the
// lowest outcome index, matching the TWAP path's bias toward outcome 0.
func ResolveByInstantPrice(p *Proposal, prices []uint64) (InstantResolution, error) {
	if p.OutcomeCount < 2 {
		return InstantResolution{}, ErrTooFewOutcomes
	}
	if len(prices) != p.OutcomeCount {
		return InstantResolution{}, fmt.Errorf(
			"proposal %s: oracle returned %d prices for %d outcomes",
			p.Id,
			len(prices),
			p.OutcomeCount,
		)
	}
	winnerIdx := 0
	for i := 1; i < len(prices); i++ {
		if prices[i] > prices[winnerIdx] {
			winnerIdx = i
		}
	}
	var second uint64
	haveSecond := false
	for i, price := range prices {
		if i == winnerIdx {
			continue
		}
		if !haveSecond || price > second {
			second = price
			haveSecond = true
		}
	}
	return InstantResolution{
		WinnerIndex: winnerIdx,
		WinnerPrice: prices[winnerIdx],
		Spread:      prices[winnerIdx] - second,
	}, nil
}
