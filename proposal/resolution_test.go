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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govex-dao/futarchy/fixed"
)

// binaryProposal builds the minimal aggregate the pure resolution functions
// need.
func binaryProposal(outcomeCount int, threshold fixed.Signed) *Proposal {
	return &Proposal{
		Id:           uuid.New(),
		OutcomeCount: outcomeCount,
		Twap:         TwapConfig{Threshold: threshold},
	}
}

func TestResolveByTwap(t *testing.T) {
	testDefs := []struct {
		name       string
		threshold  fixed.Signed
		reduction  fixed.Signed
		sponsored  bool
		twapPrices []uint64
		wantWinner int
	}{
		{
			name:       "accepted above threshold",
			threshold:  fixed.FromUint64(500),
			twapPrices: []uint64{600, 400},
			wantWinner: 0,
		},
		{
			name:       "rejected below threshold",
			threshold:  fixed.FromUint64(500),
			twapPrices: []uint64{400, 600},
			wantWinner: 1,
		},
		{
			// Strictly-greater rule: a tie rejects
			name:       "tie rejects",
			threshold:  fixed.FromUint64(500),
			twapPrices: []uint64{500, 500},
			wantWinner: 1,
		},
		{
			name:       "negative threshold always passes",
			threshold:  fixed.NegFromUint64(100),
			twapPrices: []uint64{0, 999},
			wantWinner: 0,
		},
		{
			name:       "sponsored to zero accepts modest price",
			threshold:  fixed.FromUint64(500),
			reduction:  fixed.FromUint64(500),
			sponsored:  true,
			twapPrices: []uint64{300, 700},
			wantWinner: 0,
		},
		{
			name:       "sponsored below zero",
			threshold:  fixed.FromUint64(500),
			reduction:  fixed.FromUint64(800),
			sponsored:  true,
			twapPrices: []uint64{0, 0},
			wantWinner: 0,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			p := binaryProposal(2, testDef.threshold)
			if testDef.sponsored {
				p.SponsoredBy = "sponsor"
				p.SponsorThresholdReduction = testDef.reduction
			}
			winner, err := ResolveByTwap(p, testDef.twapPrices)
			require.NoError(t, err)
			assert.Equal(t, testDef.wantWinner, winner)
		})
	}
}

func TestResolveByTwapValidation(t *testing.T) {
	p := binaryProposal(1, fixed.FromUint64(500))
	_, err := ResolveByTwap(p, []uint64{600})
	assert.ErrorIs(t, err, ErrTooFewOutcomes)

	p = binaryProposal(2, fixed.FromUint64(500))
	_, err = ResolveByTwap(p, []uint64{600})
	assert.ErrorContains(t, err, "1 prices for 2 outcomes")
}

func TestEffectiveThresholdMonotonic(t *testing.T) {
	// Increasing reduction magnitudes never raise the bar
	p := binaryProposal(2, fixed.FromUint64(500))
	p.SponsoredBy = "sponsor"
	previous, err := EffectiveThreshold(p)
	require.NoError(t, err)
	for _, reduction := range []uint64{0, 100, 500, 800, 2_000} {
		p.SponsorThresholdReduction = fixed.FromUint64(reduction)
		effective, err := EffectiveThreshold(p)
		require.NoError(t, err)
		assert.NotEqual(
			t,
			fixed.Greater,
			fixed.Compare(effective, previous),
			"reduction %d raised the effective threshold",
			reduction,
		)
		previous = effective
	}
}

func TestEffectiveThresholdUnsponsored(t *testing.T) {
	p := binaryProposal(2, fixed.FromUint64(500))
	// A leftover reduction value without a sponsor has no effect
	p.SponsorThresholdReduction = fixed.FromUint64(400)
	effective, err := EffectiveThreshold(p)
	require.NoError(t, err)
	assert.Equal(t, fixed.Equal, fixed.Compare(effective, fixed.FromUint64(500)))
}

func TestResolveByInstantPrice(t *testing.T) {
	testDefs := []struct {
		name       string
		prices     []uint64
		wantWinner int
		wantSpread uint64
	}{
		{
			name:       "clear leader",
			prices:     []uint64{300, 900},
			wantWinner: 1,
			wantSpread: 600,
		},
		{
			name:       "middle outcome leads",
			prices:     []uint64{300, 900, 600},
			wantWinner: 1,
			wantSpread: 300,
		},
		{
			// Ties resolve to the lowest index
			name:       "tie goes to lowest index",
			prices:     []uint64{500, 500, 400},
			wantWinner: 0,
			wantSpread: 0,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			p := binaryProposal(len(testDef.prices), fixed.FromUint64(500))
			result, err := ResolveByInstantPrice(p, testDef.prices)
			require.NoError(t, err)
			assert.Equal(t, testDef.wantWinner, result.WinnerIndex)
			assert.Equal(t, testDef.prices[testDef.wantWinner], result.WinnerPrice)
			assert.Equal(t, testDef.wantSpread, result.Spread)
		})
	}
}

func TestResolveByInstantPriceValidation(t *testing.T) {
	p := binaryProposal(3, fixed.FromUint64(500))
	_, err := ResolveByInstantPrice(p, []uint64{500, 600})
	assert.ErrorContains(t, err, "2 prices for 3 outcomes")
}
