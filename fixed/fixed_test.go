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

package fixed_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govex-dao/futarchy/fixed"
)

func TestCompare(t *testing.T) {
	testDefs := []struct {
		name     string
		a        fixed.Signed
		b        fixed.Signed
		expected fixed.Ordering
	}{
		{"positive less", fixed.FromUint64(3), fixed.FromUint64(7), fixed.Less},
		{"positive greater", fixed.FromUint64(7), fixed.FromUint64(3), fixed.Greater},
		{"equal", fixed.FromUint64(5), fixed.FromUint64(5), fixed.Equal},
		{"negative vs positive", fixed.NegFromUint64(1), fixed.FromUint64(1), fixed.Less},
		{"positive vs negative", fixed.FromUint64(1), fixed.NegFromUint64(1), fixed.Greater},
		{"both negative larger magnitude is less", fixed.NegFromUint64(9), fixed.NegFromUint64(2), fixed.Less},
		{"both negative equal", fixed.NegFromUint64(4), fixed.NegFromUint64(4), fixed.Equal},
		{"zero vs negative zero", fixed.Zero(), fixed.Signed{Negative: true}, fixed.Equal},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			require.Equal(t, testDef.expected, fixed.Compare(testDef.a, testDef.b))
		})
	}
}

// The four sign-combination branches of Sub are exercised independently
func TestSubPositiveMinusPositive(t *testing.T) {
	got, err := fixed.Sub(fixed.FromUint64(10), fixed.FromUint64(3))
	require.NoError(t, err)
	require.Equal(t, fixed.FromUint64(7), got)
	// Delta larger than base flips the sign
	got, err = fixed.Sub(fixed.FromUint64(3), fixed.FromUint64(10))
	require.NoError(t, err)
	require.Equal(t, fixed.NegFromUint64(7), got)
	// Equal magnitudes collapse to canonical zero
	got, err = fixed.Sub(fixed.FromUint64(5), fixed.FromUint64(5))
	require.NoError(t, err)
	require.Equal(t, fixed.Zero(), got)
	require.False(t, got.Negative)
}

func TestSubNegativeMinusNegative(t *testing.T) {
	// -3 - (-10) = 7
	got, err := fixed.Sub(fixed.NegFromUint64(3), fixed.NegFromUint64(10))
	require.NoError(t, err)
	require.Equal(t, fixed.FromUint64(7), got)
	// -10 - (-3) = -7
	got, err = fixed.Sub(fixed.NegFromUint64(10), fixed.NegFromUint64(3))
	require.NoError(t, err)
	require.Equal(t, fixed.NegFromUint64(7), got)
}

func TestSubPositiveMinusNegative(t *testing.T) {
	// 10 - (-3) = 13
	got, err := fixed.Sub(fixed.FromUint64(10), fixed.NegFromUint64(3))
	require.NoError(t, err)
	require.Equal(t, fixed.FromUint64(13), got)
}

func TestSubNegativeMinusPositive(t *testing.T) {
	// -10 - 3 = -13
	got, err := fixed.Sub(fixed.NegFromUint64(10), fixed.FromUint64(3))
	require.NoError(t, err)
	require.Equal(t, fixed.NegFromUint64(13), got)
}

func TestSubOverflow(t *testing.T) {
	maxMag := fixed.Signed{
		Magnitude: fixed.Uint128{Hi: ^uint64(0), Lo: ^uint64(0)},
	}
	_, err := fixed.Sub(maxMag, fixed.NegFromUint64(1))
	require.True(t, errors.Is(err, fixed.ErrMagnitudeOverflow))
	negMax := maxMag
	negMax.Negative = true
	_, err = fixed.Sub(negMax, fixed.FromUint64(1))
	require.True(t, errors.Is(err, fixed.ErrMagnitudeOverflow))
}

func TestUint128Carry(t *testing.T) {
	a := fixed.Uint128{Lo: ^uint64(0)}
	sum, err := a.Add(fixed.Uint128From64(1))
	require.NoError(t, err)
	require.Equal(t, fixed.Uint128{Hi: 1, Lo: 0}, sum)
	require.Equal(t, a, sum.Sub(fixed.Uint128From64(1)))
}
