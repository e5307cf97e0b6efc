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

// Package fixed provides sign-and-magnitude 128-bit fixed-point values used
// for proposal thresholds and sponsorship adjustments. Native signed integers
// are deliberately avoided so that arithmetic near the magnitude limits fails
// loudly instead of wrapping.
package fixed

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrMagnitudeOverflow indicates an arithmetic result that does not fit in a
// 128-bit magnitude. Threshold configuration should never get anywhere near
// this range, so callers must treat it as a setup error, not clamp it.
var ErrMagnitudeOverflow = errors.New("fixed: magnitude overflow")

// Uint128 is an unsigned 128-bit magnitude.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Uint128From64 returns a Uint128 holding v.
func Uint128From64(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// IsZero returns true when the magnitude is zero.
func (u Uint128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

// Cmp compares two magnitudes, returning -1, 0, or 1.
func (u Uint128) Cmp(other Uint128) int {
	switch {
	case u.Hi != other.Hi:
		if u.Hi < other.Hi {
			return -1
		}
		return 1
	case u.Lo != other.Lo:
		if u.Lo < other.Lo {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Add returns u+other, or ErrMagnitudeOverflow if the sum does not fit.
func (u Uint128) Add(other Uint128) (Uint128, error) {
	lo, carry := bits.Add64(u.Lo, other.Lo, 0)
	hi, carry := bits.Add64(u.Hi, other.Hi, carry)
	if carry != 0 {
		return Uint128{}, ErrMagnitudeOverflow
	}
	return Uint128{Hi: hi, Lo: lo}, nil
}

// Sub returns u-other. The caller must ensure u >= other; violating that is a
// programming error and panics.
func (u Uint128) Sub(other Uint128) Uint128 {
	lo, borrow := bits.Sub64(u.Lo, other.Lo, 0)
	hi, borrow := bits.Sub64(u.Hi, other.Hi, borrow)
	if borrow != 0 {
		panic("fixed: Uint128 subtraction underflow")
	}
	return Uint128{Hi: hi, Lo: lo}
}

func (u Uint128) String() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%d", u.Lo)
	}
	return fmt.Sprintf("0x%x%016x", u.Hi, u.Lo)
}

// Signed is a sign-and-magnitude fixed-point value covering
// [-(2^128-1), 2^128-1]. Zero is always represented as (0, false).
type Signed struct {
	Magnitude Uint128
	Negative  bool
}

// Ordering is the result of comparing two Signed values.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// FromUint64 returns a non-negative Signed holding v.
func FromUint64(v uint64) Signed {
	return Signed{Magnitude: Uint128From64(v)}
}

// NegFromUint64 returns a Signed holding -v.
func NegFromUint64(v uint64) Signed {
	s := Signed{Magnitude: Uint128From64(v), Negative: v != 0}
	return s
}

// Zero returns the canonical zero value.
func Zero() Signed {
	return Signed{}
}

// IsZero returns true when the value is zero.
func (s Signed) IsZero() bool {
	return s.Magnitude.IsZero()
}

// normalize collapses negative zero to the canonical (0, false) form.
func (s Signed) normalize() Signed {
	if s.Magnitude.IsZero() {
		s.Negative = false
	}
	return s
}

// Compare compares the true signed values of a and b, not their magnitudes.
func Compare(a, b Signed) Ordering {
	a = a.normalize()
	b = b.normalize()
	switch {
	case !a.Negative && b.Negative:
		return Greater
	case a.Negative && !b.Negative:
		return Less
	case a.Negative:
		// Both negative: larger magnitude is the smaller value
		switch a.Magnitude.Cmp(b.Magnitude) {
		case 1:
			return Less
		case -1:
			return Greater
		default:
			return Equal
		}
	default:
		return Ordering(a.Magnitude.Cmp(b.Magnitude))
	}
}

// Sub computes base - delta without wraparound, handling the four sign
// combinations explicitly:
//
//	(+base) - (+delta): subtract magnitudes, sign flips if delta is larger
//	(-base) - (-delta): equivalent to delta - base on magnitudes
//	(+base) - (-delta): magnitudes add, stays positive
//	(-base) - (+delta): magnitudes add, stays negative
//
// The additive cases return ErrMagnitudeOverflow if the combined magnitude
// exceeds 128 bits.
func Sub(base, delta Signed) (Signed, error) {
	base = base.normalize()
	delta = delta.normalize()
	switch {
	case !base.Negative && !delta.Negative:
		if base.Magnitude.Cmp(delta.Magnitude) >= 0 {
			return Signed{Magnitude: base.Magnitude.Sub(delta.Magnitude)}.normalize(), nil
		}
		return Signed{
			Magnitude: delta.Magnitude.Sub(base.Magnitude),
			Negative:  true,
		}, nil
	case base.Negative && delta.Negative:
		if delta.Magnitude.Cmp(base.Magnitude) >= 0 {
			return Signed{Magnitude: delta.Magnitude.Sub(base.Magnitude)}.normalize(), nil
		}
		return Signed{
			Magnitude: base.Magnitude.Sub(delta.Magnitude),
			Negative:  true,
		}, nil
	case !base.Negative && delta.Negative:
		mag, err := base.Magnitude.Add(delta.Magnitude)
		if err != nil {
			return Signed{}, err
		}
		return Signed{Magnitude: mag}, nil
	default:
		mag, err := base.Magnitude.Add(delta.Magnitude)
		if err != nil {
			return Signed{}, err
		}
		return Signed{Magnitude: mag, Negative: true}.normalize(), nil
	}
}

func (s Signed) String() string {
	s = s.normalize()
	if s.Negative {
		return "-" + s.Magnitude.String()
	}
	return s.Magnitude.String()
}
