// Copyright © 2024-2025 the SEAL authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import "testing"

func TestMAPQCertain(t *testing.T) {
	// only candidate, low score, no skipped seeds: full confidence
	if q := computeMAPQ(0.9, 0.9, 0, 10, 1, 0, false); q != MaxMAPQ {
		t.Errorf("expected %d, got %d", MaxMAPQ, q)
	}

	// the special case needs all of its conditions
	if q := computeMAPQ(0.9, 0.9, 5, 10, 1, 0, false); q != MaxMAPQ-1 {
		t.Errorf("high score: expected %d, got %d", MaxMAPQ-1, q)
	}
	if q := computeMAPQ(0.9, 0.9, 0, 10, 1, 1, false); q != MaxMAPQ-1 {
		t.Errorf("skipped seed: expected %d, got %d", MaxMAPQ-1, q)
	}
}

func TestMAPQAmbiguous(t *testing.T) {
	// two equally likely candidates: p = 0.5, mapq = -10*log10(0.5) = 3
	if q := computeMAPQ(1.0, 0.5, 1, 10, 1, 0, false); q != 3 {
		t.Errorf("expected 3, got %d", q)
	}

	// a dominant candidate scores high but below the ceiling
	q := computeMAPQ(1.0001, 1.0, 1, 10, 1, 0, false)
	if q < 30 || q > MaxMAPQ-1 {
		t.Errorf("expected a high quality, got %d", q)
	}

	// quality decreases as the alternatives gain mass
	q1 := computeMAPQ(1.01, 1.0, 1, 10, 1, 0, false)
	q2 := computeMAPQ(1.5, 1.0, 1, 10, 1, 0, false)
	if q2 >= q1 {
		t.Errorf("expected quality to fall with ambiguity: %d >= %d", q2, q1)
	}
}

func TestMAPQHammingCap(t *testing.T) {
	if q := computeMAPQ(0.9, 0.9, 0, 10, 1, 0, true); q != 25 {
		t.Errorf("expected 25, got %d", q)
	}

	// below the decrement threshold the value passes through
	q := computeMAPQ(1.0, 0.5, 1, 10, 1, 0, true)
	if q != 3 {
		t.Errorf("expected 3, got %d", q)
	}
}

func TestMAPQClusterPenalty(t *testing.T) {
	base := computeMAPQ(0.9, 0.9, 0, 10, 1, 0, false)
	clustered := computeMAPQ(0.9, 0.9, 5, 10, 100, 0, false)
	if clustered != MaxMAPQ-1-6 {
		t.Errorf("expected %d, got %d", MaxMAPQ-1-6, clustered)
	}
	if clustered >= base {
		t.Errorf("expected the cluster penalty to lower the quality")
	}
}

func TestMAPQPopularSeedPenalty(t *testing.T) {
	few := computeMAPQ(0.9, 0.9, 5, 10, 1, 10, false)
	many := computeMAPQ(0.9, 0.9, 5, 10, 1, 30, false)
	if few != MaxMAPQ-1 {
		t.Errorf("expected %d with 10 skipped, got %d", MaxMAPQ-1, few)
	}
	if many != MaxMAPQ-1-10 {
		t.Errorf("expected %d with 30 skipped, got %d", MaxMAPQ-1-10, many)
	}
}

func TestMAPQNeverNegative(t *testing.T) {
	if q := computeMAPQ(100, 0.0001, 8, 10, 1000, 200, true); q != 0 {
		t.Errorf("expected 0, got %d", q)
	}
}

func TestMAPQRoundingGuard(t *testing.T) {
	// the sum may be a hair under the best due to rounding
	if q := computeMAPQ(0.899999999, 0.9, 0, 10, 1, 0, false); q != MaxMAPQ {
		t.Errorf("expected %d, got %d", MaxMAPQ, q)
	}
}
