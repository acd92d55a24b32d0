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

import (
	"testing"

	"github.com/seal-bio/seal/seal/cmd/read"
)

func TestAlignPairProper(t *testing.T) {
	bases := randomRefBases(3000, 7)
	g, idx := buildReference(t, bases)
	pa := NewPairedAligner(g, idx, testAlignerOptions())

	r0 := makeRead("p/1", bases[1000:1100])
	r1 := makeRead("p/2", read.RC(append([]byte(nil), bases[1250:1350]...)))

	res := pa.AlignPair(r0, r1)
	if res.FellBack {
		t.Fatalf("expected the intersection walk, not the fallback")
	}
	if res.Results[0].Location != 1000 || res.Results[0].Direction != Forward {
		t.Errorf("first mate: expected 1000/FORWARD, got %d/%s",
			res.Results[0].Location, res.Results[0].Direction)
	}
	if res.Results[1].Location != 1250 || res.Results[1].Direction != RC {
		t.Errorf("second mate: expected 1250/RC, got %d/%s",
			res.Results[1].Location, res.Results[1].Direction)
	}
	for end := 0; end < 2; end++ {
		r := &res.Results[end]
		if r.Score != 0 {
			t.Errorf("mate %d: expected score 0, got %d", end, r.Score)
		}
		if r.Status != SingleHit {
			t.Errorf("mate %d: expected SingleHit, got %s", end, r.Status)
		}
		if r.MAPQ != MaxMAPQ {
			t.Errorf("mate %d: expected MAPQ %d, got %d", end, MaxMAPQ, r.MAPQ)
		}
	}
}

func TestAlignPairWithMismatch(t *testing.T) {
	bases := randomRefBases(3000, 7)
	g, idx := buildReference(t, bases)
	pa := NewPairedAligner(g, idx, testAlignerOptions())

	seq1 := append([]byte(nil), bases[1250:1350]...)
	seq1[50] = substitute(seq1[50])

	res := pa.AlignPair(
		makeRead("q/1", bases[1000:1100]),
		makeRead("q/2", read.RC(seq1)))
	if res.FellBack {
		t.Fatalf("expected the intersection walk, not the fallback")
	}
	if res.Results[0].Location != 1000 || res.Results[0].Score != 0 {
		t.Errorf("first mate: expected 1000/score 0, got %d/%d",
			res.Results[0].Location, res.Results[0].Score)
	}
	if res.Results[1].Location != 1250 || res.Results[1].Score != 1 {
		t.Errorf("second mate: expected 1250/score 1, got %d/%d",
			res.Results[1].Location, res.Results[1].Score)
	}
	if res.Results[1].Status != SingleHit {
		t.Errorf("expected SingleHit, got %s", res.Results[1].Status)
	}
}

func TestAlignPairSpacingBounds(t *testing.T) {
	bases := randomRefBases(3000, 8)
	g, idx := buildReference(t, bases)
	pa := NewPairedAligner(g, idx, testAlignerOptions())

	// mates further apart than the spacing ceiling never pair
	res := pa.AlignPair(
		makeRead("far/1", bases[200:300]),
		makeRead("far/2", read.RC(append([]byte(nil), bases[1900:2000]...))))
	if res.FellBack {
		t.Fatalf("expected the intersection walk, not the fallback")
	}
	for end := 0; end < 2; end++ {
		if res.Results[end].Aligned() {
			t.Errorf("mate %d: expected NotFound for a too-distant pair, got %s",
				end, res.Results[end].Status)
		}
	}

	// mates closer than the spacing floor never pair either
	res = pa.AlignPair(
		makeRead("near/1", bases[200:300]),
		makeRead("near/2", read.RC(append([]byte(nil), bases[220:320]...))))
	for end := 0; end < 2; end++ {
		if res.Results[end].Aligned() {
			t.Errorf("mate %d: expected NotFound for a too-close pair, got %s",
				end, res.Results[end].Status)
		}
	}
}

func TestAlignPairFallbackForShortReads(t *testing.T) {
	bases := randomRefBases(3000, 9)
	g, idx := buildReference(t, bases)
	pa := NewPairedAligner(g, idx, testAlignerOptions())

	res := pa.AlignPair(
		makeRead("s/1", bases[600:640]),
		makeRead("s/2", read.RC(append([]byte(nil), bases[700:740]...))))
	if !res.FellBack {
		t.Fatalf("expected the fallback for reads below the pairing length")
	}
	if res.Results[0].Location != 600 || res.Results[0].Direction != Forward {
		t.Errorf("first mate: expected 600/FORWARD, got %d/%s",
			res.Results[0].Location, res.Results[0].Direction)
	}
	if res.Results[1].Location != 700 || res.Results[1].Direction != RC {
		t.Errorf("second mate: expected 700/RC, got %d/%s",
			res.Results[1].Location, res.Results[1].Direction)
	}
	for end := 0; end < 2; end++ {
		if res.Results[end].Score != 0 {
			t.Errorf("mate %d: expected score 0, got %d", end, res.Results[end].Score)
		}
	}
}
