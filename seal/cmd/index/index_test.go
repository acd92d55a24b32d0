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

package index

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/seal-bio/seal/seal/cmd/read"
)

func randomBases(rng *rand.Rand, n int) []byte {
	alphabet := []byte("ACGT")
	s := make([]byte, n)
	for i := range s {
		s[i] = alphabet[rng.Intn(4)]
	}
	return s
}

func buildTestGenome(t *testing.T, seqs ...[]byte) *genome.Genome {
	g := genome.New(1 << 10)
	for i, s := range seqs {
		g.AddPiece(string(rune('a' + i)))
		g.AddBases(s)
	}
	g.Finish()
	return g
}

func TestBuildAndLookup(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := randomBases(rng, 500)
	g := buildTestGenome(t, s)

	l := MinSeedLen
	idx, err := Build(g, &BuildOptions{SeedLen: l, NumCPUs: 4})
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if idx.SeedLen() != l {
		t.Errorf("expected seed length %d, got %d", l, idx.SeedLen())
	}

	// every L-mer of the sequence must be found at its own location
	for i := 0; i+l <= len(s); i++ {
		fwd, _, ok := idx.Lookup(s[i : i+l])
		if !ok {
			t.Fatalf("lookup failed at %d", i)
		}
		var found bool
		for _, loc := range fwd {
			if loc == uint32(i) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("location %d missing from hits of its own seed", i)
		}
	}

	// hit lists must be sorted descending
	for i := 0; i+l <= len(s); i += 13 {
		fwd, rc, _ := idx.Lookup(s[i : i+l])
		for _, hits := range [][]uint32{fwd, rc} {
			for j := 1; j < len(hits); j++ {
				if hits[j] >= hits[j-1] {
					t.Fatalf("hit list not descending at seed %d", i)
				}
			}
		}
	}
}

func TestLookupRC(t *testing.T) {
	s := []byte("ACGTACGGTACGTTACGGACGTAACCGGTTAACCGGTTAA")
	g := buildTestGenome(t, s)

	l := MinSeedLen
	idx, err := Build(g, &BuildOptions{SeedLen: l, NumCPUs: 1})
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	// looking up the reverse complement of a genome seed must return
	// the seed's location in the RC list
	seed := make([]byte, l)
	copy(seed, s[4:4+l])
	read.RC(seed)
	_, rc, ok := idx.Lookup(seed)
	if !ok {
		t.Fatalf("lookup failed")
	}
	var found bool
	for _, loc := range rc {
		if loc == 4 {
			found = true
		}
	}
	if !found {
		t.Errorf("RC lookup missed location 4: %v", rc)
	}
}

func TestBuildSkipsNs(t *testing.T) {
	s := []byte("ACGTACGTACGTACGTNCGTACGTACGTACGTACGT")
	g := buildTestGenome(t, s)

	l := MinSeedLen
	idx, err := Build(g, &BuildOptions{SeedLen: l, NumCPUs: 1})
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	// a seed containing the N cannot be looked up
	if _, _, ok := idx.Lookup(s[10 : 10+l]); ok {
		t.Errorf("expected lookup of a seed with N to fail")
	}

	// the N at offset 16 leaves exactly the windows starting at 0 and
	// at 17..20 free of N, 5 valid seed positions in total
	var total int
	for i := 0; i+l <= len(s); i++ {
		fwd, _, ok := idx.Lookup(s[i : i+l])
		if !ok {
			continue
		}
		for _, loc := range fwd {
			if loc == uint32(i) {
				total++
				break
			}
		}
	}
	if total != 5 {
		t.Errorf("expected 5 indexed seed positions, got %d", total)
	}
}

func TestBuildSeedsDoNotSpanPieces(t *testing.T) {
	s1 := []byte("ACGTACGTACGTACGTACGT")
	s2 := []byte("TGCATGCATGCATGCATGCA")
	g := buildTestGenome(t, s1, s2)

	idx, err := Build(g, &BuildOptions{SeedLen: MinSeedLen, NumCPUs: 1})
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	// a window straddling the piece boundary must not be indexed
	straddle := append(append([]byte{}, s1[10:]...), s2[:6]...)
	fwd, rc, ok := idx.Lookup(straddle)
	if !ok {
		t.Fatalf("lookup failed")
	}
	for _, loc := range append(append([]uint32{}, fwd...), rc...) {
		if loc == 10 {
			t.Errorf("seed spanning two pieces was indexed")
		}
	}
}

func TestIndexSaveLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	s := randomBases(rng, 300)
	g := buildTestGenome(t, s)

	idx, err := Build(g, &BuildOptions{SeedLen: 18, NumCPUs: 2})
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	file := filepath.Join(t.TempDir(), "seeds.sidx")
	if err = idx.Save(file); err != nil {
		t.Fatalf("save: %s", err)
	}
	idx2, err := Load(file)
	if err != nil {
		t.Fatalf("load: %s", err)
	}

	if idx2.SeedLen() != idx.SeedLen() {
		t.Errorf("expected seed length %d, got %d", idx.SeedLen(), idx2.SeedLen())
	}
	if idx2.NumSeeds() != idx.NumSeeds() {
		t.Errorf("expected %d seeds, got %d", idx.NumSeeds(), idx2.NumSeeds())
	}
	for i := 0; i+18 <= len(s); i += 7 {
		f1, r1, _ := idx.Lookup(s[i : i+18])
		f2, r2, _ := idx2.Lookup(s[i : i+18])
		if len(f1) != len(f2) || len(r1) != len(r2) {
			t.Fatalf("hit lists differ after round trip at %d", i)
		}
		for j := range f1 {
			if f1[j] != f2[j] {
				t.Fatalf("forward hits differ after round trip at %d", i)
			}
		}
	}
}

func TestBuildProgress(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := randomBases(rng, 200)
	g := buildTestGenome(t, s)

	var total int
	_, err := Build(g, &BuildOptions{
		SeedLen: 20,
		NumCPUs: 1,
		OnProgress: func(bases int) {
			total += bases
		},
	})
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if want := len(s) - 20 + 1; total != want {
		t.Errorf("expected %d scanned seeds reported, got %d", want, total)
	}
}
