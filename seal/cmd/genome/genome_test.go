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

package genome

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"
)

func buildTestGenome() *Genome {
	g := New(1 << 10)
	g.AddPiece("chr1")
	g.AddBases([]byte("ACGTACGTACGT"))
	g.AddPiece("chr2")
	g.AddBases([]byte("ggggnnggGG"))
	g.AddPiece("chr3")
	g.AddBases([]byte("TTTTTTTT"))
	g.Finish()
	return g
}

func TestGenomeBasics(t *testing.T) {
	g := buildTestGenome()

	if g.NumPieces() != 3 {
		t.Errorf("expected 3 pieces, got %d", g.NumPieces())
	}
	if g.GetCountOfBases() != 30 {
		t.Errorf("expected 30 bases, got %d", g.GetCountOfBases())
	}

	s := g.GetSubstring(0, 4)
	if !bytes.Equal(s, []byte("ACGT")) {
		t.Errorf("substring: expected ACGT, got %s", s)
	}

	// lower case and non-ACGT bases are normalized
	s = g.GetSubstring(12, 10)
	if !bytes.Equal(s, []byte("GGGGNNGGGG")) {
		t.Errorf("substring: expected GGGGNNGGGG, got %s", s)
	}

	// window crossing the end of the base array
	if s = g.GetSubstring(28, 4); s != nil {
		t.Errorf("expected nil substring, got %s", s)
	}
}

func TestGenomePieceLookup(t *testing.T) {
	g := buildTestGenome()

	tests := []struct {
		location uint32
		name     string
		end      uint32
	}{
		{0, "chr1", 12},
		{11, "chr1", 12},
		{12, "chr2", 22},
		{21, "chr2", 22},
		{22, "chr3", 30},
		{29, "chr3", 30},
	}
	for _, test := range tests {
		p, _, ok := g.GetPieceAtLocation(test.location)
		if !ok {
			t.Errorf("location %d: no piece found", test.location)
			continue
		}
		if p.Name != test.name {
			t.Errorf("location %d: expected %s, got %s", test.location, test.name, p.Name)
		}
		if end := g.PieceEnd(test.location); end != test.end {
			t.Errorf("location %d: expected piece end %d, got %d", test.location, test.end, end)
		}
	}

	if _, _, ok := g.GetPieceAtLocation(30); ok {
		t.Errorf("expected no piece past the end")
	}
	if _, _, ok := g.GetPieceAtLocation(InvalidLocation); ok {
		t.Errorf("expected no piece at InvalidLocation")
	}
}

func TestTwoBitRoundTrip(t *testing.T) {
	alphabet := []byte("ACGT")
	for _, n := range []int{1, 2, 3, 4, 5, 63, 64, 65, 1000} {
		s := make([]byte, n)
		for i := range s {
			s[i] = alphabet[rand.Intn(4)]
		}
		back := TwoBit2Seq(Seq2TwoBit(s), n)
		if !bytes.Equal(s, back) {
			t.Errorf("round trip failed for length %d", n)
		}
	}
}

func TestGenomeSaveLoad(t *testing.T) {
	g := buildTestGenome()

	file := filepath.Join(t.TempDir(), "genome.sgnm")
	if err := g.Save(file); err != nil {
		t.Fatalf("save: %s", err)
	}

	g2, err := Load(file)
	if err != nil {
		t.Fatalf("load: %s", err)
	}

	if g2.NumPieces() != g.NumPieces() {
		t.Errorf("expected %d pieces, got %d", g.NumPieces(), g2.NumPieces())
	}
	if g2.GetCountOfBases() != g.GetCountOfBases() {
		t.Errorf("expected %d bases, got %d", g.GetCountOfBases(), g2.GetCountOfBases())
	}
	for i, p := range g.Pieces() {
		p2 := g2.Pieces()[i]
		if p.Name != p2.Name || p.Beginning != p2.Beginning {
			t.Errorf("piece %d: expected %v, got %v", i, p, p2)
		}
	}

	// N positions must survive the 2-bit packing
	s := g2.GetSubstring(0, int(g.GetCountOfBases()))
	s0 := g.GetSubstring(0, int(g.GetCountOfBases()))
	if !bytes.Equal(s, s0) {
		t.Errorf("bases differ after round trip:\n%s\n%s", s0, s)
	}

	// the piece lookup must work after Load
	p, _, ok := g2.GetPieceAtLocation(15)
	if !ok || p.Name != "chr2" {
		t.Errorf("piece lookup after load failed")
	}
}
