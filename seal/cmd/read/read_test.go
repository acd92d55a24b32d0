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

package read

import (
	"bytes"
	"testing"
)

func TestSetAndQualConversion(t *testing.T) {
	r := &Read{}
	r.Set([]byte("r1"), []byte("ACGT"), []byte("!I5#"), NoClipping)

	if !bytes.Equal(r.Seq, []byte("ACGT")) {
		t.Errorf("seq: got %s", r.Seq)
	}
	want := []byte{0, 40, 20, 2}
	if !bytes.Equal(r.Qual, want) {
		t.Errorf("qual: expected %v, got %v", want, r.Qual)
	}

	// FASTA input gets a constant quality
	r.Set([]byte("r2"), []byte("ACG"), nil, NoClipping)
	if r.Qual[0] != 30 || r.Qual[2] != 30 {
		t.Errorf("expected constant quality 30, got %v", r.Qual)
	}
}

func TestClipping(t *testing.T) {
	seq := []byte("AACGTACGTT")
	// qualities 2 at both ends, high in the middle
	qual := []byte{'#', '#', 'I', 'I', 'I', 'I', 'I', 'I', '#', '#'}

	tests := []struct {
		policy ClippingPolicy
		front  int
		length int
	}{
		{NoClipping, 0, 10},
		{ClipFront, 2, 8},
		{ClipBack, 0, 8},
		{ClipFrontAndBack, 2, 6},
	}
	for _, test := range tests {
		r := &Read{}
		r.Set([]byte("r"), seq, qual, test.policy)
		if r.FrontClipped != test.front {
			t.Errorf("policy %d: expected front %d, got %d", test.policy, test.front, r.FrontClipped)
		}
		if r.Len() != test.length {
			t.Errorf("policy %d: expected length %d, got %d", test.policy, test.length, r.Len())
		}
		if len(r.UnclippedSeq) != 10 {
			t.Errorf("policy %d: unclipped data lost", test.policy)
		}
	}

	// an all-low-quality read clips to nothing
	r := &Read{}
	r.Set([]byte("r"), []byte("ACGT"), []byte("####"), ClipFrontAndBack)
	if r.Len() != 0 {
		t.Errorf("expected empty clipped window, got %d", r.Len())
	}
}

func TestCountOfNs(t *testing.T) {
	r := &Read{}
	r.Set([]byte("r"), []byte("ANCGnTNA"), nil, NoClipping)
	if n := r.CountOfNs(); n != 3 {
		t.Errorf("expected 3 Ns, got %d", n)
	}
}

func TestReverseComplement(t *testing.T) {
	r := &Read{}
	r.Set([]byte("r"), []byte("AACGT"), []byte("IIII#"), NoClipping)

	dst := make([]byte, 5)
	r.ReverseComplementInto(dst)
	if !bytes.Equal(dst, []byte("ACGTT")) {
		t.Errorf("expected ACGTT, got %s", dst)
	}

	q := make([]byte, 5)
	r.ReverseQualInto(q)
	if q[0] != 2 || q[4] != 40 {
		t.Errorf("expected reversed qualities, got %v", q)
	}

	s := []byte("ACGTN")
	RC(s)
	if !bytes.Equal(s, []byte("NACGT")) {
		t.Errorf("expected NACGT, got %s", s)
	}
}
