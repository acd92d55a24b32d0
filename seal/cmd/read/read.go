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

import "sync"

// MaxReadSize is the upper bound on read length.
const MaxReadSize = 400

// MaxQual is the upper bound on a Phred quality value.
const MaxQual = 63

// ClippingPolicy tells which low-quality ends of a read to trim
// logically before alignment. The unclipped data is kept for output.
type ClippingPolicy int

const (
	NoClipping ClippingPolicy = iota
	ClipFront
	ClipBack
	ClipFrontAndBack
)

// clipQualThreshold: bases with Phred quality at or below this value
// are trimmed from the clipped ends.
const clipQualThreshold = 2

// Read is a single sequenced fragment. Seq and Qual are the clipped
// window into UnclippedSeq/UnclippedQual; FrontClipped is the number
// of bases trimmed from the front. Qualities are Phred values in
// [0, MaxQual], not ASCII.
type Read struct {
	ID []byte

	Seq  []byte
	Qual []byte

	UnclippedSeq  []byte
	UnclippedQual []byte
	FrontClipped  int
}

// PoolRead is the object pool for Read.
var PoolRead = &sync.Pool{New: func() interface{} {
	return &Read{
		ID:            make([]byte, 0, 128),
		UnclippedSeq:  make([]byte, 0, MaxReadSize),
		UnclippedQual: make([]byte, 0, MaxReadSize),
	}
}}

// Reset resets the Read for reuse.
func (r *Read) Reset() {
	r.ID = r.ID[:0]
	r.Seq = nil
	r.Qual = nil
	r.UnclippedSeq = r.UnclippedSeq[:0]
	r.UnclippedQual = r.UnclippedQual[:0]
	r.FrontClipped = 0
}

// RecycleRead recycles a Read.
func RecycleRead(r *Read) {
	if r == nil {
		return
	}
	PoolRead.Put(r)
}

// Set fills the read from raw record data. seq bytes are kept as
// given; qual is ASCII Phred+33 and is converted to plain values.
// An empty qual (FASTA input) yields a constant high quality.
func (r *Read) Set(id, seq, qual []byte, policy ClippingPolicy) {
	r.Reset()
	r.ID = append(r.ID, id...)
	r.UnclippedSeq = append(r.UnclippedSeq, seq...)
	if len(qual) == 0 {
		for range seq {
			r.UnclippedQual = append(r.UnclippedQual, 30)
		}
	} else {
		var q byte
		for _, c := range qual {
			if c < 33 {
				q = 0
			} else {
				q = c - 33
			}
			if q > MaxQual {
				q = MaxQual
			}
			r.UnclippedQual = append(r.UnclippedQual, q)
		}
	}
	r.Clip(policy)
}

// Clip computes the clipped window according to the policy.
func (r *Read) Clip(policy ClippingPolicy) {
	front, back := 0, len(r.UnclippedSeq)
	if policy == ClipFront || policy == ClipFrontAndBack {
		for front < back && r.UnclippedQual[front] <= clipQualThreshold {
			front++
		}
	}
	if policy == ClipBack || policy == ClipFrontAndBack {
		for back > front && r.UnclippedQual[back-1] <= clipQualThreshold {
			back--
		}
	}
	r.FrontClipped = front
	r.Seq = r.UnclippedSeq[front:back]
	r.Qual = r.UnclippedQual[front:back]
}

// Len returns the clipped length.
func (r *Read) Len() int {
	return len(r.Seq)
}

// CountOfNs counts N bases in the clipped window.
func (r *Read) CountOfNs() int {
	var n int
	for _, b := range r.Seq {
		if b == 'N' || b == 'n' {
			n++
		}
	}
	return n
}

// ReverseComplementInto writes the reverse complement of the clipped
// sequence into dst, which must have the same length.
func (r *Read) ReverseComplementInto(dst []byte) {
	n := len(r.Seq)
	for i := 0; i < n; i++ {
		dst[n-1-i] = rcTable[r.Seq[i]]
	}
}

// ReverseQualInto writes the reversed quality values into dst,
// which must have the same length.
func (r *Read) ReverseQualInto(dst []byte) {
	n := len(r.Qual)
	for i := 0; i < n; i++ {
		dst[n-1-i] = r.Qual[i]
	}
}

// RC computes the reverse complement sequence in place.
func RC(s []byte) []byte {
	n := len(s)
	for i := 0; i < n; i++ {
		s[i] = rcTable[s[i]]
	}
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

var rcTable = [256]byte{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31,
	32, 33, 34, 35, 36, 37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 47,
	48, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63,
	64, 84, 86, 71, 72, 69, 70, 67, 68, 73, 74, 77, 76, 75, 78, 79,
	80, 81, 89, 83, 65, 85, 66, 87, 88, 82, 90, 91, 92, 93, 94, 95,
	96, 116, 118, 103, 104, 101, 102, 99, 100, 105, 106, 109, 108, 107, 110, 111,
	112, 113, 121, 115, 97, 117, 98, 119, 120, 114, 122, 123, 124, 125, 126, 127,
	128, 129, 130, 131, 132, 133, 134, 135, 136, 137, 138, 139, 140, 141, 142, 143,
	144, 145, 146, 147, 148, 149, 150, 151, 152, 153, 154, 155, 156, 157, 158, 159,
	160, 161, 162, 163, 164, 165, 166, 167, 168, 169, 170, 171, 172, 173, 174, 175,
	176, 177, 178, 179, 180, 181, 182, 183, 184, 185, 186, 187, 188, 189, 190, 191,
	192, 193, 194, 195, 196, 197, 198, 199, 200, 201, 202, 203, 204, 205, 206, 207,
	208, 209, 210, 211, 212, 213, 214, 215, 216, 217, 218, 219, 220, 221, 222, 223,
	224, 225, 226, 227, 228, 229, 230, 231, 232, 233, 234, 235, 236, 237, 238, 239,
	240, 241, 242, 243, 244, 245, 246, 247, 248, 249, 250, 251, 252, 253, 254, 255,
}
