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
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/seal-bio/seal/seal/cmd/read"
)

// ScoreExceeded is the sentinel for "edit distance exceeds the limit".
// It is a normal outcome, not an error.
const ScoreExceeded = -1

// Error model constants for match probabilities.
const (
	snpProb       = 1e-3
	gapOpenProb   = 1e-3
	gapExtendProb = 0.5
)

// ErrCigarBufTooSmall is returned when the emitted edit script would
// overflow the caller's buffer. Callers size buffers at twice the
// read length.
var ErrCigarBufTooSmall = errors.New("scorer: cigar buffer too small")

// CigarFormat selects the representation of the emitted edit script.
type CigarFormat int

const (
	// CigarText is the SAM text form.
	CigarText CigarFormat = iota
	// CigarPacked is the BAM binary form, one uint32 per op
	// encoding length<<4 | opcode.
	CigarPacked
)

// CigarOp is one run of the edit script.
// Op is one of '=', 'X', 'M', 'I', 'D', 'S'.
type CigarOp struct {
	Op  byte
	Len int
}

// BAM opcodes, in SAM spec order: MIDNSHP=X
var bamOpCode = map[byte]uint32{
	'M': 0, 'I': 1, 'D': 2, 'N': 3, 'S': 4, 'H': 5, 'P': 6, '=': 7, 'X': 8,
}

var phredToProb [read.MaxQual + 1]float64
var indelProb [read.MaxReadSize + 1]float64
var perfectMatchProb [read.MaxReadSize + 1]float64

func init() {
	for q := 0; q <= read.MaxQual; q++ {
		phredToProb[q] = math.Pow(10, -float64(q)/10)
	}
	indelProb[1] = gapOpenProb
	for i := 2; i <= read.MaxReadSize; i++ {
		indelProb[i] = indelProb[i-1] * gapExtendProb
	}
	perfectMatchProb[0] = 1
	for i := 1; i <= read.MaxReadSize; i++ {
		perfectMatchProb[i] = perfectMatchProb[i-1] * (1 - snpProb)
	}
}

const (
	actNone int8 = iota
	actSub
	actDel // reference base with no read base
	actIns // read base with no reference base
)

// LandauVishkin computes bounded edit distance between a reference
// window and a read in O(K * readLen) time with a K-banded furthest-
// reaching DP. One instance per goroutine; all scratch is owned by
// the instance and reused across calls.
type LandauVishkin struct {
	maxK int

	// per (e, center+d): furthest read index reached,
	// the predecessor action, and the match run length after the edit
	l       [][]int32
	action  [][]int8
	matched [][]int32

	ops   []CigarOp
	rtext []byte
}

// NewLandauVishkin creates a scorer supporting limits up to maxK.
// Larger limits grow the scratch on demand.
func NewLandauVishkin(maxK int) *LandauVishkin {
	lv := &LandauVishkin{
		ops:   make([]CigarOp, 0, 64),
		rtext: make([]byte, 0, read.MaxReadSize+64),
	}
	lv.grow(maxK)
	return lv
}

func (lv *LandauVishkin) grow(k int) {
	if k < 1 {
		k = 1
	}
	lv.maxK = k
	lv.l = make([][]int32, k+1)
	lv.action = make([][]int8, k+1)
	lv.matched = make([][]int32, k+1)
	for e := 0; e <= k; e++ {
		lv.l[e] = make([]int32, 2*k+1)
		lv.action[e] = make([]int8, 2*k+1)
		lv.matched[e] = make([]int32, 2*k+1)
	}
}

// ComputeEditDistance scores the read against the reference window
// under the limit k. It returns ScoreExceeded when the distance is
// greater than k; otherwise the distance and the match probability
// derived from the read's Phred qualities.
func (lv *LandauVishkin) ComputeEditDistance(ref, readSeq, qual []byte, k int) (int, float64) {
	score, d, ok := lv.compute(ref, readSeq, k)
	if !ok {
		return ScoreExceeded, 0
	}
	lv.backtrace(score, d)
	return score, lv.matchProbability(readSeq, qual)
}

// ComputeEditDistanceWithCigar is ComputeEditDistance plus the edit
// script. The returned ops borrow the scorer's scratch and are valid
// until the next call.
func (lv *LandauVishkin) ComputeEditDistanceWithCigar(ref, readSeq, qual []byte, k int) (int, float64, []CigarOp) {
	score, d, ok := lv.compute(ref, readSeq, k)
	if !ok {
		return ScoreExceeded, 0, nil
	}
	lv.backtrace(score, d)
	return score, lv.matchProbability(readSeq, qual), lv.ops
}

// ComputeEditDistanceReverse extends leftward from a seed anchor.
// ref holds the bases immediately left of the anchor (the last byte
// of ref abuts the anchor); readSeq and qual are the read head
// already reversed. It returns the number of reference bases
// consumed, so the caller can derive the signed starting-location
// offset relative to the anchor.
func (lv *LandauVishkin) ComputeEditDistanceReverse(ref, readSeq, qual []byte, k int) (score int, matchProbability float64, usedRefLen int) {
	rt := lv.rtext[:0]
	for i := len(ref) - 1; i >= 0; i-- {
		rt = append(rt, ref[i])
	}
	lv.rtext = rt

	score, d, ok := lv.compute(rt, readSeq, k)
	if !ok {
		return ScoreExceeded, 0, 0
	}
	lv.backtrace(score, d)
	return score, lv.matchProbability(readSeq, qual), len(readSeq) + d
}

// compute runs the banded DP. On success it returns the distance and
// the final diagonal d = refConsumed - readConsumed.
func (lv *LandauVishkin) compute(ref, pattern []byte, k int) (int, int, bool) {
	if k < 0 {
		return 0, 0, false
	}
	if k > lv.maxK {
		lv.grow(k)
	}
	n := len(ref)
	m := len(pattern)
	if m == 0 {
		return 0, 0, true
	}
	if m-n > k { // reference too short even with k deletions
		return 0, 0, false
	}

	c := lv.maxK // diagonal center

	var i int
	for i < m && i < n && pattern[i] == ref[i] {
		i++
	}
	lv.l[0][c] = int32(i)
	lv.action[0][c] = actNone
	lv.matched[0][c] = int32(i)
	if i == m {
		return 0, 0, true
	}

	var d, e int
	var best, cand, prev int32
	var act int8
	for e = 1; e <= k; e++ {
		// diagonals nearest the main one first, so that when a
		// substitution and an indel reach the read's end with the same
		// edit count, the substitution is reported
		for j := 0; j <= 2*e; j++ {
			d = (j + 1) / 2
			if j%2 == 1 {
				d = -d
			}
			best, act = -1, actNone

			// substitution
			if d >= -(e-1) && d <= e-1 {
				prev = lv.l[e-1][c+d]
				if prev >= 0 {
					cand = prev + 1
					if cand > best {
						best, act = cand, actSub
					}
				}
			}
			// reference base skipped by the read
			if d-1 >= -(e-1) {
				prev = lv.l[e-1][c+d-1]
				if prev >= 0 && prev > best {
					best, act = prev, actDel
				}
			}
			// read base inserted relative to the reference
			if d+1 <= e-1 {
				prev = lv.l[e-1][c+d+1]
				if prev >= 0 {
					cand = prev + 1
					if cand > best {
						best, act = cand, actIns
					}
				}
			}

			if best < 0 || int(best)+d > n || int(best) > m {
				lv.l[e][c+d] = -1
				continue
			}

			i = int(best)
			for i < m && i+d < n && pattern[i] == ref[i+d] {
				i++
			}
			lv.l[e][c+d] = int32(i)
			lv.action[e][c+d] = act
			lv.matched[e][c+d] = int32(i) - best
			if i == m {
				return e, d, true
			}
		}
	}
	return 0, 0, false
}

// backtrace reconstructs the edit script into lv.ops, front to back,
// with adjacent runs of the same kind merged.
func (lv *LandauVishkin) backtrace(eFinal, dFinal int) {
	c := lv.maxK
	ops := lv.ops[:0]

	// walk back, collecting ops end-to-front
	e, d := eFinal, dFinal
	for e > 0 {
		if mlen := lv.matched[e][c+d]; mlen > 0 {
			ops = append(ops, CigarOp{'=', int(mlen)})
		}
		switch lv.action[e][c+d] {
		case actSub:
			ops = append(ops, CigarOp{'X', 1})
		case actDel:
			ops = append(ops, CigarOp{'D', 1})
			d--
		case actIns:
			ops = append(ops, CigarOp{'I', 1})
			d++
		}
		e--
	}
	if mlen := lv.l[0][c]; mlen > 0 {
		ops = append(ops, CigarOp{'=', int(mlen)})
	}

	// reverse and merge adjacent runs of the same op
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	merged := ops[:0]
	for _, op := range ops {
		if len(merged) > 0 && merged[len(merged)-1].Op == op.Op {
			merged[len(merged)-1].Len += op.Len
		} else {
			merged = append(merged, op)
		}
	}
	lv.ops = merged
}

// matchProbability combines the per-edit penalty terms of the edit
// script in lv.ops with the no-error factor of the matched bases.
func (lv *LandauVishkin) matchProbability(pattern, qual []byte) float64 {
	p := 1.0
	var i, nMatched int
	for _, op := range lv.ops {
		switch op.Op {
		case '=':
			nMatched += op.Len
			i += op.Len
		case 'X':
			for j := 0; j < op.Len; j++ {
				p *= phredToProb[qual[i]]
				i++
			}
		case 'I':
			p *= indelProb[op.Len]
			i += op.Len
		case 'D':
			p *= indelProb[op.Len]
		}
	}
	return p * perfectMatchProb[nMatched]
}

// ComputeHammingDistance is the substitution-only shortcut: no indels
// are considered, so the band degenerates to one diagonal.
func ComputeHammingDistance(ref, pattern, qual []byte, k int) (int, float64) {
	if len(pattern) > len(ref) {
		return ScoreExceeded, 0
	}
	var score int
	p := 1.0
	for i, b := range pattern {
		if b != ref[i] {
			score++
			if score > k {
				return ScoreExceeded, 0
			}
			p *= phredToProb[qual[i]]
		}
	}
	return score, p * perfectMatchProb[len(pattern)-score]
}

// RenderCigarText writes the SAM text form of the edit script into
// buf without growing it. With useM, matches and substitutions are
// merged into M runs. softFront/softBack add soft-clip ops at the
// ends. It returns the number of bytes written.
func RenderCigarText(buf []byte, ops []CigarOp, useM bool, softFront, softBack int) (int, error) {
	var n int
	var scratch [20]byte

	emit := func(length int, op byte) error {
		s := strconv.AppendInt(scratch[:0], int64(length), 10)
		if n+len(s)+1 > len(buf) {
			return ErrCigarBufTooSmall
		}
		n += copy(buf[n:], s)
		buf[n] = op
		n++
		return nil
	}

	if softFront > 0 {
		if err := emit(softFront, 'S'); err != nil {
			return 0, err
		}
	}

	// merge adjacent runs after the optional =/X -> M rewrite
	var runLen int
	var runOp byte
	for _, op := range ops {
		o := op.Op
		if useM && (o == '=' || o == 'X') {
			o = 'M'
		}
		if o == runOp {
			runLen += op.Len
			continue
		}
		if runLen > 0 {
			if err := emit(runLen, runOp); err != nil {
				return 0, err
			}
		}
		runOp, runLen = o, op.Len
	}
	if runLen > 0 {
		if err := emit(runLen, runOp); err != nil {
			return 0, err
		}
	}

	if softBack > 0 {
		if err := emit(softBack, 'S'); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// RenderCigarPacked writes the BAM binary form (length<<4 | opcode)
// into buf without growing it. It returns the number of ops written.
func RenderCigarPacked(buf []uint32, ops []CigarOp, useM bool, softFront, softBack int) (int, error) {
	var n int

	emit := func(length int, op byte) error {
		if n >= len(buf) {
			return ErrCigarBufTooSmall
		}
		buf[n] = uint32(length)<<4 | bamOpCode[op]
		n++
		return nil
	}

	if softFront > 0 {
		if err := emit(softFront, 'S'); err != nil {
			return 0, err
		}
	}

	var runLen int
	var runOp byte
	for _, op := range ops {
		o := op.Op
		if useM && (o == '=' || o == 'X') {
			o = 'M'
		}
		if o == runOp {
			runLen += op.Len
			continue
		}
		if runLen > 0 {
			if err := emit(runLen, runOp); err != nil {
				return 0, err
			}
		}
		runOp, runLen = o, op.Len
	}
	if runLen > 0 {
		if err := emit(runLen, runOp); err != nil {
			return 0, err
		}
	}

	if softBack > 0 {
		if err := emit(softBack, 'S'); err != nil {
			return 0, err
		}
	}
	return n, nil
}
