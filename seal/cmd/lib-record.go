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
	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/seal-bio/seal/seal/cmd/read"
	"github.com/seal-bio/seal/seal/cmd/sam"
)

// recordBuilder turns alignment results into SAM record lines. The
// final CIGAR is recomputed by a forward pass of the scorer at the
// reported location. One builder belongs to one worker goroutine.
type recordBuilder struct {
	genome *genome.Genome
	lv     *LandauVishkin
	maxK   int

	seqBuf   []byte
	qualBuf  []byte
	alnSeq   []byte
	alnQual  []byte
	cigarBuf []byte

	rec sam.Record
}

func newRecordBuilder(g *genome.Genome, maxK int) *recordBuilder {
	return &recordBuilder{
		genome:   g,
		lv:       NewLandauVishkin(maxK),
		maxK:     maxK,
		seqBuf:   make([]byte, 0, read.MaxReadSize),
		qualBuf:  make([]byte, 0, read.MaxReadSize),
		alnSeq:   make([]byte, read.MaxReadSize),
		alnQual:  make([]byte, read.MaxReadSize),
		cigarBuf: make([]byte, 1024),
	}
}

// appendRecord appends the SAM line for one aligned or unaligned read
// end. extraFlag carries the pairing bits; mateRef/matePos/tlen are
// zero values for single-end output.
func (b *recordBuilder) appendRecord(dst []byte, r *read.Read, res *SingleAlignmentResult,
	extraFlag int, mateRef string, matePos, tlen int) []byte {

	rec := &b.rec
	*rec = sam.Record{
		Name:        r.ID,
		Flag:        extraFlag,
		MateRef:     mateRef,
		MatePos:     matePos,
		TemplateLen: tlen,
	}

	if !res.Aligned() {
		rec.Flag |= sam.FlagUnmapped
		rec.Seq = b.fillSeq(r, Forward)
		rec.Qual = b.fillQual(r, Forward)
		return sam.AppendRecord(dst, rec)
	}

	piece, _, ok := b.genome.GetPieceAtLocation(res.Location)
	if !ok {
		rec.Flag |= sam.FlagUnmapped
		rec.Seq = b.fillSeq(r, Forward)
		rec.Qual = b.fillQual(r, Forward)
		return sam.AppendRecord(dst, rec)
	}

	rec.Ref = piece.Name
	rec.Pos = int(res.Location-piece.Beginning) + 1
	rec.MapQ = res.MAPQ
	if res.Direction == RC {
		rec.Flag |= sam.FlagReverse
	}
	rec.Seq = b.fillSeq(r, res.Direction)
	rec.Qual = b.fillQual(r, res.Direction)
	rec.Cigar = b.computeCigar(r, res)

	return sam.AppendRecord(dst, rec)
}

// fillSeq returns the full unclipped sequence in output orientation.
func (b *recordBuilder) fillSeq(r *read.Read, d Direction) []byte {
	b.seqBuf = append(b.seqBuf[:0], r.UnclippedSeq...)
	if d == RC {
		read.RC(b.seqBuf)
	}
	return b.seqBuf
}

// fillQual returns the unclipped qualities in output orientation,
// converted to ASCII Phred+33.
func (b *recordBuilder) fillQual(r *read.Read, d Direction) []byte {
	b.qualBuf = b.qualBuf[:0]
	if d == RC {
		for i := len(r.UnclippedQual) - 1; i >= 0; i-- {
			b.qualBuf = append(b.qualBuf, r.UnclippedQual[i]+33)
		}
	} else {
		for _, q := range r.UnclippedQual {
			b.qualBuf = append(b.qualBuf, q+33)
		}
	}
	return b.qualBuf
}

// computeCigar reruns the scorer forward at the reported location and
// renders the edit script with soft clips for the trimmed ends.
func (b *recordBuilder) computeCigar(r *read.Read, res *SingleAlignmentResult) []byte {
	readLen := r.Len()
	seq, qual := r.Seq, r.Qual
	if res.Direction == RC {
		r.ReverseComplementInto(b.alnSeq[:readLen])
		r.ReverseQualInto(b.alnQual[:readLen])
		seq, qual = b.alnSeq[:readLen], b.alnQual[:readLen]
	}

	pieceEnd := b.genome.PieceEnd(res.Location)
	if pieceEnd <= res.Location {
		return nil
	}
	refLen := readLen + b.maxK
	if uint32(refLen) > pieceEnd-res.Location {
		refLen = int(pieceEnd - res.Location)
	}
	ref := b.genome.GetSubstring(res.Location, refLen)
	if ref == nil {
		return nil
	}

	score, _, ops := b.lv.ComputeEditDistanceWithCigar(ref, seq, qual, b.maxK)
	if score == ScoreExceeded {
		return nil
	}

	frontClipped := r.FrontClipped
	backClipped := len(r.UnclippedSeq) - frontClipped - readLen
	softFront, softBack := frontClipped, backClipped
	if res.Direction == RC {
		softFront, softBack = backClipped, frontClipped
	}

	n, err := RenderCigarText(b.cigarBuf, ops, true, softFront, softBack)
	if err != nil {
		return nil
	}
	return b.cigarBuf[:n]
}

// pairFlags returns the FLAG bits of one end of a pair.
func pairFlags(whichEnd int, self, mate *SingleAlignmentResult) int {
	f := sam.FlagPaired
	if whichEnd == 0 {
		f |= sam.FlagFirstOfPair
	} else {
		f |= sam.FlagSecondOfPair
	}
	if !mate.Aligned() {
		f |= sam.FlagMateUnmapped
	} else if mate.Direction == RC {
		f |= sam.FlagMateReverse
	}
	if self.Aligned() && mate.Aligned() {
		f |= sam.FlagProperPair
	}
	return f
}

// templateLen computes the signed TLEN of a pair mapped to the same
// piece. Both lengths are the clipped read lengths.
func templateLen(self, mate *SingleAlignmentResult, selfLen, mateLen int) int {
	if !self.Aligned() || !mate.Aligned() {
		return 0
	}
	selfEnd := int64(self.Location) + int64(selfLen)
	mateEnd := int64(mate.Location) + int64(mateLen)
	lo := int64(self.Location)
	if int64(mate.Location) < lo {
		lo = int64(mate.Location)
	}
	hi := selfEnd
	if mateEnd > hi {
		hi = mateEnd
	}
	if int64(self.Location) <= int64(mate.Location) {
		return int(hi - lo)
	}
	return -int(hi - lo)
}
