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
	"github.com/seal-bio/seal/seal/cmd/index"
	"github.com/seal-bio/seal/seal/cmd/read"
)

// minReadLenForPairing: below this clipped length the intersection
// walk has too few seeds to trust its hit lists, so the pair falls
// back to two single-end alignments.
const minReadLenForPairing = 50

// distanceToSearchBeyondBestScore: how much worse than the best pair
// score a candidate pair may be and still get scored.
const distanceToSearchBeyondBestScore = 2

// PairedAlignmentResult is the outcome of aligning a read pair.
// Results[0] is the first mate.
type PairedAlignmentResult struct {
	Results [2]SingleAlignmentResult

	// the intersection walk was skipped for this pair
	FellBack bool
}

// setPairState is the walk state of one orientation pairing, e.g.
// {end0 FORWARD, end1 RC}. The fewer-hits side drives the descending
// sweep; the mate side trails it inside a ring buffer covering
// [smallLoc-maxSpacing, smallLoc+maxSpacing].
type setPairState struct {
	fewerSet  *hitSet
	mateSet   *hitSet
	fewerEnd  int
	fewerDir  Direction
	mateDir   Direction
	mateRing  *hitLocationRingBuffer
	smallLoc  uint32
	smallOff  int32
	mateNext  uint32
	mateOff   int32
	mateHas   bool
	started   bool
	exhausted bool
}

// PairedAligner aligns read pairs by intersecting the hit lists of the
// two ends. One instance belongs to one goroutine.
type PairedAligner struct {
	base *BaseAligner

	sets  [2][numDirections]*hitSet
	pairs [2]setPairState

	rcSeq  [2][]byte
	rcQual [2][]byte

	revSeq  []byte
	revQual []byte
}

// NewPairedAligner allocates a paired aligner sharing nothing; the
// embedded single-end aligner serves the fallback path.
func NewPairedAligner(g *genome.Genome, idx *index.Index, opt AlignerOptions) *PairedAligner {
	p := &PairedAligner{base: NewBaseAligner(g, idx, opt)}
	for end := 0; end < 2; end++ {
		for d := 0; d < numDirections; d++ {
			p.sets[end][d] = newHitSet(opt.NumSeeds)
		}
		p.rcSeq[end] = make([]byte, read.MaxReadSize)
		p.rcQual[end] = make([]byte, read.MaxReadSize)
	}
	ringCap := 2*(opt.MaxSpacing+1) + 2
	p.pairs[0].mateRing = newHitLocationRingBuffer(ringCap)
	p.pairs[1].mateRing = newHitLocationRingBuffer(ringCap)
	p.revSeq = make([]byte, read.MaxReadSize)
	p.revQual = make([]byte, read.MaxReadSize)
	return p
}

// Base exposes the embedded single-end aligner, whose counters cover
// both paths.
func (p *PairedAligner) Base() *BaseAligner {
	return p.base
}

// AlignPair aligns both ends of a read pair.
func (p *PairedAligner) AlignPair(r0, r1 *read.Read) PairedAlignmentResult {
	maxK := p.base.opt.MaxDist

	if r0.Len() < minReadLenForPairing || r1.Len() < minReadLenForPairing ||
		r0.CountOfNs() > maxK || r1.CountOfNs() > maxK {
		var res PairedAlignmentResult
		res.FellBack = true
		res.Results[0] = p.base.AlignRead(r0)
		res.Results[1] = p.base.AlignRead(r1)
		for i := range res.Results {
			if res.Results[i].MAPQ > MaxMAPQ {
				res.Results[i].MAPQ = MaxMAPQ
			}
		}
		return res
	}

	reads := [2]*read.Read{r0, r1}
	for end := 0; end < 2; end++ {
		reads[end].ReverseComplementInto(p.rcSeq[end][:reads[end].Len()])
		reads[end].ReverseQualInto(p.rcQual[end][:reads[end].Len()])
	}

	// Phase 1: seed both ends in both orientations
	var popularSeedsSkipped, disjointSeedsUsed int
	for end := 0; end < 2; end++ {
		for d := 0; d < numDirections; d++ {
			p.sets[end][d].begin()
		}
		p.base.seedUsed.ClearAll()
		pop, disj := p.base.applySeeds(reads[end], p.sets[end][Forward], p.sets[end][RC])
		popularSeedsSkipped += pop
		disjointSeedsUsed += disj
	}

	hits0 := p.sets[0][Forward].totalHits() + p.sets[0][RC].totalHits()
	hits1 := p.sets[1][Forward].totalHits() + p.sets[1][RC].totalHits()
	fewerEnd := 0
	if hits1 < hits0 {
		fewerEnd = 1
	}
	mateEnd := 1 - fewerEnd

	// the two orientations a proper pair can take
	p.pairs[0].configure(p.sets, fewerEnd, Forward, RC)
	p.pairs[1].configure(p.sets, fewerEnd, RC, Forward)

	bestPairScore := 2*maxK + 1
	bestPairProb := 0.0
	var bestLoc [2]uint32
	var bestDir [2]Direction
	var bestScores [2]int
	var bestProbs [2]float64
	haveBest := false

	probabilityOfAllPairs := 0.0
	pairLimit := maxK + p.base.opt.ExtraScoreLimit

	adopt := func(floc, mloc uint32, fdir, mdir Direction, fscore, mscore int, fprob, mprob float64) {
		bestPairScore = fscore + mscore
		bestPairProb = fprob * mprob
		bestLoc[fewerEnd], bestLoc[mateEnd] = floc, mloc
		bestDir[fewerEnd], bestDir[mateEnd] = fdir, mdir
		bestScores[fewerEnd], bestScores[mateEnd] = fscore, mscore
		bestProbs[fewerEnd], bestProbs[mateEnd] = fprob, mprob
		haveBest = true
		if bestPairScore+distanceToSearchBeyondBestScore < pairLimit {
			pairLimit = bestPairScore + distanceToSearchBeyondBestScore
		}
	}

	// Phase 2: alternate between the two orientations so whichever
	// finds a good pair first tightens the shared limit for both
	for !p.pairs[0].exhausted || !p.pairs[1].exhausted {
		if probabilityOfAllPairs >= probabilitySaturation && haveBest {
			break
		}
		for i := range p.pairs {
			sp := &p.pairs[i]
			if sp.exhausted {
				continue
			}
			p.stepSetPair(sp, reads, pairLimit,
				func(floc, mloc uint32, fscore, mscore int, fprob, mprob float64) {
					score := fscore + mscore
					prob := fprob * mprob

					merged := haveBest &&
						sp.fewerDir == bestDir[fewerEnd] &&
						near(floc, bestLoc[fewerEnd]) && near(mloc, bestLoc[mateEnd])
					if !merged {
						probabilityOfAllPairs += prob
					}
					if score < bestPairScore || (score == bestPairScore && prob > bestPairProb) {
						adopt(floc, mloc, sp.fewerDir, sp.mateDir, fscore, mscore, fprob, mprob)
					}
				})
		}
	}

	var res PairedAlignmentResult
	if !haveBest || bestPairScore > 2*maxK {
		for i := range res.Results {
			res.Results[i] = SingleAlignmentResult{
				Status:   NotFound,
				Location: genome.InvalidLocation,
				Score:    ScoreExceeded,
			}
		}
		return res
	}

	mapq := computeMAPQ(probabilityOfAllPairs, bestPairProb, bestPairScore,
		disjointSeedsUsed, 1, popularSeedsSkipped, false)
	status := SingleHit
	if mapq < 10 {
		status = MultipleHits
	}
	for end := 0; end < 2; end++ {
		res.Results[end] = SingleAlignmentResult{
			Status:           status,
			Location:         bestLoc[end],
			Direction:        bestDir[end],
			Score:            bestScores[end],
			MAPQ:             mapq,
			MatchProbability: bestProbs[end],
		}
	}
	return res
}

func (sp *setPairState) configure(sets [2][numDirections]*hitSet, fewerEnd int, fewerDir, mateDir Direction) {
	mateEnd := 1 - fewerEnd
	sp.fewerSet = sets[fewerEnd][fewerDir]
	sp.mateSet = sets[mateEnd][mateDir]
	sp.fewerEnd = fewerEnd
	sp.fewerDir = fewerDir
	sp.mateDir = mateDir
	sp.mateRing.clear()
	sp.started = false
	sp.exhausted = false
	sp.mateHas = false
}

func near(a, b uint32) bool {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return d <= maxMergeDist
}

// stepSetPair processes one fewer-hits location: maintains the mate
// window, scores the fewer end, scores the in-range mates, and reports
// each candidate pair through emit. Advances to the next lower
// fewer-hits location before returning.
func (p *PairedAligner) stepSetPair(sp *setPairState, reads [2]*read.Read, pairLimit int,
	emit func(floc, mloc uint32, fscore, mscore int, fprob, mprob float64)) {

	maxK := p.base.opt.MaxDist
	minSpacing := uint32(p.base.opt.MinSpacing)
	maxSpacing := uint32(p.base.opt.MaxSpacing)
	mateEnd := 1 - sp.fewerEnd

	if !sp.started {
		sp.started = true
		var ok bool
		sp.smallLoc, sp.smallOff, ok = sp.fewerSet.getFirstHit()
		if !ok {
			sp.exhausted = true
			return
		}
		sp.mateNext, sp.mateOff, sp.mateHas = sp.mateSet.getFirstHit()
	}

	high := sp.smallLoc + maxSpacing
	if high < sp.smallLoc { // overflow
		high = ^uint32(0)
	}
	var low uint32
	if sp.smallLoc > maxSpacing {
		low = sp.smallLoc - maxSpacing
	}

	// mate hits above the window will never come back in range since
	// smallLoc only decreases
	if sp.mateHas && sp.mateNext > high {
		sp.mateNext, sp.mateOff, sp.mateHas = sp.mateSet.getNextHitLessThanOrEqualTo(high)
	}
	sp.mateRing.trimAboveLocation(high)
	for sp.mateHas && sp.mateNext >= low {
		sp.mateRing.insertUnscored(sp.mateNext, sp.mateOff)
		sp.mateNext, sp.mateOff, sp.mateHas = sp.mateSet.getNextLowerHit()
	}

	if !sp.mateRing.isEmpty() {
		fLimit := pairLimit
		if fLimit > maxK {
			fLimit = maxK
		}
		fscore, fprob, floc := p.scoreAnchored(reads[sp.fewerEnd], sp.fewerDir, sp.fewerEnd,
			sp.smallLoc, sp.smallOff, fLimit)
		if fscore != ScoreExceeded {
			sp.mateRing.forEach(func(h *hitLocation) bool {
				delta := int64(h.location) - int64(sp.smallLoc)
				if delta < 0 {
					delta = -delta
				}
				if delta < int64(minSpacing) || delta > int64(maxSpacing) {
					return true
				}

				mLimit := pairLimit - fscore
				if mLimit > maxK {
					mLimit = maxK
				}
				if mLimit < 0 {
					return true
				}
				if !h.scored || (h.score == ScoreExceeded && int(h.scoreLimit) < mLimit) {
					ms, mp, madj := p.scoreAnchored(reads[mateEnd], sp.mateDir, mateEnd,
						h.location, h.seedOffset, mLimit)
					h.scored = true
					h.scoreLimit = int32(mLimit)
					h.score = int32(ms)
					h.matchProbability = mp
					h.adjusted = madj
				}
				if h.score != ScoreExceeded {
					emit(floc, h.adjusted, fscore, int(h.score), fprob, h.matchProbability)
				}
				return true
			})
		}
	}

	var ok bool
	sp.smallLoc, sp.smallOff, ok = sp.fewerSet.getNextLowerHit()
	if !ok {
		sp.exhausted = true
	}
}

// scoreAnchored scores one end at an implied start location, keeping
// the seed that produced the hit as an exact anchor: the tail after
// the seed is scored forward from the anchor, the head before it is
// scored backward, and the returned location is the start corrected by
// whatever indels the head extension consumed.
func (p *PairedAligner) scoreAnchored(r *read.Read, d Direction, end int,
	location uint32, seedOffset int32, limit int) (score int, prob float64, adjusted uint32) {

	g := p.base.genome
	seedLen := p.base.index.SeedLen()
	readLen := r.Len()

	seq, qual := r.Seq, r.Qual
	if d == RC {
		seq, qual = p.rcSeq[end][:readLen], p.rcQual[end][:readLen]
	}

	anchor := location + uint32(seedOffset)
	prob = perfectMatchProb[seedLen]
	adjusted = location

	tailStart := int(seedOffset) + seedLen
	if tailStart < readLen {
		tailLen := readLen - tailStart
		refStart := anchor + uint32(seedLen)
		pieceEnd := g.PieceEnd(refStart)
		if pieceEnd <= refStart {
			return ScoreExceeded, 0, location
		}
		refLen := tailLen + limit
		if uint32(refLen) > pieceEnd-refStart {
			refLen = int(pieceEnd - refStart)
		}
		if refLen < tailLen-limit {
			return ScoreExceeded, 0, location
		}
		ref := g.GetSubstring(refStart, refLen)
		if ref == nil {
			return ScoreExceeded, 0, location
		}
		s, pr := p.base.lv.ComputeEditDistance(ref, seq[tailStart:], qual[tailStart:], limit)
		p.base.NLocationsScored++
		if s == ScoreExceeded {
			return ScoreExceeded, 0, location
		}
		score += s
		prob *= pr
	}

	if seedOffset > 0 {
		headLen := int(seedOffset)
		budget := limit - score
		if budget < 0 {
			return ScoreExceeded, 0, location
		}
		piece, _, ok := g.GetPieceAtLocation(anchor)
		if !ok {
			return ScoreExceeded, 0, location
		}
		refLen := headLen + budget
		start := piece.Beginning
		if anchor-piece.Beginning > uint32(refLen) {
			start = anchor - uint32(refLen)
		}
		refLen = int(anchor - start)
		if refLen < headLen-budget {
			return ScoreExceeded, 0, location
		}
		ref := g.GetSubstring(start, refLen)
		if ref == nil {
			return ScoreExceeded, 0, location
		}
		for i := 0; i < headLen; i++ {
			p.revSeq[i] = seq[headLen-1-i]
			p.revQual[i] = qual[headLen-1-i]
		}
		s, pr, used := p.base.lv.ComputeEditDistanceReverse(ref, p.revSeq[:headLen], p.revQual[:headLen], budget)
		p.base.NLocationsScored++
		if s == ScoreExceeded {
			return ScoreExceeded, 0, location
		}
		score += s
		prob *= pr
		adjusted = anchor - uint32(used)
	}

	return score, prob, adjusted
}
