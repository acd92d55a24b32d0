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
	"math/bits"
	"time"

	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/seal-bio/seal/seal/cmd/index"
	"github.com/seal-bio/seal/seal/cmd/read"
	"github.com/willf/bitset"
)

// Direction of an alignment relative to the reference.
type Direction int

const (
	Forward Direction = iota
	RC

	numDirections = 2
)

func (d Direction) String() string {
	if d == RC {
		return "RC"
	}
	return "FORWARD"
}

// AlignmentStatus classifies the outcome of aligning one read.
type AlignmentStatus int

const (
	NotFound AlignmentStatus = iota
	SingleHit
	MultipleHits
	CertainHit
)

func (s AlignmentStatus) String() string {
	switch s {
	case SingleHit:
		return "SingleHit"
	case MultipleHits:
		return "MultipleHits"
	case CertainHit:
		return "CertainHit"
	}
	return "NotFound"
}

// SingleAlignmentResult is the outcome of aligning one read end.
type SingleAlignmentResult struct {
	Status           AlignmentStatus
	Location         uint32
	Direction        Direction
	Score            int
	MAPQ             int
	MatchProbability float64
}

// Aligned reports whether the result carries a usable location.
func (r *SingleAlignmentResult) Aligned() bool {
	return r.Status != NotFound
}

// maxSecondaryAlignments bounds multi-hit output independently of what
// the caller asks for.
const maxSecondaryAlignments = 512

// probabilitySaturation: once the summed probability mass of scored
// candidates passes this, the mapping quality is pinned at zero and
// further scoring cannot change the outcome.
const probabilitySaturation = 4.9

// AlignerOptions are the per-iteration knobs of the aligners.
type AlignerOptions struct {
	MaxDist  int // maximum edit distance K
	ConfDiff int // min score gap for a confident single hit
	NumSeeds int // seeds tried per read end
	MaxHits  int // hit-list length above which a seed is popular

	// raise confDiff by one when more than this many seeds of a read
	// were overly popular
	AdaptiveConfDiffThreshold int

	ExplorePopularSeeds bool
	StopOnFirstHit      bool

	// substitution-only scoring shortcut
	UseHamming bool

	// extra candidate locations to report, capped at
	// maxSecondaryAlignments
	NumSecondary int

	MinSpacing      int
	MaxSpacing      int
	ExtraScoreLimit int
}

// BaseAligner aligns single reads against a genome through its seed
// index. One instance belongs to one goroutine; all scratch state is
// reused across reads.
type BaseAligner struct {
	genome *genome.Genome
	index  *index.Index
	opt    AlignerOptions

	lv    *LandauVishkin
	table *candidateTable

	seedUsed *bitset.BitSet

	rcSeq  []byte
	rcQual []byte

	secondary []SingleAlignmentResult

	// counters the driver merges at worker exit
	NReads           int64
	NLocationsScored int64
	ScorerNanos      int64
}

// NewBaseAligner allocates an aligner with all scratch sized for
// MaxReadSize reads.
func NewBaseAligner(g *genome.Genome, idx *index.Index, opt AlignerOptions) *BaseAligner {
	return &BaseAligner{
		genome:   g,
		index:    idx,
		opt:      opt,
		lv:       NewLandauVishkin(opt.MaxDist),
		table:    newCandidateTable(opt.MaxHits, opt.NumSeeds),
		seedUsed: bitset.New(uint(read.MaxReadSize)),
		rcSeq:    make([]byte, read.MaxReadSize),
		rcQual:   make([]byte, read.MaxReadSize),
	}
}

// Secondary returns the extra candidate locations of the last AlignRead
// call, valid until the next call.
func (a *BaseAligner) Secondary() []SingleAlignmentResult {
	return a.secondary
}

// AlignRead aligns one read and returns the primary result.
func (a *BaseAligner) AlignRead(r *read.Read) SingleAlignmentResult {
	a.NReads++
	a.secondary = a.secondary[:0]

	result := SingleAlignmentResult{
		Status:   NotFound,
		Location: genome.InvalidLocation,
		Score:    ScoreExceeded,
	}

	readLen := r.Len()
	seedLen := a.index.SeedLen()
	maxK := a.opt.MaxDist
	if readLen < seedLen || r.CountOfNs() > maxK {
		return result
	}

	r.ReverseComplementInto(a.rcSeq[:readLen])
	r.ReverseQualInto(a.rcQual[:readLen])

	a.table.begin()
	a.seedUsed.ClearAll()

	popularSeedsSkipped, disjointSeedsUsed := a.applySeeds(r, nil, nil)

	confDiff := a.opt.ConfDiff
	if a.opt.AdaptiveConfDiffThreshold > 0 && popularSeedsSkipped > a.opt.AdaptiveConfDiffThreshold {
		confDiff++
	}

	onlyOneCandidate := a.table.nUsed == 1

	bestScore := maxK + 1
	bestLocation := genome.InvalidLocation
	bestDirection := Forward
	bestProbability := 0.0

	secondBestScore := maxK + confDiff + 1
	hasSecondBest := false

	probabilityOfAllCandidates := 0.0
	biggestClusterScored := 1
	scoreLimit := maxK

	started := time.Now()
scoring:
	for {
		e := a.table.popHighestWeight()
		if e == nil {
			break
		}

		// every disjoint seed that did not vote for this element costs
		// at least one edit; later pops have lower weight still
		if disjointSeedsUsed-int(e.weight) > scoreLimit {
			break
		}

		a.scoreElement(e, r, readLen, scoreLimit)

		n := bits.OnesCount64(e.candidatesScored)
		if n > biggestClusterScored {
			biggestClusterScored = n
		}

		if e.bestScore == ScoreExceeded || int(e.bestScore) > scoreLimit {
			continue
		}
		score := int(e.bestScore)
		location := e.baseGenomeLocation + uint32(e.bestScoreCandidate)
		prob := e.matchProbabilityForBestScore

		probabilityOfAllCandidates += prob

		if a.opt.NumSecondary > 0 && score <= maxK {
			a.recordSecondary(location, e.direction, score, prob)
		}

		if score < bestScore || (score == bestScore && prob > bestProbability) {
			if bestLocation != genome.InvalidLocation {
				secondBestScore = bestScore
				hasSecondBest = true
			}
			bestScore = score
			bestLocation = location
			bestDirection = e.direction
			bestProbability = prob

			if bestScore+confDiff < scoreLimit {
				scoreLimit = bestScore + confDiff
			}
		} else if score < secondBestScore {
			secondBestScore = score
			hasSecondBest = true
		}

		if bestScore <= maxK {
			if a.opt.StopOnFirstHit {
				break scoring
			}
			if probabilityOfAllCandidates >= probabilitySaturation {
				break scoring
			}
		}
	}
	a.ScorerNanos += time.Since(started).Nanoseconds()

	if bestScore > maxK {
		return result
	}

	result.Location = bestLocation
	result.Direction = bestDirection
	result.Score = bestScore
	result.MatchProbability = bestProbability

	switch {
	case onlyOneCandidate:
		result.Status = CertainHit
		result.MAPQ = MaxMAPQ
	case hasSecondBest && secondBestScore-bestScore < confDiff:
		result.Status = MultipleHits
		result.MAPQ = computeMAPQ(probabilityOfAllCandidates, bestProbability,
			bestScore, disjointSeedsUsed, biggestClusterScored, popularSeedsSkipped,
			a.opt.UseHamming)
	default:
		result.Status = SingleHit
		result.MAPQ = computeMAPQ(probabilityOfAllCandidates, bestProbability,
			bestScore, disjointSeedsUsed, biggestClusterScored, popularSeedsSkipped,
			a.opt.UseHamming)
	}
	return result
}

// applySeeds walks the seed positions of the read, queries the index,
// and feeds the hits into the candidate table. When the hit sets are
// non-nil the hits go there instead (the paired Phase 1 path).
// Seeds march L apart; wrap passes at offsets L/2, L/4, ... fill the
// gaps once the straight stride runs off the end. Returns the count of
// overly popular seeds and the count of disjoint seeds applied.
func (a *BaseAligner) applySeeds(r *read.Read, setForward, setRC *hitSet) (popularSeedsSkipped, disjointSeedsUsed int) {
	readLen := r.Len()
	seedLen := a.index.SeedLen()
	nPossibleSeeds := readLen - seedLen + 1

	nextSeedToTest := 0
	wrapCount := 0
	nSeedsApplied := 0

	for nSeedsApplied < a.opt.NumSeeds {
		if nextSeedToTest >= nPossibleSeeds {
			wrapCount++
			offset := seedLen >> uint(wrapCount)
			if offset == 0 {
				break
			}
			nextSeedToTest = offset
			continue
		}
		if a.seedUsed.Test(uint(nextSeedToTest)) {
			nextSeedToTest++
			continue
		}
		a.seedUsed.Set(uint(nextSeedToTest))

		offset := nextSeedToTest
		hitsForward, hitsRC, ok := a.index.Lookup(r.Seq[offset : offset+seedLen])
		if !ok { // seed contains an N
			nextSeedToTest++
			continue
		}
		nSeedsApplied++

		if len(hitsForward)+len(hitsRC) > a.opt.MaxHits {
			popularSeedsSkipped++
			if !a.opt.ExplorePopularSeeds {
				nextSeedToTest += seedLen
				continue
			}
			if len(hitsForward) > a.opt.MaxHits {
				hitsForward = hitsForward[:a.opt.MaxHits]
			}
			if len(hitsRC) > a.opt.MaxHits {
				hitsRC = hitsRC[:a.opt.MaxHits]
			}
		}
		if wrapCount == 0 {
			disjointSeedsUsed++
		}

		// an RC hit places the reverse-complemented read at the hit
		// minus the mirrored seed offset
		rcOffset := readLen - seedLen - offset
		if setForward != nil {
			setForward.recordLookup(offset, hitsForward)
			setRC.recordLookup(rcOffset, hitsRC)
		} else {
			a.ingestHits(hitsForward, offset, Forward)
			a.ingestHits(hitsRC, rcOffset, RC)
		}

		nextSeedToTest += seedLen
	}
	return popularSeedsSkipped, disjointSeedsUsed
}

func (a *BaseAligner) ingestHits(hits []uint32, offset int, d Direction) {
	for _, h := range hits {
		if h < uint32(offset) {
			continue
		}
		e, _, _ := a.table.findOrAdd(h-uint32(offset), d, offset)
		if e == nil { // pool exhausted
			return
		}
		a.table.incrementWeight(e)
	}
}

// scoreElement scores every not-yet-scored candidate of the element
// and updates its best score and probability.
func (a *BaseAligner) scoreElement(e *hashTableElement, r *read.Read, readLen, scoreLimit int) {
	pending := e.candidatesUsed &^ e.candidatesScored
	for pending != 0 {
		slot := bits.TrailingZeros64(pending)
		pending &^= 1 << uint(slot)
		e.candidatesScored |= 1 << uint(slot)

		location := e.baseGenomeLocation + uint32(slot)
		score, prob := a.scoreLocation(location, e.direction, r, readLen, scoreLimit)
		a.NLocationsScored++
		e.candidates[slot].score = int32(score)

		if score == ScoreExceeded {
			continue
		}
		if e.bestScore == ScoreExceeded || int32(score) < e.bestScore ||
			(int32(score) == e.bestScore && prob > e.matchProbabilityForBestScore) {
			e.bestScore = int32(score)
			e.bestScoreCandidate = int32(slot)
			e.matchProbabilityForBestScore = prob
		}
	}
}

// scoreLocation runs the scorer on the reference window starting at
// the location, truncated at the piece end.
func (a *BaseAligner) scoreLocation(location uint32, d Direction, r *read.Read, readLen, scoreLimit int) (int, float64) {
	pieceEnd := a.genome.PieceEnd(location)
	if pieceEnd <= location {
		return ScoreExceeded, 0
	}
	refLen := readLen + scoreLimit
	if uint32(refLen) > pieceEnd-location {
		refLen = int(pieceEnd - location)
	}
	if refLen < readLen-scoreLimit {
		return ScoreExceeded, 0
	}
	ref := a.genome.GetSubstring(location, refLen)
	if ref == nil {
		return ScoreExceeded, 0
	}

	seq, qual := r.Seq, r.Qual
	if d == RC {
		seq, qual = a.rcSeq[:readLen], a.rcQual[:readLen]
	}
	if a.opt.UseHamming {
		return ComputeHammingDistance(ref, seq, qual, scoreLimit)
	}
	return a.lv.ComputeEditDistance(ref, seq, qual, scoreLimit)
}

func (a *BaseAligner) recordSecondary(location uint32, d Direction, score int, prob float64) {
	limit := a.opt.NumSecondary
	if limit > maxSecondaryAlignments {
		limit = maxSecondaryAlignments
	}
	if len(a.secondary) >= limit {
		return
	}
	a.secondary = append(a.secondary, SingleAlignmentResult{
		Status:           MultipleHits,
		Location:         location,
		Direction:        d,
		Score:            score,
		MatchProbability: prob,
	})
}
