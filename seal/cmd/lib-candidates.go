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
	"encoding/binary"

	"github.com/zeebo/wyhash"
)

// maxMergeDist: candidate locations at the same direction are grouped
// into aligned windows of 2*maxMergeDist locations, one hash-table
// element per window, tracked by a 64-bit occupancy bitmask. Two
// locations within maxMergeDist of each other that fall on opposite
// sides of a window boundary land in different elements.
const maxMergeDist = 31

const candidatesPerElement = 2 * maxMergeDist

const noElement = int32(-1)

// candidate is one tentative genome location inside an element's
// window: the offset of the seed that produced it, and its score once
// scored.
type candidate struct {
	seedOffset int32
	score      int32
}

// hashTableElement is a cluster of merged candidates at one direction.
// Elements live in a dense pool and link into two structures at once:
// a hash bucket chain and a doubly linked list per weight value.
type hashTableElement struct {
	self int32 // index in the pool
	next int32 // hash chain

	weightNext int32
	weightPrev int32

	baseGenomeLocation uint32
	direction          Direction

	candidatesUsed   uint64
	candidatesScored uint64

	weight int32

	bestScore                    int32
	bestScoreCandidate           int32 // slot of the best score
	matchProbabilityForBestScore float64

	candidates [candidatesPerElement]candidate
}

type hashAnchor struct {
	epoch uint64
	head  int32
}

// candidateTable is the per-read ephemeral table of candidate
// locations. Clearing between reads is O(1): begin bumps the epoch
// and anchors whose stamp does not match read as empty.
type candidateTable struct {
	pool  []hashTableElement
	nUsed int32

	buckets    [numDirections][]hashAnchor
	bucketMask uint32
	epoch      uint64

	// head of the doubly linked list per weight value
	weightListHeads []int32

	highestUsedWeight int32

	keyBuf [8]byte
}

// newCandidateTable sizes the pool for maxHits hits from each of
// maxSeeds seeds in both directions.
func newCandidateTable(maxHits, maxSeeds int) *candidateTable {
	poolSize := maxHits * maxSeeds * 2
	if poolSize < 64 {
		poolSize = 64
	}
	nBuckets := uint32(1)
	for int(nBuckets) < poolSize*2 {
		nBuckets <<= 1
	}

	t := &candidateTable{
		pool:            make([]hashTableElement, poolSize),
		bucketMask:      nBuckets - 1,
		weightListHeads: make([]int32, maxSeeds+2),
	}
	for d := 0; d < numDirections; d++ {
		t.buckets[d] = make([]hashAnchor, nBuckets)
	}
	for i := range t.weightListHeads {
		t.weightListHeads[i] = noElement
	}
	return t
}

// begin logically clears the table for the next read.
func (t *candidateTable) begin() {
	t.epoch++
	t.nUsed = 0
	t.highestUsedWeight = 0
	for i := range t.weightListHeads {
		t.weightListHeads[i] = noElement
	}
}

func (t *candidateTable) hash(base uint32) uint32 {
	binary.LittleEndian.PutUint64(t.keyBuf[:], uint64(base))
	return uint32(wyhash.Hash(t.keyBuf[:], 5731)) & t.bucketMask
}

// findOrAdd returns the element covering the location at the given
// direction, allocating one if needed, plus the candidate slot.
// merged is true when the slot was already occupied by an earlier
// seed vote, in which case no new candidate is created. A nil element
// means the pool is exhausted.
func (t *candidateTable) findOrAdd(location uint32, direction Direction, seedOffset int) (elem *hashTableElement, slot int, merged bool) {
	base := location - location%candidatesPerElement
	slot = int(location - base)

	anchor := &t.buckets[direction][t.hash(base)]
	if anchor.epoch != t.epoch {
		anchor.epoch = t.epoch
		anchor.head = noElement
	}

	for i := anchor.head; i != noElement; i = t.pool[i].next {
		e := &t.pool[i]
		if e.baseGenomeLocation == base {
			if e.candidatesUsed&(1<<uint(slot)) != 0 {
				return e, slot, true
			}
			e.candidatesUsed |= 1 << uint(slot)
			e.candidates[slot] = candidate{seedOffset: int32(seedOffset), score: ScoreExceeded}
			return e, slot, false
		}
	}

	if int(t.nUsed) == len(t.pool) {
		return nil, 0, false
	}
	e := &t.pool[t.nUsed]
	idx := t.nUsed
	t.nUsed++

	*e = hashTableElement{
		self:               idx,
		next:               anchor.head,
		weightNext:         noElement,
		weightPrev:         noElement,
		baseGenomeLocation: base,
		direction:          direction,
		candidatesUsed:     1 << uint(slot),
		bestScore:          ScoreExceeded,
		bestScoreCandidate: -1,
	}
	e.candidates[slot] = candidate{seedOffset: int32(seedOffset), score: ScoreExceeded}
	anchor.head = idx
	return e, slot, false
}

// findElement returns the element covering the location at the given
// direction, or nil.
func (t *candidateTable) findElement(location uint32, direction Direction) *hashTableElement {
	base := location - location%candidatesPerElement

	anchor := &t.buckets[direction][t.hash(base)]
	if anchor.epoch != t.epoch {
		return nil
	}
	for i := anchor.head; i != noElement; i = t.pool[i].next {
		if t.pool[i].baseGenomeLocation == base {
			return &t.pool[i]
		}
	}
	return nil
}

// incrementWeight moves the element one weight bucket up and keeps
// highestUsedWeight current.
func (t *candidateTable) incrementWeight(e *hashTableElement) {
	idx := e.self
	t.unlinkWeight(e, idx)

	e.weight++
	w := e.weight
	if int(w) >= len(t.weightListHeads) {
		w = int32(len(t.weightListHeads) - 1)
		e.weight = w
	}

	head := t.weightListHeads[w]
	e.weightNext = head
	e.weightPrev = noElement
	if head != noElement {
		t.pool[head].weightPrev = idx
	}
	t.weightListHeads[w] = idx

	if w > t.highestUsedWeight {
		t.highestUsedWeight = w
	}
}

func (t *candidateTable) unlinkWeight(e *hashTableElement, idx int32) {
	if e.weight == 0 {
		return
	}
	if e.weightPrev != noElement {
		t.pool[e.weightPrev].weightNext = e.weightNext
	} else if t.weightListHeads[e.weight] == idx {
		t.weightListHeads[e.weight] = e.weightNext
	}
	if e.weightNext != noElement {
		t.pool[e.weightNext].weightPrev = e.weightPrev
	}
	e.weightNext = noElement
	e.weightPrev = noElement
}

// popHighestWeight removes and returns an element from the non-empty
// weight list with the highest weight, or nil when all lists are
// empty.
func (t *candidateTable) popHighestWeight() *hashTableElement {
	for t.highestUsedWeight > 0 && t.weightListHeads[t.highestUsedWeight] == noElement {
		t.highestUsedWeight--
	}
	if t.highestUsedWeight == 0 {
		return nil
	}
	idx := t.weightListHeads[t.highestUsedWeight]
	e := &t.pool[idx]
	t.weightListHeads[t.highestUsedWeight] = e.weightNext
	if e.weightNext != noElement {
		t.pool[e.weightNext].weightPrev = noElement
	}
	e.weightNext = noElement
	e.weightPrev = noElement
	return e
}
