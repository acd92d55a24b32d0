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

// hitLookup is the hit list of one seed lookup, kept together with the
// seed's offset in the read so every hit can be mapped back to the
// implied read-start location (hit - seedOffset).
type hitLookup struct {
	seedOffset int32
	hits       []uint32 // descending, borrowed from the seed index

	// cursor for the intersection walk; hits above it were already
	// returned or skipped
	currentHitForIntersection int32
}

// hitSet collects all seed lookups of one read at one direction and
// walks the union of their implied read-start locations from high to
// low. The hit lists stay sorted descending, so each cursor only ever
// moves forward.
type hitSet struct {
	lookups []hitLookup

	mostRecentLocationReturned uint32
}

func newHitSet(maxSeeds int) *hitSet {
	return &hitSet{lookups: make([]hitLookup, 0, maxSeeds)}
}

func (s *hitSet) begin() {
	s.lookups = s.lookups[:0]
	s.mostRecentLocationReturned = 0
}

// recordLookup adds one seed lookup. Empty hit lists are dropped.
func (s *hitSet) recordLookup(seedOffset int, hits []uint32) {
	if len(hits) == 0 {
		return
	}
	s.lookups = append(s.lookups, hitLookup{
		seedOffset: int32(seedOffset),
		hits:       hits,
	})
}

func (s *hitSet) numLookups() int {
	return len(s.lookups)
}

// totalHits sums the hit-list lengths of all recorded lookups.
func (s *hitSet) totalHits() int {
	var n int
	for i := range s.lookups {
		n += len(s.lookups[i].hits)
	}
	return n
}

// impliedLocation maps a genome hit back to the read-start location it
// implies. Hits too close to the genome start to fit the seed offset
// are rejected.
func impliedLocation(hit uint32, seedOffset int32) (uint32, bool) {
	if hit < uint32(seedOffset) {
		return 0, false
	}
	return hit - uint32(seedOffset), true
}

// getFirstHit returns the highest implied location across all lookups
// and the seed offset of the lookup that produced it.
func (s *hitSet) getFirstHit() (uint32, int32, bool) {
	var best uint32
	var bestOffset int32
	var found bool
	for i := range s.lookups {
		l := &s.lookups[i]
		l.currentHitForIntersection = 0
		loc, ok := impliedLocation(l.hits[0], l.seedOffset)
		if !ok {
			continue
		}
		if !found || loc > best {
			best = loc
			bestOffset = l.seedOffset
			found = true
		}
	}
	if found {
		s.mostRecentLocationReturned = best
	}
	return best, bestOffset, found
}

// getNextHitLessThanOrEqualTo returns the highest implied location at
// or below maxLocation. Cursors only advance, so a sweep over
// decreasing maxLocation values is linear overall.
func (s *hitSet) getNextHitLessThanOrEqualTo(maxLocation uint32) (uint32, int32, bool) {
	var best uint32
	var bestOffset int32
	var found bool
	for i := range s.lookups {
		l := &s.lookups[i]
		target := maxLocation + uint32(l.seedOffset)
		if target < maxLocation { // overflow
			target = ^uint32(0)
		}

		probe := l.advanceTo(target)
		if probe == int32(len(l.hits)) {
			continue
		}
		loc, ok := impliedLocation(l.hits[probe], l.seedOffset)
		if !ok {
			continue
		}
		if !found || loc > best {
			best = loc
			bestOffset = l.seedOffset
			found = true
		}
	}
	if found {
		s.mostRecentLocationReturned = best
	}
	return best, bestOffset, found
}

// advanceTo moves the cursor to the first hit at or below target and
// returns it, or len(hits) when every remaining hit is above target.
// Binary search over the untouched suffix.
func (l *hitLookup) advanceTo(target uint32) int32 {
	lo, hi := l.currentHitForIntersection, int32(len(l.hits))
	for lo < hi {
		mid := (lo + hi) / 2
		if l.hits[mid] > target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	l.currentHitForIntersection = lo
	return lo
}

// getNextLowerHit returns the highest implied location strictly below
// the one most recently returned.
func (s *hitSet) getNextLowerHit() (uint32, int32, bool) {
	if s.mostRecentLocationReturned == 0 {
		return 0, 0, false
	}
	return s.getNextHitLessThanOrEqualTo(s.mostRecentLocationReturned - 1)
}

// hitLocation is one candidate location queued for scoring in the
// paired-end intersection walk.
type hitLocation struct {
	location         uint32
	adjusted         uint32 // start after indel correction by the scorer
	seedOffset       int32
	score            int32
	scoreLimit       int32
	matchProbability float64
	scored           bool
}

// hitLocationRingBuffer holds a sliding window of candidate locations
// in decreasing location order. head is where the next insert goes,
// tail is the oldest live entry.
type hitLocationRingBuffer struct {
	entries []hitLocation
	head    int
	tail    int
}

func newHitLocationRingBuffer(capacity int) *hitLocationRingBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &hitLocationRingBuffer{entries: make([]hitLocation, capacity)}
}

func (b *hitLocationRingBuffer) clear() {
	b.head = 0
	b.tail = 0
}

func (b *hitLocationRingBuffer) isEmpty() bool {
	return b.head == b.tail
}

func (b *hitLocationRingBuffer) count() int {
	n := b.head - b.tail
	if n < 0 {
		n += len(b.entries)
	}
	return n
}

func (b *hitLocationRingBuffer) full() bool {
	return b.count() == len(b.entries)-1
}

// insertUnscored queues a location that still needs scoring.
// Inserts must come in decreasing location order.
func (b *hitLocationRingBuffer) insertUnscored(location uint32, seedOffset int32) *hitLocation {
	return b.insert(hitLocation{
		location:   location,
		seedOffset: seedOffset,
		score:      ScoreExceeded,
	})
}

// insertScored queues a location whose score is already known.
func (b *hitLocationRingBuffer) insertScored(location uint32, score int32, matchProbability float64) *hitLocation {
	return b.insert(hitLocation{
		location:         location,
		score:            score,
		matchProbability: matchProbability,
		scored:           true,
	})
}

func (b *hitLocationRingBuffer) insert(h hitLocation) *hitLocation {
	if b.full() {
		b.tail = (b.tail + 1) % len(b.entries)
	}
	e := &b.entries[b.head]
	*e = h
	b.head = (b.head + 1) % len(b.entries)
	return e
}

// trimAboveLocation drops entries whose location is above the limit.
// Entries are ordered by decreasing location from tail to head, so
// trimming only moves the tail.
func (b *hitLocationRingBuffer) trimAboveLocation(limit uint32) {
	for b.tail != b.head && b.entries[b.tail].location > limit {
		b.tail = (b.tail + 1) % len(b.entries)
	}
}

// forEach visits the live entries from oldest (highest location) to
// newest. The callback may mutate the entry; returning false stops the
// walk.
func (b *hitLocationRingBuffer) forEach(f func(*hitLocation) bool) {
	for i := b.tail; i != b.head; i = (i + 1) % len(b.entries) {
		if !f(&b.entries[i]) {
			return
		}
	}
}

// newest returns the most recently inserted live entry, or nil.
func (b *hitLocationRingBuffer) newest() *hitLocation {
	if b.isEmpty() {
		return nil
	}
	i := b.head - 1
	if i < 0 {
		i += len(b.entries)
	}
	return &b.entries[i]
}
