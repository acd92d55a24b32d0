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

import "testing"

func TestCandidateTableFindOrAdd(t *testing.T) {
	tab := newCandidateTable(16, 8)
	tab.begin()

	e, slot, merged := tab.findOrAdd(1000, Forward, 5)
	if e == nil || merged {
		t.Fatalf("expected a fresh candidate")
	}
	if e.baseGenomeLocation != 1000-1000%candidatesPerElement {
		t.Errorf("wrong base location: %d", e.baseGenomeLocation)
	}
	if e.candidates[slot].seedOffset != 5 {
		t.Errorf("seed offset not recorded")
	}

	// the same location again merges
	e2, slot2, merged := tab.findOrAdd(1000, Forward, 9)
	if e2 != e || slot2 != slot || !merged {
		t.Errorf("expected a merge at the same location")
	}

	// a nearby location shares the element but takes a new slot
	e3, slot3, merged := tab.findOrAdd(1001, Forward, 0)
	if e3 != e || merged || slot3 == slot {
		t.Errorf("expected a new slot in the same element")
	}

	// the same location at the other direction is a separate element
	e4, _, merged := tab.findOrAdd(1000, RC, 0)
	if e4 == e || merged {
		t.Errorf("expected directions to be kept apart")
	}

	if tab.nUsed != 2 {
		t.Errorf("expected 2 elements used, got %d", tab.nUsed)
	}
}

func TestCandidateTableWeightLists(t *testing.T) {
	tab := newCandidateTable(16, 8)
	tab.begin()

	ea, _, _ := tab.findOrAdd(100, Forward, 0)
	eb, _, _ := tab.findOrAdd(5000, Forward, 0)
	ec, _, _ := tab.findOrAdd(90000, RC, 0)

	tab.incrementWeight(ea)
	tab.incrementWeight(eb)
	tab.incrementWeight(eb)
	tab.incrementWeight(ec)
	tab.incrementWeight(ec)
	tab.incrementWeight(ec)

	// pops come in descending weight order
	want := []struct {
		e      *hashTableElement
		weight int32
	}{{ec, 3}, {eb, 2}, {ea, 1}}
	for i, w := range want {
		got := tab.popHighestWeight()
		if got != w.e {
			t.Fatalf("pop %d: wrong element", i)
		}
		if got.weight != w.weight {
			t.Errorf("pop %d: expected weight %d, got %d", i, w.weight, got.weight)
		}
	}
	if tab.popHighestWeight() != nil {
		t.Errorf("expected an empty table after three pops")
	}
}

func TestCandidateTableWeightTies(t *testing.T) {
	tab := newCandidateTable(16, 8)
	tab.begin()

	var elems []*hashTableElement
	for i := 0; i < 5; i++ {
		e, _, _ := tab.findOrAdd(uint32(i*1000), Forward, 0)
		tab.incrementWeight(e)
		elems = append(elems, e)
	}

	seen := make(map[*hashTableElement]bool)
	for i := 0; i < 5; i++ {
		e := tab.popHighestWeight()
		if e == nil {
			t.Fatalf("pop %d: table ran dry early", i)
		}
		if seen[e] {
			t.Fatalf("pop %d: element returned twice", i)
		}
		seen[e] = true
	}
	for _, e := range elems {
		if !seen[e] {
			t.Errorf("an element was never popped")
		}
	}
}

func TestCandidateTableEpochClear(t *testing.T) {
	tab := newCandidateTable(16, 8)

	tab.begin()
	e, _, _ := tab.findOrAdd(1234, Forward, 0)
	tab.incrementWeight(e)

	tab.begin()
	if tab.findElement(1234, Forward) != nil {
		t.Errorf("expected the table to be empty after begin")
	}
	if tab.popHighestWeight() != nil {
		t.Errorf("expected no weighted elements after begin")
	}

	// the pool is reusable after the clear
	e2, _, merged := tab.findOrAdd(1234, Forward, 0)
	if e2 == nil || merged {
		t.Errorf("expected a fresh element after begin")
	}
	if tab.nUsed != 1 {
		t.Errorf("expected 1 element used, got %d", tab.nUsed)
	}
}

func TestCandidateTablePoolExhaustion(t *testing.T) {
	tab := newCandidateTable(1, 1) // pool clamps to its minimum size
	tab.begin()

	var n int
	for i := 0; ; i++ {
		e, _, _ := tab.findOrAdd(uint32(i)*candidatesPerElement, Forward, 0)
		if e == nil {
			break
		}
		n++
		if n > 100000 {
			t.Fatalf("pool never ran out")
		}
	}
	if int32(n) != tab.nUsed {
		t.Errorf("allocated %d elements but nUsed is %d", n, tab.nUsed)
	}
}

func TestCandidateTableFindElement(t *testing.T) {
	tab := newCandidateTable(16, 8)
	tab.begin()

	tab.findOrAdd(777, RC, 3)

	if tab.findElement(777, RC) == nil {
		t.Errorf("expected to find the element")
	}
	// any location in the same window maps to the same element
	base := uint32(777) - 777%candidatesPerElement
	if tab.findElement(base, RC) == nil {
		t.Errorf("expected the window base to find the element")
	}
	if tab.findElement(777, Forward) != nil {
		t.Errorf("expected no element at the other direction")
	}
	if tab.findElement(777+candidatesPerElement, RC) != nil {
		t.Errorf("expected no element in the next window")
	}
}
