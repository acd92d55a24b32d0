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

import "math"

// MaxMAPQ is the ceiling of the mapping quality scale.
const MaxMAPQ = 70

// computeMAPQ turns the probability mass of the reported alignment
// versus all scored alignments into a Phred-scaled mapping quality.
//
// probabilityOfAllCandidates is the summed match probability of every
// alignment scored for the read; probabilityOfBestCandidate the mass
// of the one being reported. biggestClusterScored is the size of the
// largest merged candidate cluster that got scored, and
// popularSeedsSkipped counts seeds whose hit lists were over the hit
// limit.
func computeMAPQ(probabilityOfAllCandidates, probabilityOfBestCandidate float64,
	score int, firstPassSeedsNotSkipped, biggestClusterScored, popularSeedsSkipped int,
	usedHamming bool) int {

	if probabilityOfAllCandidates < probabilityOfBestCandidate {
		// rounding in the sum can leave the total a hair under the part
		probabilityOfAllCandidates = probabilityOfBestCandidate
	}

	correctnessProbability := probabilityOfBestCandidate / probabilityOfAllCandidates

	var baseMAPQ int
	if correctnessProbability >= 1 {
		if popularSeedsSkipped == 0 && score < 5 && !usedHamming {
			return MaxMAPQ
		}
		baseMAPQ = MaxMAPQ - 1
	} else {
		baseMAPQ = int(-10 * math.Log10(1-correctnessProbability))
		if baseMAPQ > MaxMAPQ-1 {
			baseMAPQ = MaxMAPQ - 1
		}
	}

	if usedHamming {
		// the substitution-only scorer misses gapped alternatives, so
		// its certainty is capped
		if baseMAPQ > 26 {
			baseMAPQ = 26
		}
		if baseMAPQ > 10 {
			baseMAPQ--
		}
	}

	if biggestClusterScored > 1 {
		penalty := int(math.Log10(float64(biggestClusterScored)) * 3)
		baseMAPQ -= penalty
	}

	if popularSeedsSkipped > 10 {
		baseMAPQ -= (popularSeedsSkipped - 10) / 2
	}

	if baseMAPQ < 0 {
		baseMAPQ = 0
	}
	return baseMAPQ
}
