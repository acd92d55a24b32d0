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

package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/shenwei356/kmers"
	"github.com/twotwotwo/sorts"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'.', 's', 'e', 'a', 'l', 'i', 'd', 'x'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// BufferSize is size of reading and writing buffer
var BufferSize = 65536

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("seed index: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("seed index: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("seed index: version mismatch")

// Seed length bounds.
const (
	MinSeedLen     = 16
	MaxSeedLen     = 22
	DefaultSeedLen = 20
)

var mapInitSize = 1 << 20 // 1M

// Index maps every 2-bit-packed L-mer occurring in the genome to the
// list of its occurrences, sorted descending by location.
// L-mers containing N are excluded. The index is read-only after
// Build/Load and is shared across worker goroutines.
type Index struct {
	seedLen int
	table   map[uint64][]uint32
}

// SeedLen returns the seed length L.
func (idx *Index) SeedLen() int {
	return idx.seedLen
}

// NumSeeds returns the number of distinct L-mers in the index.
func (idx *Index) NumSeeds() int {
	return len(idx.table)
}

// Lookup queries one seed and returns the hit lists of both
// orientations: locations of the seed itself and locations of its
// reverse complement, each sorted descending. The slices borrow the
// index's storage and must not be modified.
// ok is false when the seed contains a non-ACGT base.
func (idx *Index) Lookup(seed []byte) (hitsForward, hitsRC []uint32, ok bool) {
	for _, b := range seed {
		switch b {
		case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		default:
			return nil, nil, false
		}
	}
	code, err := kmers.Encode(seed)
	if err != nil {
		return nil, nil, false
	}
	hitsForward = idx.table[code]
	hitsRC = idx.table[kmers.MustRevComp(code, idx.seedLen)]
	return hitsForward, hitsRC, true
}

// LookupCode is Lookup for a pre-packed seed.
func (idx *Index) LookupCode(code uint64) (hitsForward, hitsRC []uint32) {
	return idx.table[code], idx.table[kmers.MustRevComp(code, idx.seedLen)]
}

// hitLocs sorts descending by location.
type hitLocs []uint32

func (s hitLocs) Len() int           { return len(s) }
func (s hitLocs) Less(i, j int) bool { return s[i] > s[j] }
func (s hitLocs) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// BuildOptions contains options for building an index.
type BuildOptions struct {
	SeedLen int
	NumCPUs int

	// called after every chunk of bases scanned, for progress reporting
	OnProgress func(bases int)
}

// Build scans the genome and collects seed occurrences.
func Build(g *genome.Genome, opt *BuildOptions) (*Index, error) {
	l := opt.SeedLen
	if l < MinSeedLen || l > MaxSeedLen {
		return nil, fmt.Errorf("seed index: seed length (%d) out of range: [%d, %d]", l, MinSeedLen, MaxSeedLen)
	}

	idx := &Index{
		seedLen: l,
		table:   make(map[uint64][]uint32, mapInitSize),
	}

	n := int(g.GetCountOfBases())

	// scan each piece separately so no seed spans two pieces
	pieces := g.Pieces()
	const chunkSize = 1 << 20
	for pi, p := range pieces {
		end := n
		if pi < len(pieces)-1 {
			end = int(pieces[pi+1].Beginning)
		}
		begin := int(p.Beginning)
		if end-begin < l {
			continue
		}

		seq := g.GetSubstring(p.Beginning, end-begin)
		var code uint64
		var err error
		var scanned int
		for i := 0; i <= len(seq)-l; i++ {
			if bytes.IndexByte(seq[i:i+l], 'N') >= 0 { // seed contains N
				continue
			}
			code, err = kmers.Encode(seq[i : i+l])
			if err != nil {
				continue
			}
			idx.table[code] = append(idx.table[code], uint32(begin+i))

			scanned++
			if opt.OnProgress != nil && scanned%chunkSize == 0 {
				opt.OnProgress(chunkSize)
			}
		}
		if opt.OnProgress != nil {
			opt.OnProgress(scanned % chunkSize)
		}
	}

	// sort every hit list descending, fanned out over workers
	codes := make([]uint64, 0, len(idx.table))
	for code := range idx.table {
		codes = append(codes, code)
	}

	threads := opt.NumCPUs
	if threads < 1 {
		threads = 1
	}
	tokens := make(chan int, threads)
	var wg sync.WaitGroup
	chunk := (len(codes) + threads - 1) / threads
	if chunk < 1 {
		chunk = 1
	}
	for lo := 0; lo < len(codes); lo += chunk {
		hi := lo + chunk
		if hi > len(codes) {
			hi = len(codes)
		}
		wg.Add(1)
		tokens <- 1
		go func(codes []uint64) {
			defer func() {
				wg.Done()
				<-tokens
			}()
			for _, code := range codes {
				sorts.Quicksort(hitLocs(idx.table[code]))
			}
		}(codes[lo:hi])
	}
	wg.Wait()

	return idx, nil
}

// Save writes the index in the binary format:
// magic, versions, seed length, #buckets, and per bucket the packed
// L-mer, the hit count and the descending hit list.
func (idx *Index) Save(file string) error {
	fh, err := os.Create(file)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(fh, BufferSize)

	err = binary.Write(w, be, Magic)
	if err != nil {
		return err
	}
	// actually, only 3 bytes used and the left 5 bytes is preserved.
	err = binary.Write(w, be, [8]uint8{MainVersion, MinorVersion, uint8(idx.seedLen)})
	if err != nil {
		return err
	}

	buf := make([]byte, 12)

	be.PutUint64(buf[:8], uint64(len(idx.table)))
	if _, err = w.Write(buf[:8]); err != nil {
		return err
	}

	for code, locs := range idx.table {
		be.PutUint64(buf[:8], code)
		be.PutUint32(buf[8:12], uint32(len(locs)))
		if _, err = w.Write(buf[:12]); err != nil {
			return err
		}
		for _, loc := range locs {
			be.PutUint32(buf[:4], loc)
			if _, err = w.Write(buf[:4]); err != nil {
				return err
			}
		}
	}

	if err = w.Flush(); err != nil {
		return err
	}
	return fh.Close()
}

// Load reads an index written by Save.
func Load(file string) (*Index, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	r := bufio.NewReaderSize(fh, BufferSize)

	buf := make([]byte, 12)

	// check the magic number
	n, err := io.ReadFull(r, buf[:8])
	if err != nil || n < 8 {
		return nil, ErrBrokenFile
	}
	same := true
	for i := 0; i < 8; i++ {
		if Magic[i] != buf[i] {
			same = false
			break
		}
	}
	if !same {
		return nil, ErrInvalidFileFormat
	}

	// check compatibility
	n, _ = io.ReadFull(r, buf[:8])
	if n < 8 {
		return nil, ErrBrokenFile
	}
	if MainVersion != buf[0] {
		return nil, ErrVersionMismatch
	}
	seedLen := int(buf[2])

	n, _ = io.ReadFull(r, buf[:8])
	if n < 8 {
		return nil, ErrBrokenFile
	}
	nBuckets := int(be.Uint64(buf[:8]))

	idx := &Index{
		seedLen: seedLen,
		table:   make(map[uint64][]uint32, nBuckets),
	}

	for i := 0; i < nBuckets; i++ {
		n, _ = io.ReadFull(r, buf[:12])
		if n < 12 {
			return nil, ErrBrokenFile
		}
		code := be.Uint64(buf[:8])
		nLocs := int(be.Uint32(buf[8:12]))
		locs := make([]uint32, nLocs)
		for j := 0; j < nLocs; j++ {
			n, _ = io.ReadFull(r, buf[:4])
			if n < 4 {
				return nil, ErrBrokenFile
			}
			locs[j] = be.Uint32(buf[:4])
		}
		idx.table[code] = locs
	}

	return idx, nil
}
