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

package genome

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"runtime"

	"github.com/klauspost/pgzip"
	"github.com/rdleal/intervalst/interval"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'.', 's', 'e', 'a', 'l', 'g', 'n', 'm'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// BufferSize is size of reading and writing buffer
var BufferSize = 65536

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("genome data: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("genome data: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("genome data: version mismatch")

// InvalidLocation is the sentinel for "no location".
const InvalidLocation uint32 = 0xffffffff

// Piece is a named contiguous region of the reference, conventionally
// a chromosome. Beginning is its absolute offset in the concatenated
// base array.
type Piece struct {
	Name      string
	Beginning uint32
}

// Genome is an immutable, process-lifetime reference: a contiguous
// array of base codes (A/C/G/T/N) and an ordered list of pieces.
// Locations are absolute offsets into the array.
type Genome struct {
	bases  []byte
	pieces []Piece

	// maps a location to the index of the piece containing it
	tree *interval.SearchTree[int, uint32]
}

// New creates an empty genome with the given base capacity.
func New(capacity int) *Genome {
	return &Genome{
		bases:  make([]byte, 0, capacity),
		pieces: make([]Piece, 0, 64),
	}
}

// AddPiece appends a new piece beginning at the current end of the
// base array. Sequence data is added afterwards with AddBases.
func (g *Genome) AddPiece(name string) {
	g.pieces = append(g.pieces, Piece{Name: name, Beginning: uint32(len(g.bases))})
}

// AddBases appends bases to the current piece.
// Bases other than A/C/G/T are stored as N.
func (g *Genome) AddBases(s []byte) {
	for _, b := range s {
		g.bases = append(g.bases, baseNormTable[b])
	}
}

// Finish builds the piece lookup structure. It must be called once
// after the last AddPiece/AddBases and before any lookup.
func (g *Genome) Finish() {
	cmpFn := func(x, y uint32) int {
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
		return 0
	}
	t := interval.NewSearchTree[int, uint32](cmpFn)
	n := uint32(len(g.bases))
	for i, p := range g.pieces {
		end := n
		if i < len(g.pieces)-1 {
			end = g.pieces[i+1].Beginning
		}
		if end == p.Beginning {
			continue
		}
		t.Insert(p.Beginning, end, i)
	}
	g.tree = t
}

// GetCountOfBases returns the number of bases of all pieces.
func (g *Genome) GetCountOfBases() uint32 {
	return uint32(len(g.bases))
}

// NumPieces returns the number of pieces.
func (g *Genome) NumPieces() int {
	return len(g.pieces)
}

// Pieces returns the ordered piece list.
func (g *Genome) Pieces() []Piece {
	return g.pieces
}

// GetSubstring returns length bases starting at location,
// or nil if the window would cross the end of the base array.
// The returned slice borrows the genome's storage.
func (g *Genome) GetSubstring(location uint32, length int) []byte {
	if int(location)+length > len(g.bases) {
		return nil
	}
	return g.bases[location : int(location)+length]
}

// GetPieceAtLocation returns the piece containing the location and its
// index in the piece list.
func (g *Genome) GetPieceAtLocation(location uint32) (*Piece, int, bool) {
	if int(location) >= len(g.bases) {
		return nil, -1, false
	}
	i, ok := g.tree.AnyIntersection(location, location+1)
	if !ok {
		return nil, -1, false
	}
	// the query can also touch a neighbouring piece that ends at, or
	// begins right after, the location; settle on the last piece that
	// begins at or before it
	for i < len(g.pieces)-1 && g.pieces[i+1].Beginning <= location {
		i++
	}
	for i > 0 && g.pieces[i].Beginning > location {
		i--
	}
	return &g.pieces[i], i, true
}

// PieceEnd returns the absolute offset one past the last base of the
// piece containing the location, i.e. the beginning of the next piece
// or the end of the base array.
func (g *Genome) PieceEnd(location uint32) uint32 {
	_, i, ok := g.GetPieceAtLocation(location)
	if !ok {
		return uint32(len(g.bases))
	}
	if i < len(g.pieces)-1 {
		return g.pieces[i+1].Beginning
	}
	return uint32(len(g.bases))
}

// Save writes the genome in the binary format:
// magic, versions, then a gzip stream holding #bases, #pieces,
// the piece table, 2bit-packed bases, and the N exception list.
func (g *Genome) Save(file string) error {
	fh, err := os.Create(file)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(fh, BufferSize)

	err = binary.Write(bw, be, Magic)
	if err != nil {
		return err
	}
	// actually, only 2 bytes used and the left 6 bytes is preserved.
	err = binary.Write(bw, be, [8]uint8{MainVersion, MinorVersion})
	if err != nil {
		return err
	}

	w := pgzip.NewWriter(bw)
	w.SetConcurrency(1<<20, runtime.NumCPU())

	buf := make([]byte, 8)

	be.PutUint32(buf[:4], uint32(len(g.bases)))
	be.PutUint32(buf[4:8], uint32(len(g.pieces)))
	if _, err = w.Write(buf[:8]); err != nil {
		return err
	}

	for _, p := range g.pieces {
		be.PutUint16(buf[:2], uint16(len(p.Name)))
		if _, err = w.Write(buf[:2]); err != nil {
			return err
		}
		if _, err = w.Write([]byte(p.Name)); err != nil {
			return err
		}
		be.PutUint32(buf[:4], p.Beginning)
		if _, err = w.Write(buf[:4]); err != nil {
			return err
		}
	}

	// 2bit-packed bases, N stored as A with its location recorded below
	b2 := Seq2TwoBit(g.bases)
	if _, err = w.Write(b2); err != nil {
		return err
	}

	// N exception list, ascending
	var nN uint32
	for _, b := range g.bases {
		if b == 'N' {
			nN++
		}
	}
	be.PutUint32(buf[:4], nN)
	if _, err = w.Write(buf[:4]); err != nil {
		return err
	}
	for i, b := range g.bases {
		if b == 'N' {
			be.PutUint32(buf[:4], uint32(i))
			if _, err = w.Write(buf[:4]); err != nil {
				return err
			}
		}
	}

	if err = w.Close(); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	return fh.Close()
}

// Load reads a genome written by Save and builds the piece lookup.
func Load(file string) (*Genome, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	br := bufio.NewReaderSize(fh, BufferSize)

	buf := make([]byte, 1024)

	// check the magic number
	n, err := io.ReadFull(br, buf[:8])
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
	n, _ = io.ReadFull(br, buf[:8])
	if n < 8 {
		return nil, ErrBrokenFile
	}
	if MainVersion != buf[0] {
		return nil, ErrVersionMismatch
	}

	r, err := pgzip.NewReader(br)
	if err != nil {
		return nil, ErrBrokenFile
	}
	defer r.Close()

	n, _ = io.ReadFull(r, buf[:8])
	if n < 8 {
		return nil, ErrBrokenFile
	}
	nBases := int(be.Uint32(buf[:4]))
	nPieces := int(be.Uint32(buf[4:8]))

	g := New(nBases)

	for i := 0; i < nPieces; i++ {
		n, _ = io.ReadFull(r, buf[:2])
		if n < 2 {
			return nil, ErrBrokenFile
		}
		nameLen := int(be.Uint16(buf[:2]))
		n, _ = io.ReadFull(r, buf[:nameLen])
		if n < nameLen {
			return nil, ErrBrokenFile
		}
		name := string(buf[:nameLen])
		n, _ = io.ReadFull(r, buf[:4])
		if n < 4 {
			return nil, ErrBrokenFile
		}
		g.pieces = append(g.pieces, Piece{Name: name, Beginning: be.Uint32(buf[:4])})
	}

	nBytes := (nBases + 3) >> 2
	b2 := make([]byte, nBytes)
	n, _ = io.ReadFull(r, b2)
	if n < nBytes {
		return nil, ErrBrokenFile
	}
	g.bases = TwoBit2Seq(b2, nBases)

	n, _ = io.ReadFull(r, buf[:4])
	if n < 4 {
		return nil, ErrBrokenFile
	}
	nN := int(be.Uint32(buf[:4]))
	for i := 0; i < nN; i++ {
		n, _ = io.ReadFull(r, buf[:4])
		if n < 4 {
			return nil, ErrBrokenFile
		}
		g.bases[be.Uint32(buf[:4])] = 'N'
	}

	g.Finish()
	return g, nil
}

var base2bit = [256]uint8{
	'A': 0, 'C': 1, 'G': 2, 'T': 3,
	'a': 0, 'c': 1, 'g': 2, 't': 3,
}

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// baseNormTable maps raw input bytes to the canonical A/C/G/T/N alphabet.
var baseNormTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 'N'
	}
	t['A'], t['C'], t['G'], t['T'] = 'A', 'C', 'G', 'T'
	t['a'], t['c'], t['g'], t['t'] = 'A', 'C', 'G', 'T'
	return t
}()

// Seq2TwoBit converts a DNA sequence to 2bit-packed sequence.
// Non-ACGT bases are packed as A.
func Seq2TwoBit(s []byte) []byte {
	n := len(s) >> 2
	m := len(s) & 3

	codes := make([]byte, 0, n+1)

	var j int
	for i := 0; i < n; i++ {
		j = i << 2
		codes = append(codes, base2bit[s[j]]<<6+base2bit[s[j+1]]<<4+base2bit[s[j+2]]<<2+base2bit[s[j+3]])
	}

	if m == 0 {
		return codes
	}

	j = n << 2
	switch m {
	case 3:
		codes = append(codes, base2bit[s[j]]<<6+base2bit[s[j+1]]<<4+base2bit[s[j+2]]<<2)
	case 2:
		codes = append(codes, base2bit[s[j]]<<6+base2bit[s[j+1]]<<4)
	case 1:
		codes = append(codes, base2bit[s[j]]<<6)
	}

	return codes
}

// TwoBit2Seq converts a 2bit-packed sequence to DNA.
func TwoBit2Seq(b2 []byte, bases int) []byte {
	s := make([]byte, bases)
	n := bases >> 2
	m := bases & 3
	var b byte
	var j int
	for i := 0; i < n; i++ {
		b = b2[i]
		j = i << 2

		s[j+3] = bit2base[b&3]
		b >>= 2
		s[j+2] = bit2base[b&3]
		b >>= 2
		s[j+1] = bit2base[b&3]
		b >>= 2
		s[j] = bit2base[b&3]
	}
	if m == 0 {
		return s
	}

	b = b2[n]
	j = n << 2
	switch m {
	case 1:
		s[j] = bit2base[b>>6&3]
	case 2:
		s[j] = bit2base[b>>6&3]
		s[j+1] = bit2base[b>>4&3]
	case 3:
		s[j] = bit2base[b>>6&3]
		s[j+1] = bit2base[b>>4&3]
		s[j+2] = bit2base[b>>2&3]
	}

	return s
}
