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

// Package sam formats and writes alignment records as SAM text,
// optionally gzip-compressed.
package sam

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/shenwei356/xopen"
)

// SAM FLAG bits.
const (
	FlagPaired       = 0x1
	FlagProperPair   = 0x2
	FlagUnmapped     = 0x4
	FlagMateUnmapped = 0x8
	FlagReverse      = 0x10
	FlagMateReverse  = 0x20
	FlagFirstOfPair  = 0x40
	FlagSecondOfPair = 0x80
	FlagSecondary    = 0x100
)

// Record is one alignment line. Pos and MatePos are 1-based; zero
// means unknown. Seq and Qual are output-ready (forward strand bytes,
// ASCII Phred+33).
type Record struct {
	Name        []byte
	Flag        int
	Ref         string
	Pos         int
	MapQ        int
	Cigar       []byte
	MateRef     string
	MatePos     int
	TemplateLen int
	Seq         []byte
	Qual        []byte
}

// Writer writes a SAM header followed by records. It is not
// goroutine-safe; callers serialize through one collector.
type Writer struct {
	w   *xopen.Writer
	buf []byte
}

// NewWriter creates the output file (gzip when the name ends in .gz)
// and writes the @HD, @SQ and @PG header lines from the genome's
// piece table.
func NewWriter(file string, g *genome.Genome, version, commandLine string) (*Writer, error) {
	w, err := xopen.Wopen(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	sw := &Writer{w: w, buf: make([]byte, 0, 4096)}

	fmt.Fprintf(w, "@HD\tVN:1.6\tSO:unsorted\n")
	pieces := g.Pieces()
	total := g.GetCountOfBases()
	for i, p := range pieces {
		end := total
		if i < len(pieces)-1 {
			end = pieces[i+1].Beginning
		}
		fmt.Fprintf(w, "@SQ\tSN:%s\tLN:%d\n", p.Name, end-p.Beginning)
	}
	fmt.Fprintf(w, "@PG\tID:%s\tPN:seal\tVN:%s\tCL:%s\n", uuid.New().String(), version, commandLine)
	return sw, nil
}

// WriteRecord writes one alignment line.
func (sw *Writer) WriteRecord(rec *Record) error {
	sw.buf = AppendRecord(sw.buf[:0], rec)
	_, err := sw.w.Write(sw.buf)
	return err
}

// Write writes pre-formatted record lines, for callers that format in
// worker goroutines and funnel the bytes through one collector.
func (sw *Writer) Write(p []byte) (int, error) {
	return sw.w.Write(p)
}

// AppendRecord appends the tab-separated SAM line for rec to dst.
func AppendRecord(dst []byte, rec *Record) []byte {
	b := dst

	b = append(b, rec.Name...)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(rec.Flag), 10)
	b = append(b, '\t')
	b = appendOrStar(b, rec.Ref)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(rec.Pos), 10)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(rec.MapQ), 10)
	b = append(b, '\t')
	if len(rec.Cigar) == 0 {
		b = append(b, '*')
	} else {
		b = append(b, rec.Cigar...)
	}
	b = append(b, '\t')
	if rec.MateRef == rec.Ref && rec.MateRef != "" {
		b = append(b, '=')
	} else {
		b = appendOrStar(b, rec.MateRef)
	}
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(rec.MatePos), 10)
	b = append(b, '\t')
	b = strconv.AppendInt(b, int64(rec.TemplateLen), 10)
	b = append(b, '\t')
	b = append(b, rec.Seq...)
	b = append(b, '\t')
	if len(rec.Qual) == 0 {
		b = append(b, '*')
	} else {
		b = append(b, rec.Qual...)
	}
	b = append(b, '\n')
	return b
}

// Close flushes and closes the output.
func (sw *Writer) Close() error {
	return sw.w.Close()
}

func appendOrStar(b []byte, s string) []byte {
	if s == "" {
		return append(b, '*')
	}
	return append(b, s...)
}
