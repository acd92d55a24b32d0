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

package sam

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seal-bio/seal/seal/cmd/genome"
)

func TestAppendRecord(t *testing.T) {
	rec := &Record{
		Name:  []byte("read1"),
		Flag:  FlagReverse,
		Ref:   "chr1",
		Pos:   42,
		MapQ:  60,
		Cigar: []byte("10M"),
		Seq:   []byte("ACGTACGTAC"),
		Qual:  []byte("IIIIIIIIII"),
	}
	line := string(AppendRecord(nil, rec))
	want := "read1\t16\tchr1\t42\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n"
	if line != want {
		t.Errorf("expected:\n%sgot:\n%s", want, line)
	}
}

func TestAppendRecordUnmapped(t *testing.T) {
	rec := &Record{
		Name: []byte("read2"),
		Flag: FlagUnmapped,
		Seq:  []byte("ACGT"),
	}
	line := string(AppendRecord(nil, rec))
	want := "read2\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\t*\n"
	if line != want {
		t.Errorf("expected:\n%sgot:\n%s", want, line)
	}
}

func TestAppendRecordMateOnSameRef(t *testing.T) {
	rec := &Record{
		Name:        []byte("read3"),
		Flag:        FlagPaired | FlagProperPair | FlagFirstOfPair,
		Ref:         "chr2",
		Pos:         100,
		MapQ:        70,
		Cigar:       []byte("8M"),
		MateRef:     "chr2",
		MatePos:     300,
		TemplateLen: 208,
		Seq:         []byte("ACGTACGT"),
		Qual:        []byte("IIIIIIII"),
	}
	line := string(AppendRecord(nil, rec))
	fields := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	if len(fields) != 11 {
		t.Fatalf("expected 11 fields, got %d", len(fields))
	}
	if fields[6] != "=" {
		t.Errorf("expected = for the mate reference, got %s", fields[6])
	}
	if fields[7] != "300" || fields[8] != "208" {
		t.Errorf("mate position or template length wrong: %v", fields[7:9])
	}

	// a mate on another reference is written by name
	rec.MateRef = "chr3"
	line = string(AppendRecord(nil, rec))
	fields = strings.Split(line, "\t")
	if fields[6] != "chr3" {
		t.Errorf("expected chr3, got %s", fields[6])
	}
}

func TestWriterHeader(t *testing.T) {
	g := genome.New(64)
	g.AddPiece("chrA")
	g.AddBases([]byte("ACGTACGTACGT"))
	g.AddPiece("chrB")
	g.AddBases([]byte("GGGGCCCC"))
	g.Finish()

	file := filepath.Join(t.TempDir(), "out.sam")
	w, err := NewWriter(file, g, "0.1.0", "seal single -d idx reads.fq")
	if err != nil {
		t.Fatal(err)
	}
	if err = w.WriteRecord(&Record{Name: []byte("r"), Flag: FlagUnmapped, Seq: []byte("AC")}); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "@HD\tVN:1.6") {
		t.Errorf("bad @HD line: %s", lines[0])
	}
	if lines[1] != "@SQ\tSN:chrA\tLN:12" {
		t.Errorf("bad @SQ line: %s", lines[1])
	}
	if lines[2] != "@SQ\tSN:chrB\tLN:8" {
		t.Errorf("bad @SQ line: %s", lines[2])
	}
	if !strings.HasPrefix(lines[3], "@PG\tID:") ||
		!strings.Contains(lines[3], "\tPN:seal\t") ||
		!strings.Contains(lines[3], "\tCL:seal single") {
		t.Errorf("bad @PG line: %s", lines[3])
	}
	if !strings.HasPrefix(lines[4], "r\t4\t") {
		t.Errorf("bad record line: %s", lines[4])
	}
}
