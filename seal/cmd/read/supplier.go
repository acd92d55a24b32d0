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

package read

import (
	"fmt"
	"io"
	"sync"

	"github.com/exascience/pargo/parallel"
	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
)

// DefaultBatchSize is the number of reads per batch handed to a worker.
var DefaultBatchSize = 4096

// Batch is a group of reads handed to one worker.
// Call Recycle after all reads of the batch are processed.
type Batch struct {
	Reads []*Read
}

var poolBatch = &sync.Pool{New: func() interface{} {
	return &Batch{Reads: make([]*Read, 0, DefaultBatchSize)}
}}

// Recycle returns the batch and its reads to their pools.
func (b *Batch) Recycle() {
	for _, r := range b.Reads {
		RecycleRead(r)
	}
	b.Reads = b.Reads[:0]
	poolBatch.Put(b)
}

// PairBatch is a group of read pairs handed to one worker.
type PairBatch struct {
	Reads0 []*Read
	Reads1 []*Read
}

var poolPairBatch = &sync.Pool{New: func() interface{} {
	return &PairBatch{
		Reads0: make([]*Read, 0, DefaultBatchSize),
		Reads1: make([]*Read, 0, DefaultBatchSize),
	}
}}

// Recycle returns the batch and its reads to their pools.
func (b *PairBatch) Recycle() {
	for _, r := range b.Reads0 {
		RecycleRead(r)
	}
	for _, r := range b.Reads1 {
		RecycleRead(r)
	}
	b.Reads0 = b.Reads0[:0]
	b.Reads1 = b.Reads1[:0]
	poolPairBatch.Put(b)
}

// Supplier streams batches of single-end reads from a FASTA/FASTQ
// file, optionally gzip-compressed.
type Supplier struct {
	ch  chan *Batch
	err error
}

// NewSupplier opens the file and starts streaming batches in the
// background. The channel is buffered so parsing runs ahead of
// alignment.
func NewSupplier(file string, batchSize int, policy ClippingPolicy) *Supplier {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	seq.ValidateSeq = false

	s := &Supplier{ch: make(chan *Batch, 4)}
	go func() {
		defer close(s.ch)

		reader, err := fastx.NewReader(nil, file, "")
		if err != nil {
			s.err = errors.Wrap(err, file)
			return
		}
		defer reader.Close()

		var record *fastx.Record
		batch := poolBatch.Get().(*Batch)
		for {
			record, err = reader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				s.err = errors.Wrap(err, file)
				break
			}

			r := PoolRead.Get().(*Read)
			r.Set(record.ID, record.Seq.Seq, record.Seq.Qual, policy)
			batch.Reads = append(batch.Reads, r)

			if len(batch.Reads) == batchSize {
				s.ch <- batch
				batch = poolBatch.Get().(*Batch)
			}
		}
		if len(batch.Reads) > 0 {
			s.ch <- batch
		} else {
			batch.Recycle()
		}
	}()
	return s
}

// Next returns the next batch, or nil at end of stream.
func (s *Supplier) Next() *Batch {
	return <-s.ch
}

// Err reports the first error hit while reading.
// Valid after Next has returned nil.
func (s *Supplier) Err() error {
	return s.err
}

// PairedSupplier streams batches of read pairs, either from two
// parallel files or from one interleaved file.
type PairedSupplier struct {
	ch  chan *PairBatch
	err error
}

// NewPairedSupplier opens both files and streams zipped batches.
// The two files are parsed concurrently.
func NewPairedSupplier(file0, file1 string, batchSize int, policy ClippingPolicy) *PairedSupplier {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	seq.ValidateSeq = false

	s := &PairedSupplier{ch: make(chan *PairBatch, 4)}
	go func() {
		defer close(s.ch)

		reader0, err := fastx.NewReader(nil, file0, "")
		if err != nil {
			s.err = errors.Wrap(err, file0)
			return
		}
		defer reader0.Close()
		reader1, err := fastx.NewReader(nil, file1, "")
		if err != nil {
			s.err = errors.Wrap(err, file1)
			return
		}
		defer reader1.Close()

		var done bool
		for !done {
			batch := poolPairBatch.Get().(*PairBatch)

			var err0, err1 error
			parallel.Do(
				func() {
					batch.Reads0, err0 = fillReads(reader0, batch.Reads0, batchSize, policy)
				},
				func() {
					batch.Reads1, err1 = fillReads(reader1, batch.Reads1, batchSize, policy)
				},
			)
			if err0 != nil {
				s.err = errors.Wrap(err0, file0)
				batch.Recycle()
				return
			}
			if err1 != nil {
				s.err = errors.Wrap(err1, file1)
				batch.Recycle()
				return
			}

			if len(batch.Reads0) != len(batch.Reads1) {
				s.err = fmt.Errorf("paired files have unequal read counts: %s, %s", file0, file1)
				batch.Recycle()
				return
			}
			if len(batch.Reads0) < batchSize {
				done = true
			}
			if len(batch.Reads0) == 0 {
				batch.Recycle()
				break
			}
			s.ch <- batch
		}
	}()
	return s
}

// NewInterleavedSupplier streams pairs from one file holding mates in
// alternating order.
func NewInterleavedSupplier(file string, batchSize int, policy ClippingPolicy) *PairedSupplier {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	seq.ValidateSeq = false

	s := &PairedSupplier{ch: make(chan *PairBatch, 4)}
	go func() {
		defer close(s.ch)

		reader, err := fastx.NewReader(nil, file, "")
		if err != nil {
			s.err = errors.Wrap(err, file)
			return
		}
		defer reader.Close()

		var record *fastx.Record
		batch := poolPairBatch.Get().(*PairBatch)
		var isSecond bool
		for {
			record, err = reader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				s.err = errors.Wrap(err, file)
				break
			}

			r := PoolRead.Get().(*Read)
			r.Set(record.ID, record.Seq.Seq, record.Seq.Qual, policy)
			if isSecond {
				batch.Reads1 = append(batch.Reads1, r)
			} else {
				batch.Reads0 = append(batch.Reads0, r)
			}
			isSecond = !isSecond

			if len(batch.Reads1) == batchSize {
				s.ch <- batch
				batch = poolPairBatch.Get().(*PairBatch)
			}
		}
		if isSecond {
			s.err = fmt.Errorf("interleaved file has an odd number of reads: %s", file)
		}
		if len(batch.Reads1) > 0 && len(batch.Reads0) == len(batch.Reads1) {
			s.ch <- batch
		} else {
			batch.Recycle()
		}
	}()
	return s
}

// Next returns the next batch, or nil at end of stream.
func (s *PairedSupplier) Next() *PairBatch {
	return <-s.ch
}

// Err reports the first error hit while reading.
// Valid after Next has returned nil.
func (s *PairedSupplier) Err() error {
	return s.err
}

func fillReads(reader *fastx.Reader, dst []*Read, n int, policy ClippingPolicy) ([]*Read, error) {
	var record *fastx.Record
	var err error
	for len(dst) < n {
		record, err = reader.Read()
		if err != nil {
			if err == io.EOF {
				return dst, nil
			}
			return dst, err
		}
		r := PoolRead.Get().(*Read)
		r.Set(record.ID, record.Seq.Seq, record.Seq.Qual, policy)
		dst = append(dst, r)
	}
	return dst, nil
}
