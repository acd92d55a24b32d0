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
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/seal-bio/seal/seal/cmd/index"
	"github.com/seal-bio/seal/seal/cmd/read"
	"github.com/seal-bio/seal/seal/cmd/sam"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Range is a swept parameter: every value from Start to End inclusive,
// Step apart.
type Range struct {
	Start, End, Step int
}

// parseRange accepts "n", "start:end" and "start:end:step".
func parseRange(s string) (Range, error) {
	parts := strings.Split(s, ":")
	var r Range
	var err error
	switch len(parts) {
	case 1:
		r.Start, err = strconv.Atoi(parts[0])
		r.End, r.Step = r.Start, 1
		return r, errors.Wrap(err, s)
	case 2, 3:
		if r.Start, err = strconv.Atoi(parts[0]); err != nil {
			return r, errors.Wrap(err, s)
		}
		if r.End, err = strconv.Atoi(parts[1]); err != nil {
			return r, errors.Wrap(err, s)
		}
		r.Step = 1
		if len(parts) == 3 {
			if r.Step, err = strconv.Atoi(parts[2]); err != nil {
				return r, errors.Wrap(err, s)
			}
		}
		if r.Step < 1 || r.End < r.Start {
			return r, fmt.Errorf("invalid range: %s", s)
		}
		return r, nil
	}
	return r, fmt.Errorf("invalid range: %s", s)
}

// Values expands the range.
func (r Range) Values() []int {
	vals := make([]int, 0, (r.End-r.Start)/r.Step+1)
	for v := r.Start; v <= r.End; v += r.Step {
		vals = append(vals, v)
	}
	return vals
}

// SweepOptions are the per-run knobs, some of them swept over ranges.
type SweepOptions struct {
	MaxDist          Range
	ConfDiff         Range
	NumSeeds         Range
	MaxHits          Range
	AdaptiveConfDiff Range

	MinSpacing      int
	MaxSpacing      int
	ExtraScoreLimit int

	ExplorePopularSeeds bool
	StopOnFirstHit      bool
	UseHamming          bool
	NumSecondary        int

	BatchSize int
	Clipping  read.ClippingPolicy

	PlotFile string
}

// iterations expands the sweep into one AlignerOptions per parameter
// combination, outermost dimension first.
func (o *SweepOptions) iterations() []AlignerOptions {
	var out []AlignerOptions
	for _, ad := range o.AdaptiveConfDiff.Values() {
		for _, ns := range o.NumSeeds.Values() {
			for _, md := range o.MaxDist.Values() {
				for _, mh := range o.MaxHits.Values() {
					for _, cd := range o.ConfDiff.Values() {
						out = append(out, AlignerOptions{
							MaxDist:                   md,
							ConfDiff:                  cd,
							NumSeeds:                  ns,
							MaxHits:                   mh,
							AdaptiveConfDiffThreshold: ad,
							ExplorePopularSeeds:       o.ExplorePopularSeeds,
							StopOnFirstHit:            o.StopOnFirstHit,
							UseHamming:                o.UseHamming,
							NumSecondary:              o.NumSecondary,
							MinSpacing:                o.MinSpacing,
							MaxSpacing:                o.MaxSpacing,
							ExtraScoreLimit:           o.ExtraScoreLimit,
						})
					}
				}
			}
		}
	}
	return out
}

// iterationStats accumulates per-iteration counters, merged once per
// worker under the driver's mutex.
type iterationStats struct {
	nReads    int64
	nSingle   int64
	nMulti    int64
	nCertain  int64
	nNotFound int64

	nLocationsScored int64
	scorerNanos      int64

	mapqs []float64

	elapsed time.Duration
}

func (s *iterationStats) record(res *SingleAlignmentResult) {
	s.nReads++
	switch res.Status {
	case SingleHit:
		s.nSingle++
	case MultipleHits:
		s.nMulti++
	case CertainHit:
		s.nCertain++
	default:
		s.nNotFound++
	}
	if res.Aligned() {
		s.mapqs = append(s.mapqs, float64(res.MAPQ))
	}
}

func (s *iterationStats) merge(o *iterationStats) {
	s.nReads += o.nReads
	s.nSingle += o.nSingle
	s.nMulti += o.nMulti
	s.nCertain += o.nCertain
	s.nNotFound += o.nNotFound
	s.nLocationsScored += o.nLocationsScored
	s.scorerNanos += o.scorerNanos
	s.mapqs = append(s.mapqs, o.mapqs...)
}

func (s *iterationStats) pctAligned() float64 {
	if s.nReads == 0 {
		return 0
	}
	return float64(s.nSingle+s.nMulti+s.nCertain) / float64(s.nReads) * 100
}

const statsHeader = "ConfDif MaxHits MaxDist MaxSeed  ConfAd   %Used %Unique  %Multi %!Found  Reads/s    MAPQ mean/sd"

// row formats one line of the sweep table.
func (s *iterationStats) row(opt AlignerOptions) string {
	n := float64(s.nReads)
	if n == 0 {
		n = 1
	}
	unique := float64(s.nSingle+s.nCertain) / n * 100
	multi := float64(s.nMulti) / n * 100
	notFound := float64(s.nNotFound) / n * 100

	readsPerSec := 0.0
	if s.elapsed > 0 {
		readsPerSec = float64(s.nReads) / s.elapsed.Seconds()
	}
	mean, sd := stat.MeanStdDev(s.mapqs, nil)
	if len(s.mapqs) < 2 {
		sd = 0
	}

	return fmt.Sprintf("%7d %7d %7d %7d %7d %7.2f %7.2f %7.2f %7.2f %8.0f %7.1f/%.1f",
		opt.ConfDiff, opt.MaxHits, opt.MaxDist, opt.NumSeeds, opt.AdaptiveConfDiffThreshold,
		s.pctAligned(), unique, multi, notFound, readsPerSec, mean, sd)
}

// RunSingleSweep aligns the input once per parameter combination and
// prints a stats line per iteration to tableOut. SAM output is only
// written during the first iteration.
func RunSingleSweep(g *genome.Genome, idx *index.Index, files []string,
	o *SweepOptions, threads int, out *sam.Writer, tableOut io.Writer) error {

	iters := o.iterations()
	fmt.Fprintf(tableOut, "%s\n", statsHeader)

	pctPerIter := make([]float64, 0, len(iters))
	for i, opt := range iters {
		w := out
		if i > 0 {
			w = nil
		}
		stats, err := runSingleIteration(g, idx, files, opt, o, threads, w)
		if err != nil {
			return err
		}
		fmt.Fprintln(tableOut, stats.row(opt))
		pctPerIter = append(pctPerIter, stats.pctAligned())
	}

	if o.PlotFile != "" {
		return plotSweep(o.PlotFile, pctPerIter)
	}
	return nil
}

// RunPairedSweep is RunSingleSweep for read pairs.
func RunPairedSweep(g *genome.Genome, idx *index.Index, file0, file1 string,
	o *SweepOptions, threads int, out *sam.Writer, tableOut io.Writer) error {

	iters := o.iterations()
	fmt.Fprintf(tableOut, "%s\n", statsHeader)

	pctPerIter := make([]float64, 0, len(iters))
	for i, opt := range iters {
		w := out
		if i > 0 {
			w = nil
		}
		stats, err := runPairedIteration(g, idx, file0, file1, opt, o, threads, w)
		if err != nil {
			return err
		}
		fmt.Fprintln(tableOut, stats.row(opt))
		pctPerIter = append(pctPerIter, stats.pctAligned())
	}

	if o.PlotFile != "" {
		return plotSweep(o.PlotFile, pctPerIter)
	}
	return nil
}

func runSingleIteration(g *genome.Genome, idx *index.Index, files []string,
	opt AlignerOptions, o *SweepOptions, threads int, out *sam.Writer) (*iterationStats, error) {

	stats := &iterationStats{}
	started := time.Now()

	for _, file := range files {
		sup := read.NewSupplier(file, o.BatchSize, o.Clipping)

		chOut := make(chan []byte, threads)
		done := make(chan int)
		go func() {
			for buf := range chOut {
				if out != nil {
					out.Write(buf)
				}
			}
			done <- 1
		}()

		var mu sync.Mutex
		var wg sync.WaitGroup
		for t := 0; t < threads; t++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				aligner := NewBaseAligner(g, idx, opt)
				var rb *recordBuilder
				if out != nil {
					rb = newRecordBuilder(g, opt.MaxDist)
				}
				local := &iterationStats{}

				for {
					batch := sup.Next()
					if batch == nil {
						break
					}
					var buf []byte
					for _, r := range batch.Reads {
						res := aligner.AlignRead(r)
						local.record(&res)
						if rb != nil {
							buf = rb.appendRecord(buf, r, &res, 0, "", 0, 0)
							for i := range aligner.Secondary() {
								sec := &aligner.Secondary()[i]
								if sec.Location == res.Location && sec.Direction == res.Direction {
									continue
								}
								buf = rb.appendRecord(buf, r, sec, sam.FlagSecondary, "", 0, 0)
							}
						}
					}
					if len(buf) > 0 {
						chOut <- buf
					}
					batch.Recycle()
				}

				local.nLocationsScored = aligner.NLocationsScored
				local.scorerNanos = aligner.ScorerNanos
				mu.Lock()
				stats.merge(local)
				mu.Unlock()
			}()
		}
		wg.Wait()
		close(chOut)
		<-done

		if err := sup.Err(); err != nil {
			return nil, err
		}
	}

	stats.elapsed = time.Since(started)
	return stats, nil
}

func runPairedIteration(g *genome.Genome, idx *index.Index, file0, file1 string,
	opt AlignerOptions, o *SweepOptions, threads int, out *sam.Writer) (*iterationStats, error) {

	stats := &iterationStats{}
	started := time.Now()

	var sup *read.PairedSupplier
	if file1 == "" {
		sup = read.NewInterleavedSupplier(file0, o.BatchSize, o.Clipping)
	} else {
		sup = read.NewPairedSupplier(file0, file1, o.BatchSize, o.Clipping)
	}

	chOut := make(chan []byte, threads)
	done := make(chan int)
	go func() {
		for buf := range chOut {
			if out != nil {
				out.Write(buf)
			}
		}
		done <- 1
	}()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			aligner := NewPairedAligner(g, idx, opt)
			var rb *recordBuilder
			if out != nil {
				rb = newRecordBuilder(g, opt.MaxDist)
			}
			local := &iterationStats{}

			for {
				batch := sup.Next()
				if batch == nil {
					break
				}
				var buf []byte
				for i := range batch.Reads0 {
					r0, r1 := batch.Reads0[i], batch.Reads1[i]
					res := aligner.AlignPair(r0, r1)
					local.record(&res.Results[0])
					local.record(&res.Results[1])
					if rb != nil {
						buf = appendPair(rb, buf, g, r0, r1, &res)
					}
				}
				if len(buf) > 0 {
					chOut <- buf
				}
				batch.Recycle()
			}

			local.nLocationsScored = aligner.Base().NLocationsScored
			local.scorerNanos = aligner.Base().ScorerNanos
			mu.Lock()
			stats.merge(local)
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(chOut)
	<-done

	if err := sup.Err(); err != nil {
		return nil, err
	}

	stats.elapsed = time.Since(started)
	return stats, nil
}

func appendPair(rb *recordBuilder, buf []byte, g *genome.Genome,
	r0, r1 *read.Read, res *PairedAlignmentResult) []byte {

	reads := [2]*read.Read{r0, r1}
	var refs [2]string
	var poss [2]int
	for end := 0; end < 2; end++ {
		if res.Results[end].Aligned() {
			if piece, _, ok := g.GetPieceAtLocation(res.Results[end].Location); ok {
				refs[end] = piece.Name
				poss[end] = int(res.Results[end].Location-piece.Beginning) + 1
			}
		}
	}

	for end := 0; end < 2; end++ {
		mate := 1 - end
		self, other := &res.Results[end], &res.Results[mate]
		flags := pairFlags(end, self, other)
		tlen := 0
		if refs[0] == refs[1] && refs[0] != "" {
			tlen = templateLen(self, other, reads[end].Len(), reads[mate].Len())
		}
		buf = rb.appendRecord(buf, reads[end], self, flags, refs[mate], poss[mate], tlen)
	}
	return buf
}

// plotSweep draws the per-iteration aligned percentage.
func plotSweep(file string, pct []float64) error {
	p := plot.New()
	p.Title.Text = "reads aligned per iteration"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "% aligned"

	pts := make(plotter.XYs, len(pct))
	for i, v := range pct {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(plotter.NewGrid(), line)
	return p.Save(6*vg.Inch, 4*vg.Inch, file)
}
