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
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/seal-bio/seal/seal/cmd/index"
	"github.com/seal-bio/seal/seal/cmd/sam"
	"github.com/shenwei356/bio/seq"
	"github.com/spf13/cobra"
)

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Align single-end reads against an index",
	Long: `Align single-end reads against an index

Input:
  1. An index directory built with 'seal index', given via -d/--index-dir.
  2. One or more plain or gzipped FASTQ/FASTA files with reads, given
     via positional arguments. Use - for stdin.

Alignment parameters:
  The flags --max-dist, --conf-diff, --num-seeds, --max-hits and
  --adaptive-conf-diff accept either a single value ("8") or a swept
  range ("4:12" or "4:12:2"). With ranges, the whole input is aligned
  once per parameter combination and one statistics line is printed
  per iteration. SAM output is only written for the first iteration.

  Alignment parameters can also be read from a TOML file via --params;
  flags given explicitly on the command line take precedence over the
  file.

Output:
  SAM to the file given via -o/--out-file, or to stdout with -o -.
  Use -o "" to suppress SAM output entirely when only the statistics
  table is wanted.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		files := args
		if len(files) < 1 {
			checkError(fmt.Errorf("read files needed"))
		}

		g, idx := loadIndexDir(cmd, opt)
		so := getSweepOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		var writer *sam.Writer
		if outFile != "" {
			var err error
			writer, err = sam.NewWriter(outFile, g, VERSION, strings.Join(os.Args, " "))
			checkError(errors.Wrap(err, outFile))
			defer func() {
				checkError(writer.Close())
			}()
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("aligning %d read file(s) with %d thread(s) ...", len(files), opt.NumCPUs)
		}

		checkError(RunSingleSweep(g, idx, files, so, opt.NumCPUs, writer, os.Stderr))
	},
}

func init() {
	RootCmd.AddCommand(singleCmd)

	singleCmd.Flags().StringP("index-dir", "d", "",
		formatFlagUsage(`Index directory created by "seal index".`))
	singleCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Output SAM file, with - for stdout and "" for no SAM output.`))

	addAlignmentFlags(singleCmd)

	singleCmd.SetUsageTemplate(usageTemplate("[flags] -d <index dir> [reads.fq.gz ...]"))
}

// addAlignmentFlags registers the flags shared by 'seal single' and
// 'seal paired'.
func addAlignmentFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("max-dist", "k", "8",
		formatFlagUsage(`Maximum edit distance of an acceptable alignment. Accepts a range like 4:12 or 4:12:2.`))
	cmd.Flags().StringP("conf-diff", "c", "2",
		formatFlagUsage(`Score gap below which a second candidate makes the result ambiguous. Accepts a range.`))
	cmd.Flags().StringP("num-seeds", "n", "25",
		formatFlagUsage(`Number of seeds to try per read. Accepts a range.`))
	cmd.Flags().StringP("max-hits", "H", "250",
		formatFlagUsage(`Seeds with more index hits than this are skipped as popular. Accepts a range.`))
	cmd.Flags().StringP("adaptive-conf-diff", "a", "4",
		formatFlagUsage(`Increase the confidence gap by one when more popular seeds than this were skipped. Accepts a range.`))

	cmd.Flags().IntP("min-spacing", "", 50,
		formatFlagUsage(`Minimum paired-end spacing, measured from start to start.`))
	cmd.Flags().IntP("max-spacing", "", 1000,
		formatFlagUsage(`Maximum paired-end spacing, measured from start to start.`))
	cmd.Flags().IntP("extra-score-limit", "", 5,
		formatFlagUsage(`Edit distance added to --max-dist to bound the combined score of a read pair.`))

	cmd.Flags().BoolP("explore-popular-seeds", "", false,
		formatFlagUsage(`Score the hits of popular seeds instead of skipping them.`))
	cmd.Flags().BoolP("stop-on-first-hit", "", false,
		formatFlagUsage(`Stop at the first candidate within the edit distance limit.`))
	cmd.Flags().BoolP("hamming", "", false,
		formatFlagUsage(`Score candidates with Hamming distance instead of edit distance.`))

	cmd.Flags().IntP("num-secondary", "", 0,
		formatFlagUsage(`Maximum number of secondary alignments to report per read.`))
	cmd.Flags().IntP("batch-size", "", 4096,
		formatFlagUsage(`Number of reads per batch handed to a worker.`))
	cmd.Flags().StringP("clipping", "", "back",
		formatFlagUsage(`Where to clip low-quality read ends, one of none/front/back/both.`))

	cmd.Flags().StringP("plot", "", "",
		formatFlagUsage(`Save a plot of the aligned percentage per sweep iteration to this image file.`))
	cmd.Flags().StringP("params", "", "",
		formatFlagUsage(`TOML file with alignment parameters. Explicit flags take precedence.`))
}

// getSweepOptions collects the alignment flags, overlaid with the
// --params file when one is given.
func getSweepOptions(cmd *cobra.Command) *SweepOptions {
	o := &SweepOptions{
		MaxDist:          getFlagRange(cmd, "max-dist"),
		ConfDiff:         getFlagRange(cmd, "conf-diff"),
		NumSeeds:         getFlagRange(cmd, "num-seeds"),
		MaxHits:          getFlagRange(cmd, "max-hits"),
		AdaptiveConfDiff: getFlagRange(cmd, "adaptive-conf-diff"),

		MinSpacing:      getFlagPositiveInt(cmd, "min-spacing"),
		MaxSpacing:      getFlagPositiveInt(cmd, "max-spacing"),
		ExtraScoreLimit: getFlagNonNegativeInt(cmd, "extra-score-limit"),

		ExplorePopularSeeds: getFlagBool(cmd, "explore-popular-seeds"),
		StopOnFirstHit:      getFlagBool(cmd, "stop-on-first-hit"),
		UseHamming:          getFlagBool(cmd, "hamming"),

		NumSecondary: getFlagNonNegativeInt(cmd, "num-secondary"),
		BatchSize:    getFlagPositiveInt(cmd, "batch-size"),
		Clipping:     getFlagClippingPolicy(cmd, "clipping"),

		PlotFile: getFlagString(cmd, "plot"),
	}

	if file := getFlagString(cmd, "params"); file != "" {
		cfg, err := loadParamsConfig(file)
		checkError(err)
		checkError(applyParamsConfig(cmd, cfg, o))
	}

	if o.MaxSpacing < o.MinSpacing {
		checkError(fmt.Errorf("--max-spacing (%d) should not be smaller than --min-spacing (%d)",
			o.MaxSpacing, o.MinSpacing))
	}
	return o
}

// loadIndexDir loads the genome store and the seed index from the
// directory given via -d/--index-dir.
func loadIndexDir(cmd *cobra.Command, opt *Options) (*genome.Genome, *index.Index) {
	dir := getFlagString(cmd, "index-dir")
	if dir == "" {
		checkError(fmt.Errorf("flag -d/--index-dir is needed"))
	}

	if opt.Verbose || opt.Log2File {
		log.Infof("loading index from %s ...", dir)
	}
	timeStart := time.Now()

	fileGenome, err := findIndexFile(dir, GenomeFileName)
	checkError(err)
	g, err := genome.Load(fileGenome)
	checkError(errors.Wrap(err, fileGenome))

	fileIndex, err := findIndexFile(dir, IndexFileName)
	checkError(err)
	idx, err := index.Load(fileIndex)
	checkError(errors.Wrap(err, fileIndex))

	if opt.Verbose || opt.Log2File {
		log.Infof("loaded %d pieces (%d bases) and %d seeds in %s",
			g.NumPieces(), g.GetCountOfBases(), idx.NumSeeds(), time.Since(timeStart))
	}
	return g, idx
}
