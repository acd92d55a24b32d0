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
	"github.com/seal-bio/seal/seal/cmd/sam"
	"github.com/shenwei356/bio/seq"
	"github.com/spf13/cobra"
)

var pairedCmd = &cobra.Command{
	Use:   "paired",
	Short: "Align paired-end reads against an index",
	Long: `Align paired-end reads against an index

Input:
  1. An index directory built with 'seal index', given via -d/--index-dir.
  2. Two plain or gzipped FASTQ/FASTA files with the two read ends as
     positional arguments, mates matched up by record order. Or a
     single interleaved file, where records alternate between the two
     ends.

Pairs are placed together: for every candidate location of one end,
locations of the other end within --min-spacing and --max-spacing are
scored, and the pair with the smallest combined edit distance wins.
A pair in which either read is shorter than 50 bases after clipping, or
has more Ns than --max-dist, falls back to independent single-end
alignment. A pair with no placement inside the spacing window is
reported unaligned.

Alignment parameters:
  Same as 'seal single', including swept ranges and --params files.

Output:
  SAM to the file given via -o/--out-file, or to stdout with -o -.

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

		var file0, file1 string
		switch len(args) {
		case 1:
			file0 = args[0]
		case 2:
			file0, file1 = args[0], args[1]
		default:
			checkError(fmt.Errorf("two read files, or one interleaved file, needed"))
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
			if file1 == "" {
				log.Infof("aligning interleaved pairs from %s with %d thread(s) ...", file0, opt.NumCPUs)
			} else {
				log.Infof("aligning pairs from %s and %s with %d thread(s) ...", file0, file1, opt.NumCPUs)
			}
		}

		checkError(RunPairedSweep(g, idx, file0, file1, so, opt.NumCPUs, writer, os.Stderr))
	},
}

func init() {
	RootCmd.AddCommand(pairedCmd)

	pairedCmd.Flags().StringP("index-dir", "d", "",
		formatFlagUsage(`Index directory created by "seal index".`))
	pairedCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Output SAM file, with - for stdout and "" for no SAM output.`))

	addAlignmentFlags(pairedCmd)

	pairedCmd.SetUsageTemplate(usageTemplate("[flags] -d <index dir> <reads_1.fq.gz> [reads_2.fq.gz]"))
}
