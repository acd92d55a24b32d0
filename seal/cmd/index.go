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
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/seal-bio/seal/seal/cmd/genome"
	"github.com/seal-bio/seal/seal/cmd/index"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the genome store and seed index from FASTA sequences",
	Long: `Build the genome store and seed index from FASTA sequences

Input:
  1. Input plain or gzipped FASTA files can be given via positional
     arguments,
  2. Or a directory containing sequence files via the flag -I/--in-dir,
     with multiple-level sub-directories allowed. A regular expression
     for matching sequence files is available via the flag -r/--file-regexp.

Every sequence becomes one reference piece, named by its FASTA ID.
All pieces share one coordinate space; every L-mer of every piece goes
into the seed index, excluding those containing non-ACGT bases.

Output:
  The output directory holds two files, the 2-bit packed genome store
  and the seed index. Both are loaded back by 'seal single' and
  'seal paired'.

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

		// ---------------------------------------------------------------
		// basic flags

		seedLen := getFlagPositiveInt(cmd, "seed-length")
		if seedLen < index.MinSeedLen || seedLen > index.MaxSeedLen {
			checkError(fmt.Errorf("the value of flag -l/--seed-length should be in range of [%d, %d]",
				index.MinSeedLen, index.MaxSeedLen))
		}

		outDir := getFlagString(cmd, "out-dir")
		force := getFlagBool(cmd, "force")
		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir is needed"))
		}
		outDir = filepath.Clean(outDir)

		inDir := getFlagString(cmd, "in-dir")
		reFileStr := getFlagString(cmd, "file-regexp")

		var files []string
		var err error
		if inDir != "" {
			if filepath.Clean(inDir) == outDir {
				checkError(fmt.Errorf("input and output paths should not be the same: %s", outDir))
			}
			reFile, err := regexp.Compile("(?i)" + reFileStr)
			if err != nil {
				checkError(errors.Wrapf(err, "invalid regular expression: %s", reFileStr))
			}
			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			checkError(err)
		} else {
			files = args
		}
		if len(files) < 1 {
			checkError(fmt.Errorf("FASTA files needed"))
		} else if opt.Verbose || opt.Log2File {
			log.Infof("%d input file(s) given", len(files))
		}

		makeOutDir(outDir, force, "out-dir", opt.Verbose)

		// ---------------------------------------------------------------
		// read the sequences

		if opt.Verbose || opt.Log2File {
			log.Infof("reading sequences ...")
		}

		g := genome.New(1 << 20)
		for _, file := range files {
			reader, err := fastx.NewReader(nil, file, "")
			checkError(errors.Wrap(err, file))
			var record *fastx.Record
			for {
				record, err = reader.Read()
				if err != nil {
					if err == io.EOF {
						break
					}
					checkError(errors.Wrap(err, file))
				}
				g.AddPiece(string(record.ID))
				g.AddBases(record.Seq.Seq)
			}
			reader.Close()
		}
		g.Finish()

		if opt.Verbose || opt.Log2File {
			log.Infof("%d pieces with %d bases in total", g.NumPieces(), g.GetCountOfBases())
			log.Infof("building seed index with seed length %d ...", seedLen)
		}

		// ---------------------------------------------------------------
		// build the seed index

		bopt := &index.BuildOptions{
			SeedLen: seedLen,
			NumCPUs: opt.NumCPUs,
		}

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if opt.Verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(g.GetCountOfBases()),
				mpb.PrependDecorators(
					decor.Name("scanned bases: ", decor.WC{W: len("scanned bases: "), C: decor.DindentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.AverageETA(decor.ET_STYLE_GO),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
			bopt.OnProgress = func(bases int) {
				bar.IncrBy(bases)
			}
		}

		idx, err := index.Build(g, bopt)
		checkError(err)

		if opt.Verbose {
			bar.SetTotal(int64(g.GetCountOfBases()), true)
			pbs.Wait()
		}

		// ---------------------------------------------------------------
		// save

		fileGenome := filepath.Join(outDir, GenomeFileName)
		checkError(errors.Wrap(g.Save(fileGenome), fileGenome))
		fileIndex := filepath.Join(outDir, IndexFileName)
		checkError(errors.Wrap(idx.Save(fileIndex), fileIndex))

		if opt.Verbose || opt.Log2File {
			log.Infof("finished building the index in %s with %d distinct seeds",
				time.Since(timeStart), idx.NumSeeds())
			log.Infof("index saved: %s", outDir)
		}
	},
}

func init() {
	RootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing FASTA files. Directory symlinks are followed.`))

	indexCmd.Flags().StringP("file-regexp", "r", `\.(f[a](st[a])?|fna)(.gz)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	indexCmd.Flags().IntP("seed-length", "l", index.DefaultSeedLen,
		formatFlagUsage(`Seed length.`))

	indexCmd.Flags().StringP("out-dir", "O", "",
		formatFlagUsage(`Output directory.`))

	indexCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existing output directory.`))

	indexCmd.SetUsageTemplate(usageTemplate("[flags] [genome.fasta ...]"))
}
