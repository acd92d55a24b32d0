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
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// paramsConfig mirrors the alignment flags of 'seal single' and
// 'seal paired'. Swept parameters keep their "start:end:step" string
// form. Fields left out of the file keep the flag value.
type paramsConfig struct {
	MaxDist          string `toml:"max-dist"`
	ConfDiff         string `toml:"conf-diff"`
	NumSeeds         string `toml:"num-seeds"`
	MaxHits          string `toml:"max-hits"`
	AdaptiveConfDiff string `toml:"adaptive-conf-diff"`

	MinSpacing      *int `toml:"min-spacing"`
	MaxSpacing      *int `toml:"max-spacing"`
	ExtraScoreLimit *int `toml:"extra-score-limit"`

	ExplorePopularSeeds *bool `toml:"explore-popular-seeds"`
	StopOnFirstHit      *bool `toml:"stop-on-first-hit"`
	Hamming             *bool `toml:"hamming"`

	NumSecondary *int   `toml:"num-secondary"`
	BatchSize    *int   `toml:"batch-size"`
	Clipping     string `toml:"clipping"`
}

func loadParamsConfig(file string) (*paramsConfig, error) {
	path, err := homedir.Expand(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	cfg := &paramsConfig{}
	if err = toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// applyParamsConfig overlays file values onto o, skipping every flag
// the user set explicitly on the command line.
func applyParamsConfig(cmd *cobra.Command, cfg *paramsConfig, o *SweepOptions) error {
	changed := cmd.Flags().Changed

	setRange := func(flag, value string, dst *Range) error {
		if value == "" || changed(flag) {
			return nil
		}
		r, err := parseRange(value)
		if err != nil {
			return errors.Wrapf(err, "params file: %s", flag)
		}
		*dst = r
		return nil
	}
	if err := setRange("max-dist", cfg.MaxDist, &o.MaxDist); err != nil {
		return err
	}
	if err := setRange("conf-diff", cfg.ConfDiff, &o.ConfDiff); err != nil {
		return err
	}
	if err := setRange("num-seeds", cfg.NumSeeds, &o.NumSeeds); err != nil {
		return err
	}
	if err := setRange("max-hits", cfg.MaxHits, &o.MaxHits); err != nil {
		return err
	}
	if err := setRange("adaptive-conf-diff", cfg.AdaptiveConfDiff, &o.AdaptiveConfDiff); err != nil {
		return err
	}

	setInt := func(flag string, value *int, dst *int) {
		if value != nil && !changed(flag) {
			*dst = *value
		}
	}
	setInt("min-spacing", cfg.MinSpacing, &o.MinSpacing)
	setInt("max-spacing", cfg.MaxSpacing, &o.MaxSpacing)
	setInt("extra-score-limit", cfg.ExtraScoreLimit, &o.ExtraScoreLimit)
	setInt("num-secondary", cfg.NumSecondary, &o.NumSecondary)
	setInt("batch-size", cfg.BatchSize, &o.BatchSize)

	setBool := func(flag string, value *bool, dst *bool) {
		if value != nil && !changed(flag) {
			*dst = *value
		}
	}
	setBool("explore-popular-seeds", cfg.ExplorePopularSeeds, &o.ExplorePopularSeeds)
	setBool("stop-on-first-hit", cfg.StopOnFirstHit, &o.StopOnFirstHit)
	setBool("hamming", cfg.Hamming, &o.UseHamming)

	if cfg.Clipping != "" && !changed("clipping") {
		p, err := parseClippingPolicy(cfg.Clipping)
		if err != nil {
			return errors.Wrap(err, "params file: clipping")
		}
		o.Clipping = p
	}
	return nil
}
