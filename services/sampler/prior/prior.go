// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prior loads count-based priors for the universal and inheritance
// components and exposes Dirichlet pseudo-count vectors per feature.
//
// A prior table is one of two closed variants: uniform (a flat unit vector
// per feature) or counts (per-feature, per-state pseudo-counts loaded from
// file and multiplied by a scale factor). Scaled counts sit on top of a
// unit base so every admissible state keeps positive Dirichlet mass even
// when its observed count is zero.
package prior

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Anaphory/contact-zones/services/sampler/data"
)

// Kind tags the prior variant. The variant set is closed: uniform or
// counts.
type Kind string

const (
	// KindUniform is a flat unit pseudo-count vector per feature.
	KindUniform Kind = "uniform"

	// KindCounts is a file-loaded, scaled pseudo-count vector per feature.
	KindCounts Kind = "counts"
)

// Table exposes Dirichlet pseudo-count vectors aligned to each feature's
// admissible state order.
//
// Thread Safety: Safe for concurrent use after load (immutable).
type Table struct {
	kind Kind

	// params[f] is the Dirichlet parameter vector of feature f.
	params [][]float64
}

// Uniform returns the uniform prior variant: one unit of pseudo-count per
// admissible state of every feature.
func Uniform(table *data.FeatureTable) *Table {
	params := make([][]float64, table.NFeatures())
	for f := range params {
		params[f] = make([]float64, table.NStates(f))
		for s := range params[f] {
			params[f][s] = 1.0
		}
	}
	return &Table{kind: KindUniform, params: params}
}

// LoadCounts reads a pseudo-count file and returns the counts variant.
//
// The file is a CSV with header feature,state,count. Counts are
// multiplied by scaleCounts and added to a unit base. Every feature of the
// feature table must appear in the file; states must come from the
// feature's admissible set.
//
// Inputs:
//   - path: Path to the counts CSV.
//   - scaleCounts: Positive multiplier applied to every count.
//   - table: Feature table defining features and state order.
//
// Outputs:
//   - *Table: Counts prior aligned to the feature table.
//   - error: *data.FormatError on malformed rows, unknown features or
//     states, negative counts, or features absent from the file.
func LoadCounts(path string, scaleCounts float64, table *data.FeatureTable) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prior counts file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, &data.FormatError{Path: path, Line: 1, Msg: fmt.Sprintf("missing header: %v", err)}
	}
	if len(header) != 3 {
		return nil, &data.FormatError{Path: path, Line: 1,
			Msg: fmt.Sprintf("expected columns feature,state,count, got %d columns", len(header))}
	}

	params := make([][]float64, table.NFeatures())
	covered := make([]bool, table.NFeatures())
	for fi := range params {
		params[fi] = make([]float64, table.NStates(fi))
		for s := range params[fi] {
			params[fi][s] = 1.0
		}
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &data.FormatError{Path: path, Line: line, Msg: fmt.Sprintf("malformed row: %v", err)}
		}
		feat := strings.TrimSpace(row[0])
		fi, err := table.FeatureIndex(feat)
		if err != nil {
			return nil, &data.FormatError{Path: path, Line: line,
				Msg: fmt.Sprintf("feature %q is not in the feature table", feat)}
		}
		state := strings.TrimSpace(row[1])
		si := -1
		for i, name := range table.AdmissibleStates(fi) {
			if name == state {
				si = i
				break
			}
		}
		if si < 0 {
			return nil, &data.FormatError{Path: path, Line: line,
				Msg: fmt.Sprintf("state %q is not admissible for feature %q", state, feat)}
		}
		count, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil || count < 0 {
			return nil, &data.FormatError{Path: path, Line: line, Msg: fmt.Sprintf("bad count %q", row[2])}
		}
		params[fi][si] += scaleCounts * count
		covered[fi] = true
	}

	for fi, ok := range covered {
		if !ok {
			return nil, &data.FormatError{Path: path,
				Msg: fmt.Sprintf("feature %q has no prior counts", table.Features()[fi])}
		}
	}
	return &Table{kind: KindCounts, params: params}, nil
}

// LoadFamilyCounts loads one counts table per family.
//
// Every family known to the site table must have a file; families in the
// files map that the site table does not know are rejected, since a typo
// there would silently drop a prior.
//
// Inputs:
//   - files: Family name to counts-file path, as configured.
//   - scaleCounts: Positive multiplier applied to every count.
//   - table: Feature table defining features and state order.
//   - sites: Site table defining the family inventory.
//
// Outputs:
//   - map[int]*Table: Counts prior per dense family index.
//   - error: *data.FormatError on any file problem or family mismatch.
func LoadFamilyCounts(files map[string]string, scaleCounts float64, table *data.FeatureTable, sites *data.Sites) (map[int]*Table, error) {
	byFamily := make(map[int]*Table, len(files))
	for name, path := range files {
		idx, ok := sites.FamilyIndex(name)
		if !ok {
			return nil, &data.FormatError{Path: path,
				Msg: fmt.Sprintf("prior family %q is not in the site table", name)}
		}
		t, err := LoadCounts(path, scaleCounts, table)
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", name, err)
		}
		byFamily[idx] = t
	}
	for idx, name := range sites.FamilyNames {
		if _, ok := byFamily[idx]; !ok {
			return nil, &data.FormatError{
				Msg: fmt.Sprintf("family %q has no prior counts file", name)}
		}
	}
	return byFamily, nil
}

// UniformFamilies returns a uniform prior for every family in the site
// table. Used for the uniform inheritance-prior variant.
func UniformFamilies(table *data.FeatureTable, sites *data.Sites) map[int]*Table {
	byFamily := make(map[int]*Table, sites.NFamilies())
	for idx := range sites.FamilyNames {
		byFamily[idx] = Uniform(table)
	}
	return byFamily
}

// Kind returns the variant tag of the table.
func (p *Table) Kind() Kind { return p.kind }

// DirichletParams returns the pseudo-count vector of feature f, aligned to
// the feature's admissible state order. The returned slice must not be
// modified.
func (p *Table) DirichletParams(f int) []float64 { return p.params[f] }
