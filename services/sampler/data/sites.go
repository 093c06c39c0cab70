// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Anaphory/contact-zones/pkg/validation"
)

// NoFamily marks a language without a family assignment (isolates).
const NoFamily = -1

// Sites holds the geographic location and family assignment of every
// language, aligned to the FeatureTable's language order.
//
// Thread Safety: Safe for concurrent use after load (immutable).
type Sites struct {
	// X, Y are planar coordinates per language index.
	X []float64
	Y []float64

	// Family[l] is the dense family index of language l, or NoFamily.
	Family []int

	// FamilyNames maps dense family indices back to names.
	FamilyNames []string

	familyIndex map[string]int
}

// LoadSites reads the site table and aligns it to the feature table.
//
// The sites file is a CSV with header id,x,y,family. The family column may
// be empty for isolates. Every language in the feature table must have
// exactly one site row; extra rows are an error.
//
// Inputs:
//   - path: Path to the sites CSV.
//   - table: Feature table giving the canonical language order.
//
// Outputs:
//   - *Sites: Coordinates and family assignments indexed by language.
//   - error: *FormatError on malformed rows, unknown or missing languages.
func LoadSites(path string, table *FeatureTable) (*Sites, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, formatErrorf(path, 1, "missing header: %v", err)
	}
	if len(header) < 3 {
		return nil, formatErrorf(path, 1, "expected columns id,x,y[,family], got %d columns", len(header))
	}
	hasFamily := len(header) >= 4

	n := table.NLanguages()
	sites := &Sites{
		X:           make([]float64, n),
		Y:           make([]float64, n),
		Family:      make([]int, n),
		familyIndex: make(map[string]int),
	}
	for i := range sites.Family {
		sites.Family[i] = NoFamily
	}

	seen := make([]bool, n)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, formatErrorf(path, line, "malformed row: %v", err)
		}
		id := strings.TrimSpace(row[0])
		l, err := table.LanguageIndex(id)
		if err != nil {
			return nil, formatErrorf(path, line, "site %q is not in the feature table", id)
		}
		if seen[l] {
			return nil, formatErrorf(path, line, "duplicate site for language %q", id)
		}
		seen[l] = true

		if sites.X[l], err = strconv.ParseFloat(strings.TrimSpace(row[1]), 64); err != nil {
			return nil, formatErrorf(path, line, "bad x coordinate %q", row[1])
		}
		if sites.Y[l], err = strconv.ParseFloat(strings.TrimSpace(row[2]), 64); err != nil {
			return nil, formatErrorf(path, line, "bad y coordinate %q", row[2])
		}

		if hasFamily && len(row) >= 4 {
			fam := strings.TrimSpace(row[3])
			if fam != "" {
				if err := validation.ValidateIdentifier(fam); err != nil {
					return nil, formatErrorf(path, line, "family name: %v", err)
				}
				idx, ok := sites.familyIndex[fam]
				if !ok {
					idx = len(sites.FamilyNames)
					sites.familyIndex[fam] = idx
					sites.FamilyNames = append(sites.FamilyNames, fam)
				}
				sites.Family[l] = idx
			}
		}
	}

	for l, ok := range seen {
		if !ok {
			return nil, formatErrorf(path, 0, "language %q has no site row", table.Languages()[l])
		}
	}
	return sites, nil
}

// NFamilies returns the number of distinct families.
func (s *Sites) NFamilies() int { return len(s.FamilyNames) }

// FamilyIndex returns the dense index of a family name.
func (s *Sites) FamilyIndex(name string) (int, bool) {
	i, ok := s.familyIndex[name]
	return i, ok
}
