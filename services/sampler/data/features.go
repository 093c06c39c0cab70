// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package data loads and indexes the categorical linguistic inputs of the
// sampler: the language-by-feature observation matrix, the per-feature
// admissible state sets, and the site table (coordinates plus family
// assignment).
//
// All tables are read-only after load. Observations are stored as integer
// state indices aligned to the admissible state order, so the likelihood
// engine never touches strings on the hot path.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Anaphory/contact-zones/pkg/validation"
)

// Missing marks an unobserved state in the observation matrix.
const Missing = -1

// missingMarkers are the cell values interpreted as "no observation".
var missingMarkers = map[string]bool{
	"":   true,
	"?":  true,
	"NA": true,
}

// FeatureTable is the read-only feature data store.
//
// Languages and features are indexed densely; observations are state
// indices into the per-feature admissible state order from the
// feature-states file.
//
// Thread Safety: Safe for concurrent use after load (immutable).
type FeatureTable struct {
	languages []string
	langIndex map[string]int

	features  []string
	featIndex map[string]int

	// states[f] is the ordered admissible state set of feature f.
	states     [][]string
	stateIndex []map[string]int

	// obs[l][f] is the observed state index of language l for feature f,
	// or Missing.
	obs [][]int
}

// LoadFeatures reads the feature matrix and the feature-states file.
//
// The features file is a wide CSV: the first column holds the language
// identifier, every further column is one feature, and cells hold the
// observed categorical state (empty, "?" or "NA" for missing). The states
// file is a two-column CSV (feature,state) enumerating each feature's
// admissible states in order.
//
// Inputs:
//   - featuresPath: Path to the language-by-feature CSV.
//   - statesPath: Path to the feature-states CSV.
//
// Outputs:
//   - *FeatureTable: Indexed, immutable table.
//   - error: *FormatError on malformed rows, duplicate languages, features
//     without a state set, or observed states outside the admissible set.
func LoadFeatures(featuresPath, statesPath string) (*FeatureTable, error) {
	stateSets, stateOrder, err := loadStateSets(statesPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(featuresPath)
	if err != nil {
		return nil, fmt.Errorf("open features file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // row width checked against the header below

	header, err := reader.Read()
	if err != nil {
		return nil, formatErrorf(featuresPath, 1, "missing header: %v", err)
	}
	if len(header) < 2 {
		return nil, formatErrorf(featuresPath, 1, "header needs a language column and at least one feature")
	}

	table := &FeatureTable{
		langIndex: make(map[string]int),
		features:  make([]string, 0, len(header)-1),
		featIndex: make(map[string]int, len(header)-1),
	}
	for _, name := range header[1:] {
		name = strings.TrimSpace(name)
		if err := validation.ValidateIdentifier(name); err != nil {
			return nil, formatErrorf(featuresPath, 1, "feature name: %v", err)
		}
		if _, dup := table.featIndex[name]; dup {
			return nil, formatErrorf(featuresPath, 1, "duplicate feature %q", name)
		}
		states, ok := stateSets[name]
		if !ok {
			return nil, formatErrorf(statesPath, 0, "feature %q has no admissible state set", name)
		}
		table.featIndex[name] = len(table.features)
		table.features = append(table.features, name)
		table.states = append(table.states, states)
		table.stateIndex = append(table.stateIndex, stateOrder[name])
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, formatErrorf(featuresPath, line, "malformed row: %v", err)
		}
		if len(row) != len(header) {
			return nil, formatErrorf(featuresPath, line, "row has %d cells, header has %d", len(row), len(header))
		}
		lang := strings.TrimSpace(row[0])
		if err := validation.ValidateIdentifier(lang); err != nil {
			return nil, formatErrorf(featuresPath, line, "language identifier: %v", err)
		}
		if _, dup := table.langIndex[lang]; dup {
			return nil, formatErrorf(featuresPath, line, "duplicate language %q", lang)
		}
		table.langIndex[lang] = len(table.languages)
		table.languages = append(table.languages, lang)

		observed := make([]int, len(table.features))
		for fi, cell := range row[1:] {
			cell = strings.TrimSpace(cell)
			if missingMarkers[cell] {
				observed[fi] = Missing
				continue
			}
			si, ok := table.stateIndex[fi][cell]
			if !ok {
				return nil, formatErrorf(featuresPath, line,
					"state %q is not admissible for feature %q", cell, table.features[fi])
			}
			observed[fi] = si
		}
		table.obs = append(table.obs, observed)
	}

	if len(table.languages) == 0 {
		return nil, formatErrorf(featuresPath, 0, "no languages")
	}
	return table, nil
}

// loadStateSets parses the feature-states CSV into ordered state sets.
func loadStateSets(path string) (map[string][]string, map[string]map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open feature-states file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, formatErrorf(path, 1, "missing header: %v", err)
	}
	if len(header) != 2 {
		return nil, nil, formatErrorf(path, 1, "expected two columns (feature,state), got %d", len(header))
	}

	sets := make(map[string][]string)
	order := make(map[string]map[string]int)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, formatErrorf(path, line, "malformed row: %v", err)
		}
		feat := strings.TrimSpace(row[0])
		state := strings.TrimSpace(row[1])
		if feat == "" || state == "" {
			return nil, nil, formatErrorf(path, line, "empty feature or state")
		}
		if order[feat] == nil {
			order[feat] = make(map[string]int)
		}
		if _, dup := order[feat][state]; dup {
			return nil, nil, formatErrorf(path, line, "duplicate state %q for feature %q", state, feat)
		}
		order[feat][state] = len(sets[feat])
		sets[feat] = append(sets[feat], state)
	}
	return sets, order, nil
}

// NLanguages returns the number of languages.
func (t *FeatureTable) NLanguages() int { return len(t.languages) }

// NFeatures returns the number of features.
func (t *FeatureTable) NFeatures() int { return len(t.features) }

// Languages returns the language identifiers in load order.
func (t *FeatureTable) Languages() []string { return t.languages }

// Features returns the feature identifiers in header order.
func (t *FeatureTable) Features() []string { return t.features }

// LanguageIndex returns the dense index of a language identifier.
func (t *FeatureTable) LanguageIndex(lang string) (int, error) {
	i, ok := t.langIndex[lang]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return i, nil
}

// FeatureIndex returns the dense index of a feature identifier.
func (t *FeatureTable) FeatureIndex(feat string) (int, error) {
	i, ok := t.featIndex[feat]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, feat)
	}
	return i, nil
}

// StateOf returns the observed state index of language l for feature f,
// or Missing when there is no observation.
func (t *FeatureTable) StateOf(l, f int) int {
	return t.obs[l][f]
}

// AdmissibleStates returns the ordered admissible state set of feature f.
// The returned slice must not be modified.
func (t *FeatureTable) AdmissibleStates(f int) []string {
	return t.states[f]
}

// NStates returns the cardinality of feature f's admissible state set.
func (t *FeatureTable) NStates(f int) int {
	return len(t.states[f])
}
