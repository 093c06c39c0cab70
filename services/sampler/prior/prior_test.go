// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prior

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anaphory/contact-zones/services/sampler/data"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testTable(t *testing.T) *data.FeatureTable {
	t.Helper()
	features := writeFile(t, "features.csv", `id,F1,F2
lang1,a,x
lang2,b,y
`)
	states := writeFile(t, "states.csv", `feature,state
F1,a
F1,b
F2,x
F2,y
F2,z
`)
	table, err := data.LoadFeatures(features, states)
	require.NoError(t, err)
	return table
}

func TestUniform(t *testing.T) {
	table := testTable(t)
	p := Uniform(table)

	assert.Equal(t, KindUniform, p.Kind())
	assert.Equal(t, []float64{1, 1}, p.DirichletParams(0))
	assert.Equal(t, []float64{1, 1, 1}, p.DirichletParams(1))
}

func TestLoadCounts(t *testing.T) {
	table := testTable(t)
	path := writeFile(t, "counts.csv", `feature,state,count
F1,a,10
F1,b,2
F2,x,4
F2,y,0
F2,z,1
`)

	p, err := LoadCounts(path, 0.5, table)
	require.NoError(t, err)

	assert.Equal(t, KindCounts, p.Kind())
	// Unit base plus scaled counts.
	assert.Equal(t, []float64{6, 2}, p.DirichletParams(0))
	assert.Equal(t, []float64{3, 1, 1.5}, p.DirichletParams(1))
}

func TestLoadCountsErrors(t *testing.T) {
	table := testTable(t)

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name: "unknown feature",
			content: `feature,state,count
F9,a,1
`,
			wantMsg: "not in the feature table",
		},
		{
			name: "inadmissible state",
			content: `feature,state,count
F1,q,1
`,
			wantMsg: "not admissible",
		},
		{
			name: "negative count",
			content: `feature,state,count
F1,a,-2
F1,b,1
F2,x,1
`,
			wantMsg: "bad count",
		},
		{
			name: "feature missing from file",
			content: `feature,state,count
F1,a,1
`,
			wantMsg: "no prior counts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "counts.csv", tt.content)
			_, err := LoadCounts(path, 1.0, table)
			require.Error(t, err)

			var fe *data.FormatError
			require.True(t, errors.As(err, &fe), "want *data.FormatError, got %T", err)
			assert.Contains(t, fe.Error(), tt.wantMsg)
		})
	}
}

func TestLoadFamilyCounts(t *testing.T) {
	table := testTable(t)
	sitesPath := writeFile(t, "sites.csv", `id,x,y,family
lang1,0,0,arawak
lang2,1,1,tupi
`)
	sites, err := data.LoadSites(sitesPath, table)
	require.NoError(t, err)

	counts := `feature,state,count
F1,a,1
F1,b,1
F2,x,1
F2,y,1
F2,z,1
`
	arawak := writeFile(t, "arawak.csv", counts)
	tupi := writeFile(t, "tupi.csv", counts)

	byFamily, err := LoadFamilyCounts(map[string]string{
		"arawak": arawak,
		"tupi":   tupi,
	}, 1.0, table, sites)
	require.NoError(t, err)
	require.Len(t, byFamily, 2)
	assert.Equal(t, []float64{2, 2}, byFamily[0].DirichletParams(0))

	// A family without a file is rejected.
	_, err = LoadFamilyCounts(map[string]string{"arawak": arawak}, 1.0, table, sites)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no prior counts file")

	// A file for an unknown family is rejected.
	_, err = LoadFamilyCounts(map[string]string{
		"arawak": arawak,
		"tupi":   tupi,
		"ghost":  arawak,
	}, 1.0, table, sites)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the site table")
}

func TestUniformFamilies(t *testing.T) {
	table := testTable(t)
	sitesPath := writeFile(t, "sites.csv", `id,x,y,family
lang1,0,0,arawak
lang2,1,1,
`)
	sites, err := data.LoadSites(sitesPath, table)
	require.NoError(t, err)

	byFamily := UniformFamilies(table, sites)
	require.Len(t, byFamily, 1)
	assert.Equal(t, KindUniform, byFamily[0].Kind())
}
