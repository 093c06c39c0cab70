// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Anaphory/contact-zones/services/sampler/config"
	"github.com/Anaphory/contact-zones/services/sampler/prior"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testBuildConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Features = writeTestFile(t, dir, "features.csv", `id,f1
l0,A
l1,B
l2,A
l3,B
l4,A
l5,B
`)
	cfg.Data.FeatureStates = writeTestFile(t, dir, "states.csv", `feature,state
f1,A
f1,B
`)
	cfg.Data.Sites = writeTestFile(t, dir, "sites.csv", `id,x,y,family
l0,0,0,north
l1,1,0,north
l2,2,0,north
l3,0,1,south
l4,1,1,south
l5,2,1,south
`)
	cfg.Model.NAreas = 2
	cfg.MCMC.MInitial = 2
	return &cfg
}

func TestBuildUniformPriors(t *testing.T) {
	cfg := testBuildConfig(t)

	m, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, 6, m.Table.NLanguages())
	require.Equal(t, 2, m.Sites.NFamilies())
	require.Equal(t, 3, m.NComponents())
	require.Equal(t, prior.KindUniform, m.UniversalPrior.Kind())
}

func TestBuildCountsPrior(t *testing.T) {
	cfg := testBuildConfig(t)
	cfg.Model.Prior.Universal = config.PriorConfig{
		Type:        "counts",
		File:        writeTestFile(t, t.TempDir(), "counts.csv", "feature,state,count\nf1,A,10\nf1,B,2\n"),
		ScaleCounts: 0.5,
	}

	m, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, prior.KindCounts, m.UniversalPrior.Kind())
	require.Equal(t, []float64{6, 2}, m.UniversalPrior.DirichletParams(0))
}

func TestBuildInheritanceDisabled(t *testing.T) {
	cfg := testBuildConfig(t)
	cfg.Model.Inheritance = false

	m, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, 2, m.NComponents())
}

func TestBuildUnsupportedPriorType(t *testing.T) {
	cfg := testBuildConfig(t)
	cfg.Model.Prior.Contact.Type = "gaussian"

	_, err := Build(cfg)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "model.PRIOR.contact", verr.Field)
}

func TestBuildMissingDataFile(t *testing.T) {
	cfg := testBuildConfig(t)
	cfg.Data.Features = filepath.Join(t.TempDir(), "absent.csv")

	_, err := Build(cfg)
	require.Error(t, err)
}
