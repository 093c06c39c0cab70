// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcmc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Anaphory/contact-zones/services/sampler/config"
	"github.com/Anaphory/contact-zones/services/sampler/data"
	"github.com/Anaphory/contact-zones/services/sampler/geo"
	"github.com/Anaphory/contact-zones/services/sampler/prior"
)

const (
	testFeatures = `id,f1,f2
l0,A,A
l1,A,B
l2,B,C
l3,B,A
l4,A,C
l5,B,B
l6,A,A
l7,?,B
`
	testStates = `feature,state
f1,A
f1,B
f2,A
f2,B
f2,C
`
	// Eight collinear languages: the Gabriel graph is the chain
	// l0-l1-...-l7. l7 is an isolate with no family.
	testSites = `id,x,y,family
l0,0,0,west
l1,1,0,west
l2,2,0,west
l3,3,0,west
l4,4,0,east
l5,5,0,east
l6,6,0,east
l7,7,0,
`
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testInputs(t *testing.T) (*data.FeatureTable, *data.Sites, *geo.Network) {
	t.Helper()
	table, err := data.LoadFeatures(
		writeTestFile(t, "features.csv", testFeatures),
		writeTestFile(t, "states.csv", testStates))
	require.NoError(t, err)
	sites, err := data.LoadSites(writeTestFile(t, "sites.csv", testSites), table)
	require.NoError(t, err)
	return table, sites, geo.NewNetwork(sites)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Model.NAreas = 2
	cfg.Model.MinM = 2
	cfg.Model.MaxM = 4
	cfg.MCMC.MInitial = 2
	cfg.MCMC.NSteps = 200
	cfg.MCMC.NSamples = 10
	cfg.MCMC.NRuns = 1
	cfg.MCMC.WarmUp.NWarmUpSteps = 50
	cfg.MCMC.WarmUp.NWarmUpChains = 2
	cfg.MCMC.Seed = 42
	return &cfg
}

func testModel(t *testing.T, cfg *config.Config) *Model {
	t.Helper()
	table, sites, net := testInputs(t)
	var inheritance map[int]*prior.Table
	if cfg.Model.Inheritance {
		inheritance = prior.UniformFamilies(table, sites)
	}
	m, err := NewModel(cfg, table, sites, net,
		prior.Uniform(table), prior.Uniform(table), inheritance)
	require.NoError(t, err)
	return m
}

func TestNewModelRejectsOversizedLayout(t *testing.T) {
	cfg := testConfig()
	cfg.Model.NAreas = 5
	cfg.MCMC.MInitial = 3 // 15 initial members, only 8 languages

	table, sites, net := testInputs(t)
	_, err := NewModel(cfg, table, sites, net,
		prior.Uniform(table), prior.Uniform(table),
		prior.UniformFamilies(table, sites))
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInitialStateInvariants(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)

	c := newTestChain(t, m, cfg)

	s := c.State()
	require.NoError(t, s.CheckInvariants(m))
	require.Len(t, s.Zones(), cfg.Model.NAreas)
	for _, zone := range s.Zones() {
		require.Len(t, zone, cfg.MCMC.MInitial)
	}
}

func TestPosteriorPredictiveFollowsCounts(t *testing.T) {
	alpha := []float64{1, 1, 1}

	flat := PosteriorPredictive(alpha, []float64{0, 0, 0})
	for _, p := range flat {
		require.InDelta(t, 1.0/3, p, 1e-12)
	}

	skewed := PosteriorPredictive(alpha, []float64{9, 0, 0})
	require.Greater(t, skewed[0], skewed[1])
	require.Greater(t, skewed[0], flat[0])
	require.InDelta(t, 1, skewed[0]+skewed[1]+skewed[2], 1e-12)
}

func TestSharedZoneFavorsContactExplanation(t *testing.T) {
	// Two languages in one zone, one feature, both observing the same
	// state: the contact posterior predictive of that state must beat the
	// near-uniform universal probability.
	table, err := data.LoadFeatures(
		writeTestFile(t, "features.csv", "id,f1\nl0,A\nl1,A\n"),
		writeTestFile(t, "states.csv", "feature,state\nf1,A\nf1,B\n"))
	require.NoError(t, err)

	m := &Model{Table: table}
	counts := m.zoneCounts([]int{0, 1}, 0)
	require.Equal(t, []float64{2, 0}, counts)

	universal := prior.Uniform(table).DirichletParams(0)
	contact := PosteriorPredictive(universal, counts)
	require.Greater(t, contact[0], normalized(universal)[0])
}

func TestLogLikelihoodDegenerateFreeLanguage(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)

	s := c.State().shallow()
	free := s.freeLanguages()
	require.NotEmpty(t, free)
	l := free[0]
	// All weight mass on the contact component, which is masked for a
	// language outside every zone.
	s.weights[l] = []float64{0, 1, 0}

	_, err := m.LogLikelihood(s)
	var de *DegeneracyError
	require.ErrorAs(t, err, &de)
	require.Equal(t, l, de.Language)
	require.Contains(t, de.Error(), "degeneracy")
}

func TestEffectiveWeightsMaskUnavailableComponents(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)
	s := c.State()

	for l := 0; l < m.Table.NLanguages(); l++ {
		wu, wc, wh, total := m.effectiveWeights(s, l)
		require.Positive(t, total)
		require.InDelta(t, 1, wu+wc+wh, 1e-9)
		if s.ZoneOf(l) == NoZone {
			require.Zero(t, wc)
		}
		if m.Sites.Family[l] == data.NoFamily {
			require.Zero(t, wh)
		}
	}
}

func TestCheckInvariantsCatchesCorruption(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)

	s := c.State().shallow()
	s.zoneOf[s.zones[0][0]] = NoZone // arena no longer matches the member list
	require.Error(t, s.CheckInvariants(m))
}

func TestLogPosteriorIsFinite(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)

	s := c.State()
	require.False(t, s.LogPosterior() != s.LogPosterior(), "log posterior is NaN")
	require.NotZero(t, s.LogLik())
}

func newTestChain(t *testing.T, m *Model, cfg *config.Config) *Chain {
	t.Helper()
	seed1, seed2 := chainSeed(cfg.MCMC.Seed, 0, 0)
	c, err := NewChain(m, cfg.MCMC, seed1, seed2, nil)
	require.NoError(t, err)
	return c
}
