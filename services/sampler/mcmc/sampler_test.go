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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestChainDeterminism(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)

	a := newTestChain(t, m, cfg)
	b := newTestChain(t, m, cfg)
	for i := 0; i < 300; i++ {
		accA, errA := a.Step()
		accB, errB := b.Step()
		require.NoError(t, errA)
		require.NoError(t, errB)
		require.Equal(t, accA, accB, "step %d diverged", i)
	}
	require.Equal(t, a.State().LogPosterior(), b.State().LogPosterior())
	require.Equal(t, a.State().Zones(), b.State().Zones())
	require.Equal(t, a.Stats(), b.Stats())
}

func TestRejectionKeepsStateUntouched(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)

	rejections := 0
	for i := 0; i < 500 && rejections < 10; i++ {
		before := c.State()
		accepted, err := c.Step()
		require.NoError(t, err)
		if !accepted {
			rejections++
			// A rejected step must leave the exact same state value in
			// place, not a reconstructed copy.
			require.Same(t, before, c.State())
		}
	}
	require.Positive(t, rejections, "no rejection observed in 500 steps")
}

func TestAreaOnlyRunKeepsParameters(t *testing.T) {
	cfg := testConfig()
	cfg.MCMC.Steps.Area = 1
	cfg.MCMC.Steps.Weights = 0
	cfg.MCMC.Steps.Universal = 0
	cfg.MCMC.Steps.Contact = 0
	cfg.MCMC.Steps.Inheritance = 0
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)

	initial := c.State()
	for i := 0; i < 300; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}

	final := c.State()
	require.NoError(t, final.CheckInvariants(m))
	for l := range initial.weights {
		require.Same(t, &initial.weights[l][0], &final.weights[l][0])
	}
	for f := range initial.universal {
		require.Same(t, &initial.universal[f][0], &final.universal[f][0])
	}
	for z := range initial.contact {
		for f := range initial.contact[z] {
			require.Same(t, &initial.contact[z][f][0], &final.contact[z][f][0])
		}
	}
	for fam := range initial.inheritance {
		require.Same(t, &initial.inheritance[fam][0][0], &final.inheritance[fam][0][0])
	}
	require.Equal(t, initial.strength, final.strength)
}

func TestZoneSizesStayBounded(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	c := newTestChain(t, m, cfg)

	for i := 0; i < 500; i++ {
		_, err := c.Step()
		require.NoError(t, err)
		for _, zone := range c.State().Zones() {
			require.GreaterOrEqual(t, len(zone), cfg.Model.MinM)
			require.LessOrEqual(t, len(zone), cfg.Model.MaxM)
		}
	}
}

func TestInheritanceDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Model.Inheritance = false
	cfg.MCMC.Steps.Area = 0.5
	cfg.MCMC.Steps.Weights = 0.3
	cfg.MCMC.Steps.Universal = 0.1
	cfg.MCMC.Steps.Contact = 0.1
	cfg.MCMC.Steps.Inheritance = 0
	m := testModel(t, cfg)
	require.Equal(t, 2, m.NComponents())

	c := newTestChain(t, m, cfg)
	require.Nil(t, c.State().Strengths())
	for i := 0; i < 200; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}
	require.NoError(t, c.State().CheckInvariants(m))
}

func TestSamplerProducesConfiguredSamples(t *testing.T) {
	cfg := testConfig()
	cfg.MCMC.NRuns = 2
	m := testModel(t, cfg)

	sink := NewMemorySink()
	s, err := NewSampler(m, cfg, sink, SamplerOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	samples := sink.Samples()
	require.Len(t, samples, cfg.MCMC.NRuns*cfg.MCMC.NSamples)

	interval := cfg.MCMC.NSteps / cfg.MCMC.NSamples
	for i, sample := range samples {
		require.Equal(t, i/cfg.MCMC.NSamples, sample.Run)
		require.Equal(t, ((i%cfg.MCMC.NSamples)+1)*interval, sample.Step)
		require.Len(t, sample.Zones, cfg.Model.NAreas)
		for _, zone := range sample.Zones {
			require.GreaterOrEqual(t, len(zone), cfg.Model.MinM)
			require.LessOrEqual(t, len(zone), cfg.Model.MaxM)
		}
		require.Contains(t, sample.Strengths, "west")
		require.Contains(t, sample.Strengths, "east")

		require.Len(t, sample.Weights, m.Table.NLanguages())
		for _, w := range sample.Weights {
			require.InDelta(t, 1.0, floats.Sum(w), 1e-9)
		}
		require.Len(t, sample.Universal, m.Table.NFeatures())
		require.Len(t, sample.Contact, cfg.Model.NAreas)
		require.Contains(t, sample.Inheritance, "west")
	}
}

func TestSamplerDeterminism(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)

	run := func() []*Sample {
		sink := NewMemorySink()
		s, err := NewSampler(m, cfg, sink, SamplerOptions{})
		require.NoError(t, err)
		require.NoError(t, s.Run(context.Background()))
		return sink.Samples()
	}
	require.Equal(t, run(), run())
}

func TestSamplerCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.MCMC.NSteps = 1 << 20
	cfg.MCMC.NSamples = 1 << 10
	m := testModel(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := NewSampler(m, cfg, NewMemorySink(), SamplerOptions{})
	require.NoError(t, err)
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestWarmUpDropsDegenerateChains(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	s, err := NewSampler(m, cfg, NewMemorySink(), SamplerOptions{})
	require.NoError(t, err)

	a := newTestChain(t, m, cfg)
	b := newTestChain(t, m, cfg)
	degenerate := &DegeneracyError{Step: 3, Language: -1, Detail: "mixture probability is not positive"}

	// A failed chain is excluded from selection; its sibling still seeds
	// the main chain.
	best, err := s.bestWarmState(0, []*Chain{a, b}, []error{degenerate, nil})
	require.NoError(t, err)
	require.Same(t, b.Best(), best)

	// Warm-up only fails outright when every chain failed.
	_, err = s.bestWarmState(0, []*Chain{a, b}, []error{degenerate, degenerate})
	var de *DegeneracyError
	require.ErrorAs(t, err, &de)
}

func TestSamplerRequiresSink(t *testing.T) {
	cfg := testConfig()
	m := testModel(t, cfg)
	_, err := NewSampler(m, cfg, nil, SamplerOptions{})
	require.Error(t, err)
}

func TestFileSinkWritesNDJSON(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	require.NotEmpty(t, sink.RunID())

	ctx := context.Background()
	for step := 1; step <= 2; step++ {
		require.NoError(t, sink.Consume(ctx, &Sample{
			Run:           0,
			Step:          step * 20,
			LogLikelihood: -12.5,
			LogPrior:      -3.25,
			Zones:         [][]string{{"l0", "l1"}, {"l4", "l5"}},
		}))
	}
	require.NoError(t, sink.Close())

	f, err := os.Open(filepath.Join(dir, "samples_"+sink.RunID()+".ndjson"))
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var sample Sample
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &sample))
		require.Equal(t, sink.RunID(), sample.RunID)
		require.Len(t, sample.Zones, 2)
		lines++
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, 2, lines)

	// Fresh identifiers keep repeated invocations from overwriting each
	// other's streams.
	other, err := NewFileSink(dir)
	require.NoError(t, err)
	require.NotEqual(t, sink.RunID(), other.RunID())
	require.NoError(t, other.Close())
}
