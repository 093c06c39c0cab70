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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Anaphory/contact-zones/pkg/logging"
	"github.com/Anaphory/contact-zones/services/sampler/config"
)

// Sampler schedules the configured repetitions: for each run it races a
// set of warm-up chains from independent random starts, seeds the main
// chain with the best warm-up state, and streams samples from the main
// chain to the sink at a fixed cadence.
//
// Thread Safety: Run must not be called concurrently on one Sampler.
type Sampler struct {
	model   *Model
	cfg     *config.Config
	log     *logging.Logger
	tracer  *SamplerTracer
	metrics *Metrics
	sink    SampleSink
}

// SamplerOptions carries the optional collaborators of a Sampler.
type SamplerOptions struct {
	// Logger receives progress logs; nil uses the package default.
	Logger *logging.Logger

	// Metrics receives proposal and sample counts; may be nil.
	Metrics *Metrics

	// Tracing enables OpenTelemetry spans around runs and warm-up.
	Tracing bool
}

// NewSampler builds a Sampler around a validated configuration.
//
// Inputs:
//   - model: The immutable problem description.
//   - cfg: Full configuration; only the MCMC section is consulted here.
//   - sink: Destination for recorded samples. Required.
//   - opts: Optional collaborators.
//
// Outputs:
//   - *Sampler: Ready to Run.
//   - error: Non-nil when sink is missing.
func NewSampler(model *Model, cfg *config.Config, sink SampleSink, opts SamplerOptions) (*Sampler, error) {
	if sink == nil {
		return nil, errors.New("a sample sink is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Sampler{
		model:   model,
		cfg:     cfg,
		log:     log,
		tracer:  NewSamplerTracer(log.Slog(), opts.Tracing),
		metrics: opts.Metrics,
		sink:    sink,
	}, nil
}

// Run executes every configured repetition sequentially. Each run draws
// its chain seeds from the base seed and the run index, so runs are
// reproducible independently of each other. A failed run does not stop
// the remaining repetitions; cancellation does.
//
// Outputs:
//   - error: Context cancellation, a sink failure, or the joined
//     failures of the runs that did not complete.
func (s *Sampler) Run(ctx context.Context) error {
	var errs []error
	for run := 0; run < s.cfg.MCMC.NRuns; run++ {
		err := s.runOnce(ctx, run)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("run %d: %w", run, err))
		if ctx.Err() != nil {
			break
		}
		s.log.Error("run failed",
			slog.Int("run", run),
			slog.Any("error", err),
		)
	}
	return errors.Join(errs...)
}

func (s *Sampler) runOnce(ctx context.Context, run int) error {
	mc := s.cfg.MCMC
	ctx, span := s.tracer.StartRun(ctx, run, mc.NSteps, mc.NSamples)

	main, err := s.runChain(ctx, run)
	var stats Stats
	var lp float64
	if main != nil {
		stats = main.Stats()
		lp = main.State().LogPosterior()
	}
	s.tracer.EndRun(span, stats, lp, err)
	if err != nil {
		return err
	}

	s.log.Info("run completed",
		slog.Int("run", run),
		slog.Float64("acceptance_rate", stats.AcceptanceRate()),
		slog.Float64("log_posterior", lp),
	)
	for k := moveKind(0); k < numMoveKinds; k++ {
		if stats.Proposed[k] == 0 {
			continue
		}
		s.log.Debug("move statistics",
			slog.Int("run", run),
			slog.String("kind", k.String()),
			slog.Int64("proposed", stats.Proposed[k]),
			slog.Int64("accepted", stats.Accepted[k]),
		)
	}
	return nil
}

// runChain performs one warm-up plus main-chain repetition and returns
// the main chain for statistics. The returned chain may be nil when
// construction itself failed.
func (s *Sampler) runChain(ctx context.Context, run int) (*Chain, error) {
	mc := s.cfg.MCMC

	warmStart, err := s.warmUp(ctx, run)
	if err != nil {
		return nil, err
	}

	seed1, seed2 := chainSeed(mc.Seed, run, 0)
	main, err := NewChain(s.model, mc, seed1, seed2, s.metrics)
	if err != nil {
		return nil, err
	}
	if warmStart != nil {
		main.SetState(warmStart)
	}

	interval := 0
	if mc.NSamples > 0 {
		interval = mc.NSteps / mc.NSamples
	}

	// Samples are handed to the sink on a separate goroutine so slow
	// writers do not stall the chain.
	ch := make(chan *Sample, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for sample := range ch {
			if err := s.sink.Consume(gctx, sample); err != nil {
				return fmt.Errorf("sink: %w", err)
			}
			if s.metrics != nil {
				s.metrics.ObserveSample(sample.LogLikelihood + sample.LogPrior)
			}
		}
		return nil
	})
	g.Go(func() error {
		defer close(ch)
		recorded := 0
		for i := 0; i < mc.NSteps; i++ {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if _, err := main.Step(); err != nil {
				return err
			}
			if interval == 0 || (i+1)%interval != 0 || recorded >= mc.NSamples {
				continue
			}
			st := main.State()
			if err := st.CheckInvariants(s.model); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			select {
			case ch <- s.snapshot(run, i+1, st):
				recorded++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return main, err
	}
	return main, nil
}

// warmUp races the configured number of exploratory chains and returns
// the highest-posterior state any of them visited, breaking ties by the
// lowest chain index. A chain failure excludes that chain without
// stopping its siblings; warm-up fails only when every chain failed or
// the context was cancelled. Returns nil when warm-up is disabled.
func (s *Sampler) warmUp(ctx context.Context, run int) (*State, error) {
	mc := s.cfg.MCMC
	nChains := mc.WarmUp.NWarmUpChains
	nSteps := mc.WarmUp.NWarmUpSteps
	if nChains == 0 || nSteps == 0 {
		return nil, nil
	}

	ctx, span := s.tracer.StartWarmUp(ctx, run, nChains, nSteps)
	defer span.End()

	chains := make([]*Chain, nChains)
	for i := range chains {
		seed1, seed2 := chainSeed(mc.Seed, run, i+1)
		c, err := NewChain(s.model, mc, seed1, seed2, nil)
		if err != nil {
			return nil, fmt.Errorf("warm-up chain %d: %w", i, err)
		}
		chains[i] = c
	}

	chainErrs := make([]error, nChains)
	g, gctx := errgroup.WithContext(ctx)
	for i := range chains {
		g.Go(func() error {
			err := chains[i].Run(gctx, nSteps)
			if err == nil || gctx.Err() != nil {
				return err
			}
			// A degenerate chain is dropped; its siblings keep running.
			chainErrs[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best, err := s.bestWarmState(run, chains, chainErrs)
	if err != nil {
		return nil, err
	}
	s.log.Debug("warm-up completed",
		slog.Int("run", run),
		slog.Float64("best_log_posterior", best.LogPosterior()),
	)
	return best, nil
}

// bestWarmState picks the highest-posterior state among the chains that
// completed, dropping the ones that failed. It fails only when every
// chain failed.
func (s *Sampler) bestWarmState(run int, chains []*Chain, chainErrs []error) (*State, error) {
	var best *State
	for i, c := range chains {
		if chainErrs[i] != nil {
			s.log.Warn("warm-up chain failed",
				slog.Int("run", run),
				slog.Int("chain", i),
				slog.Any("error", chainErrs[i]),
			)
			continue
		}
		if best == nil || c.Best().LogPosterior() > best.LogPosterior() {
			best = c.Best()
		}
	}
	if best == nil {
		return nil, fmt.Errorf("all warm-up chains failed: %w", errors.Join(chainErrs...))
	}
	return best, nil
}

// snapshot resolves a state into a Sample with language and family names.
func (s *Sampler) snapshot(run, step int, st *State) *Sample {
	names := s.model.Table.Languages()
	zones := make([][]string, len(st.zones))
	for z, members := range st.zones {
		zones[z] = make([]string, len(members))
		for i, l := range members {
			zones[z][i] = names[l]
		}
	}

	contact := make([][][]float64, len(st.contact))
	for z := range st.contact {
		contact[z] = copyMatrix(st.contact[z])
	}

	sample := &Sample{
		Run:           run,
		Step:          step,
		LogLikelihood: st.logLik,
		LogPrior:      st.logPrior,
		Zones:         zones,
		Weights:       copyMatrix(st.weights),
		Universal:     copyMatrix(st.universal),
		Contact:       contact,
	}
	if st.strength != nil {
		sample.Inheritance = make(map[string][][]float64, len(st.inheritance))
		for fam := range st.inheritance {
			sample.Inheritance[s.model.Sites.FamilyNames[fam]] = copyMatrix(st.inheritance[fam])
		}
		sample.Strengths = make(map[string]float64, len(st.strength))
		for fam, v := range st.strength {
			sample.Strengths[s.model.Sites.FamilyNames[fam]] = v
		}
	}
	return sample
}

// copyMatrix deep-copies a matrix so a recorded sample shares no storage
// with the chain's state history.
func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
