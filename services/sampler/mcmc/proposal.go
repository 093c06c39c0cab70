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
	"math"

	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// proposalEpsilon keeps every Dirichlet proposal concentration strictly
// positive even where the current simplex entry is at its floor.
const proposalEpsilon = 0.01

// candidate is a proposed state with its precomputed Hastings terms. The
// deltas are relative to the chain's current state; logQ is the backward
// minus forward log proposal density.
type candidate struct {
	next     *State
	likDelta float64
	priDelta float64
	logQ     float64
}

// Step advances the chain by one Metropolis-Hastings step: draw a move
// kind, build a candidate, and accept it with the usual log-ratio rule.
// Proposals that cannot be formed (size bounds, empty pools) count as
// rejections, preserving detailed balance.
//
// Outputs:
//   - bool: Whether the proposal was accepted.
//   - error: *DegeneracyError on a non-finite posterior term; the chain is
//     unusable afterwards.
func (c *Chain) Step() (bool, error) {
	kind := c.drawKind()
	c.stats.Proposed[kind]++

	cand, err := c.propose(kind)
	if err != nil {
		if errors.Is(err, errInvalidProposal) {
			c.observe(kind, outcomeInvalid)
			c.step++
			return false, nil
		}
		var deg *DegeneracyError
		if errors.As(err, &deg) && deg.Step < 0 {
			deg.Step = c.step
		}
		return false, err
	}

	logRatio := cand.likDelta + cand.priDelta + cand.logQ
	accepted := logRatio >= 0 || math.Log(c.rng.Float64()) < logRatio
	if accepted {
		next := cand.next
		next.logLik = c.state.logLik + cand.likDelta
		next.logPrior = c.state.logPrior + cand.priDelta
		c.state = next
		if next.LogPosterior() > c.best.LogPosterior() {
			c.best = next
		}
		c.stats.Accepted[kind]++
		c.observe(kind, outcomeAccepted)
	} else {
		c.observe(kind, outcomeRejected)
	}
	c.step++
	return accepted, nil
}

// Run executes n steps, checking the context between steps.
func (c *Chain) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) observe(kind moveKind, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveProposal(kind.String(), outcome)
	}
}

func (c *Chain) propose(kind moveKind) (*candidate, error) {
	s := c.state
	switch kind {
	case moveArea:
		return c.proposeArea(s)
	case moveWeights:
		return c.proposeWeights(s)
	case moveUniversal:
		return c.proposeUniversal(s)
	case moveContact:
		return c.proposeContact(s)
	case moveInheritance:
		return c.proposeInheritance(s)
	default:
		return nil, errInvalidProposal
	}
}

// perturbSimplex draws a replacement for cur from Dirichlet(kappa*cur +
// eps) and returns it with the forward and backward log proposal
// densities. Larger kappa concentrates the proposal around cur.
func (c *Chain) perturbSimplex(cur []float64, kappa float64) (next []float64, logQFwd, logQBack float64) {
	alpha := make([]float64, len(cur))
	for i := range alpha {
		alpha[i] = kappa*cur[i] + proposalEpsilon
	}
	fwd := distmv.NewDirichlet(alpha, c.src)
	next = fwd.Rand(nil)
	clampSimplex(next)
	logQFwd = fwd.LogProb(next)

	back := make([]float64, len(cur))
	for i := range back {
		back[i] = kappa*next[i] + proposalEpsilon
	}
	logQBack = dirichletLogProb(back, cur)
	return next, logQFwd, logQBack
}

// proposeWeights resamples one language's mixture weight simplex.
func (c *Chain) proposeWeights(s *State) (*candidate, error) {
	m := c.model
	l := c.rng.IntN(m.Table.NLanguages())
	old := s.weights[l]

	neu, logQFwd, logQBack := c.perturbSimplex(old, c.cfg.ProposalPrecision.Weights)
	next := s.shallow()
	next.weights[l] = neu

	likDelta, err := c.langDelta(s, next, l)
	if err != nil {
		return nil, err
	}
	flat := make([]float64, m.NComponents())
	for i := range flat {
		flat[i] = 1
	}
	priDelta := dirichletLogProb(flat, neu) - dirichletLogProb(flat, old)
	return &candidate{next: next, likDelta: likDelta, priDelta: priDelta, logQ: logQBack - logQFwd}, nil
}

// proposeUniversal resamples one feature's universal state distribution,
// which touches every language's term for that feature.
func (c *Chain) proposeUniversal(s *State) (*candidate, error) {
	m := c.model
	f := c.rng.IntN(m.Table.NFeatures())
	old := s.universal[f]

	neu, logQFwd, logQBack := c.perturbSimplex(old, c.cfg.ProposalPrecision.Universal)
	next := s.shallow()
	next.universal[f] = neu

	likDelta, err := c.featureDelta(s, next, c.allLangs, f)
	if err != nil {
		return nil, err
	}
	alpha := m.UniversalPrior.DirichletParams(f)
	priDelta := dirichletLogProb(alpha, neu) - dirichletLogProb(alpha, old)
	return &candidate{next: next, likDelta: likDelta, priDelta: priDelta, logQ: logQBack - logQFwd}, nil
}

// proposeContact resamples one zone's state distribution for one feature;
// only that zone's members feel the change.
func (c *Chain) proposeContact(s *State) (*candidate, error) {
	m := c.model
	z := c.rng.IntN(m.NAreas)
	f := c.rng.IntN(m.Table.NFeatures())
	old := s.contact[z][f]

	neu, logQFwd, logQBack := c.perturbSimplex(old, c.cfg.ProposalPrecision.Contact)
	next := s.shallow()
	row := append([][]float64(nil), s.contact[z]...)
	row[f] = neu
	next.contact[z] = row

	likDelta, err := c.featureDelta(s, next, s.zones[z], f)
	if err != nil {
		return nil, err
	}
	alpha := m.ContactPrior.DirichletParams(f)
	priDelta := dirichletLogProb(alpha, neu) - dirichletLogProb(alpha, old)
	return &candidate{next: next, likDelta: likDelta, priDelta: priDelta, logQ: logQBack - logQFwd}, nil
}

// proposeInheritance alternates between resampling one family's state
// distribution for one feature and a multiplicative random walk on the
// family's strength. A strength change leaves the likelihood untouched
// and reprices the family's Dirichlet priors across all features.
func (c *Chain) proposeInheritance(s *State) (*candidate, error) {
	m := c.model
	nFam := m.Sites.NFamilies()
	if !m.Inherit || nFam == 0 {
		return nil, errInvalidProposal
	}
	fam := c.rng.IntN(nFam)

	if c.rng.Float64() < 0.5 {
		f := c.rng.IntN(m.Table.NFeatures())
		old := s.inheritance[fam][f]

		neu, logQFwd, logQBack := c.perturbSimplex(old, c.cfg.ProposalPrecision.Inheritance)
		next := s.shallow()
		row := append([][]float64(nil), s.inheritance[fam]...)
		row[f] = neu
		next.inheritance[fam] = row

		likDelta, err := c.featureDelta(s, next, m.famMembers[fam], f)
		if err != nil {
			return nil, err
		}
		alpha := m.inheritanceAlpha(fam, f, s.strength[fam])
		priDelta := dirichletLogProb(alpha, neu) - dirichletLogProb(alpha, old)
		return &candidate{next: next, likDelta: likDelta, priDelta: priDelta, logQ: logQBack - logQFwd}, nil
	}

	old := s.strength[fam]
	sigma := 1 / c.cfg.ProposalPrecision.Inheritance
	step := distuv.Normal{Mu: 0, Sigma: sigma, Src: c.src}.Rand()
	neu := old * math.Exp(step)

	next := s.shallow()
	next.strength[fam] = neu

	priDelta := strengthPrior.LogProb(neu) - strengthPrior.LogProb(old)
	for f := 0; f < m.Table.NFeatures(); f++ {
		x := s.inheritance[fam][f]
		priDelta += dirichletLogProb(m.inheritanceAlpha(fam, f, neu), x) -
			dirichletLogProb(m.inheritanceAlpha(fam, f, old), x)
	}
	// Jacobian of the multiplicative walk.
	logQ := math.Log(neu) - math.Log(old)
	return &candidate{next: next, priDelta: priDelta, logQ: logQ}, nil
}

// featureDelta returns the log-likelihood change of feature f over the
// given languages between two states.
func (c *Chain) featureDelta(old, next *State, langs []int, f int) (float64, error) {
	after, err := c.model.logLikFeatureOver(next, langs, f)
	if err != nil {
		return 0, err
	}
	before, err := c.model.logLikFeatureOver(old, langs, f)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}
