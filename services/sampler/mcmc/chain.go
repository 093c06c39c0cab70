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
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distmv"

	"github.com/Anaphory/contact-zones/services/sampler/config"
	"github.com/Anaphory/contact-zones/services/sampler/geo"
)

// moveKind enumerates the proposal sub-kernels. The set is closed by the
// model: zone membership plus the four parameter blocks.
type moveKind int

const (
	moveArea moveKind = iota
	moveWeights
	moveUniversal
	moveContact
	moveInheritance

	numMoveKinds
)

// String returns the configuration name of the move kind.
func (k moveKind) String() string {
	switch k {
	case moveArea:
		return "area"
	case moveWeights:
		return "weights"
	case moveUniversal:
		return "universal"
	case moveContact:
		return "contact"
	case moveInheritance:
		return "inheritance"
	default:
		return "unknown"
	}
}

// Stats counts proposal outcomes per move kind for one chain.
type Stats struct {
	Proposed [numMoveKinds]int64
	Accepted [numMoveKinds]int64
}

// AcceptanceRate returns the overall fraction of accepted steps.
func (s *Stats) AcceptanceRate() float64 {
	var proposed, accepted int64
	for k := 0; k < int(numMoveKinds); k++ {
		proposed += s.Proposed[k]
		accepted += s.Accepted[k]
	}
	if proposed == 0 {
		return 0
	}
	return float64(accepted) / float64(proposed)
}

// Chain is a single sequential MCMC chain. Steps are strictly ordered:
// each acceptance decision depends on the previously accepted state, so a
// chain must never be driven from more than one goroutine. Independent
// chains are safe to run concurrently; they share only the immutable
// Model.
type Chain struct {
	model *Model
	cfg   config.MCMCConfig

	// src seeds both the chain's own draws and the gonum distributions,
	// keeping a chain fully reproducible from its seed pair.
	src rand.Source
	rng *rand.Rand

	state *State
	step  int

	// allLangs is 0..n-1, reused for feature-wide delta evaluation.
	allLangs []int

	// best is the highest-posterior state observed so far. States are
	// immutable, so retaining the pointer is free.
	best *State

	stats   Stats
	metrics *Metrics
}

// chainSeed derives the deterministic seed pair of a chain from the base
// seed, the run index, and the chain index within the run. Re-running a
// single chain reproduces it exactly without perturbing its siblings.
func chainSeed(base uint64, run, chain int) (uint64, uint64) {
	return base, uint64(run)<<32 | uint64(chain)
}

// NewChain builds a chain with a randomized initial state.
//
// Inputs:
//   - model: The immutable problem description.
//   - cfg: MCMC configuration (move distribution, precisions, bounds).
//   - seed1, seed2: The chain's deterministic seed pair.
//   - metrics: Optional proposal metrics; may be nil.
//
// Outputs:
//   - *Chain: Ready to step.
//   - error: *DegeneracyError if the initial state has a non-finite
//     posterior.
func NewChain(model *Model, cfg config.MCMCConfig, seed1, seed2 uint64, metrics *Metrics) (*Chain, error) {
	src := rand.NewPCG(seed1, seed2)
	c := &Chain{
		model:    model,
		cfg:      cfg,
		src:      src,
		rng:      rand.New(src),
		metrics:  metrics,
		allLangs: make([]int, model.Table.NLanguages()),
	}
	for l := range c.allLangs {
		c.allLangs[l] = l
	}

	state, err := c.initialState()
	if err != nil {
		return nil, err
	}
	if state.logLik, err = model.LogLikelihood(state); err != nil {
		return nil, err
	}
	state.logPrior = model.LogPrior(state)

	c.state = state
	c.best = state
	return c, nil
}

// State returns the chain's current state.
func (c *Chain) State() *State { return c.state }

// Best returns the highest-posterior state observed so far.
func (c *Chain) Best() *State { return c.best }

// StepCount returns the number of executed steps.
func (c *Chain) StepCount() int { return c.step }

// Stats returns the chain's proposal statistics.
func (c *Chain) Stats() Stats { return c.stats }

// SetState replaces the chain's current state. Used to seed the main
// chain from the best warm-up result.
func (c *Chain) SetState(s *State) {
	c.state = s
	if s.LogPosterior() > c.best.LogPosterior() {
		c.best = s
	}
}

// drawKind samples a move kind from the configured STEPS distribution.
func (c *Chain) drawKind() moveKind {
	u := c.rng.Float64()
	s := c.cfg.Steps
	for k, p := range [numMoveKinds]float64{
		moveArea:        s.Area,
		moveWeights:     s.Weights,
		moveUniversal:   s.Universal,
		moveContact:     s.Contact,
		moveInheritance: s.Inheritance,
	} {
		if u < p {
			return moveKind(k)
		}
		u -= p
	}
	// Guard against floating-point shortfall at the top of the CDF.
	return moveArea
}

// initialState builds an independently randomized starting state: zones
// grown from random seed languages along the geographic network, weight
// simplexes drawn from their flat prior, and effect distributions started
// at their prior (or zone-count posterior-predictive) means.
func (c *Chain) initialState() (*State, error) {
	m := c.model
	n := m.Table.NLanguages()
	nFeat := m.Table.NFeatures()

	s := &State{
		zones:  make([][]int, m.NAreas),
		zoneOf: make([]int, n),
	}
	for l := range s.zoneOf {
		s.zoneOf[l] = NoZone
	}

	free := make([]int, n)
	for l := range free {
		free[l] = l
	}
	for z := 0; z < m.NAreas; z++ {
		members, rest, err := c.growInitialZone(free, c.cfg.MInitial)
		if err != nil {
			return nil, err
		}
		free = rest
		slices.Sort(members)
		s.zones[z] = members
		for _, l := range members {
			s.zoneOf[l] = z
		}
	}

	flat := make([]float64, m.NComponents())
	for i := range flat {
		flat[i] = 1
	}
	weightPrior := distmv.NewDirichlet(flat, c.src)
	s.weights = make([][]float64, n)
	for l := range s.weights {
		w := weightPrior.Rand(nil)
		clampSimplex(w)
		s.weights[l] = w
	}

	s.universal = make([][]float64, nFeat)
	for f := range s.universal {
		s.universal[f] = normalized(m.UniversalPrior.DirichletParams(f))
	}

	s.contact = make([][][]float64, m.NAreas)
	for z := range s.contact {
		s.contact[z] = make([][]float64, nFeat)
		for f := range s.contact[z] {
			s.contact[z][f] = PosteriorPredictive(
				m.ContactPrior.DirichletParams(f), m.zoneCounts(s.zones[z], f))
		}
	}

	if m.Inherit {
		nFam := m.Sites.NFamilies()
		s.strength = make([]float64, nFam)
		s.inheritance = make([][][]float64, nFam)
		for fam := range s.inheritance {
			s.strength[fam] = 1
			s.inheritance[fam] = make([][]float64, nFeat)
			for f := range s.inheritance[fam] {
				s.inheritance[fam][f] = normalized(m.inheritanceAlpha(fam, f, 1))
			}
		}
	}
	return s, nil
}

// growInitialZone picks a random free seed language and grows it along the
// geographic network to the target size, falling back to arbitrary free
// languages when the frontier is exhausted. Returns the members and the
// remaining free languages.
func (c *Chain) growInitialZone(free []int, size int) (members, rest []int, err error) {
	if len(free) < size {
		return nil, nil, fmt.Errorf("cannot place a zone of size %d with %d free languages", size, len(free))
	}
	rest = slices.Clone(free)

	take := func(idx int) int {
		l := rest[idx]
		rest = slices.Delete(rest, idx, idx+1)
		return l
	}

	members = []int{take(c.rng.IntN(len(rest)))}
	for len(members) < size {
		frontier := adjacentSubset(rest, members, c.model.Net)
		pool := frontier
		if len(pool) == 0 {
			pool = rest
		}
		pick := pool[c.rng.IntN(len(pool))]
		members = append(members, take(slices.Index(rest, pick)))
	}
	return members, rest, nil
}

// adjacentSubset returns the elements of candidates (sorted) that are
// adjacent to at least one member, preserving candidate order for
// deterministic sampling.
func adjacentSubset(candidates, members []int, net *geo.Network) []int {
	var out []int
	for _, c := range candidates {
		for _, m := range members {
			if net.Adjacent(c, m) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// freeLanguages returns the sorted languages outside every zone.
func (s *State) freeLanguages() []int {
	var free []int
	for l, z := range s.zoneOf {
		if z == NoZone {
			free = append(free, l)
		}
	}
	return free
}

