// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcmc implements the Markov Chain Monte Carlo sampler that infers
// geographically contiguous contact zones among languages from categorical
// feature data.
//
// The sampled state is the full model state: the spatial partition into
// zones, per-language mixture weights over the competing explanations
// (universal tendency, contact, inheritance), the per-feature state
// distributions of each explanation, and per-family inheritance strengths.
// Proposals are pure functions: a step either returns a fresh candidate
// state built by structural sharing, or retains the previous state
// unchanged, so rejection is trivially exact.
package mcmc

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/Anaphory/contact-zones/services/sampler/config"
	"github.com/Anaphory/contact-zones/services/sampler/data"
	"github.com/Anaphory/contact-zones/services/sampler/geo"
	"github.com/Anaphory/contact-zones/services/sampler/prior"
)

// Component indices into a language's mixture weight vector. The
// inheritance entry exists only when the model samples inheritance.
const (
	CompUniversal   = 0
	CompContact     = 1
	CompInheritance = 2
)

// NoZone marks a language that belongs to no zone.
const NoZone = -1

// simplexFloor is the smallest admissible probability in a sampled
// simplex. Dirichlet draws are clamped here so log-densities stay finite.
const simplexFloor = 1e-10

// Model is the immutable problem description shared by every chain: data
// tables, geographic network, priors, and the zone-count bounds.
//
// Thread Safety: Safe for concurrent use (read-only after construction).
type Model struct {
	// Table is the feature data store.
	Table *data.FeatureTable

	// Sites holds coordinates and family assignments.
	Sites *data.Sites

	// Net is the geographic adjacency network.
	Net *geo.Network

	// UniversalPrior and ContactPrior give Dirichlet pseudo-counts per
	// feature.
	UniversalPrior *prior.Table
	ContactPrior   *prior.Table

	// InheritancePrior holds one table per dense family index; nil when
	// inheritance is disabled.
	InheritancePrior map[int]*prior.Table

	// Inherit enables the inheritance mixture component and its moves.
	Inherit bool

	// NAreas is the fixed number of zones; MinM and MaxM bound each
	// zone's size.
	NAreas int
	MinM   int
	MaxM   int

	// famMembers lists the languages of each family by dense family
	// index.
	famMembers [][]int
}

// NewModel assembles a Model from loaded inputs and validates the pieces
// against each other.
//
// Outputs:
//   - *Model: Ready for chain construction.
//   - error: *config.ValidationError when the zone geometry cannot fit the
//     dataset (e.g. N_AREAS x M_INITIAL exceeds the language count).
func NewModel(cfg *config.Config, table *data.FeatureTable, sites *data.Sites, net *geo.Network,
	universal, contact *prior.Table, inheritance map[int]*prior.Table) (*Model, error) {

	n := table.NLanguages()
	if cfg.Model.NAreas*cfg.MCMC.MInitial > n {
		return nil, &config.ValidationError{
			Field: "model.N_AREAS",
			Msg: fmt.Sprintf("%d zones of initial size %d need more languages than the dataset's %d",
				cfg.Model.NAreas, cfg.MCMC.MInitial, n),
		}
	}
	if cfg.Model.Inheritance && inheritance == nil {
		return nil, &config.ValidationError{
			Field: "model.PRIOR.inheritance",
			Msg:   "inheritance is enabled but no inheritance prior was provided",
		}
	}
	famMembers := make([][]int, sites.NFamilies())
	for l, fam := range sites.Family {
		if fam != data.NoFamily {
			famMembers[fam] = append(famMembers[fam], l)
		}
	}
	return &Model{
		Table:            table,
		Sites:            sites,
		Net:              net,
		UniversalPrior:   universal,
		ContactPrior:     contact,
		InheritancePrior: inheritance,
		Inherit:          cfg.Model.Inheritance,
		NAreas:           cfg.Model.NAreas,
		MinM:             cfg.Model.MinM,
		MaxM:             cfg.Model.MaxM,
		famMembers:       famMembers,
	}, nil
}

// NComponents returns the length of each language's weight vector: 3 with
// inheritance, 2 without.
func (m *Model) NComponents() int {
	if m.Inherit {
		return 3
	}
	return 2
}

// inheritanceAlpha returns the Dirichlet parameters of family fam's state
// distribution for feature f: the universal pseudo-counts plus the
// strength-scaled family counts. As strength goes to zero the prior
// collapses to the universal prior; as it grows the family counts
// dominate.
func (m *Model) inheritanceAlpha(fam, f int, strength float64) []float64 {
	universal := m.UniversalPrior.DirichletParams(f)
	family := m.InheritancePrior[fam].DirichletParams(f)
	alpha := make([]float64, len(universal))
	for s := range alpha {
		alpha[s] = universal[s] + strength*family[s]
	}
	return alpha
}

// State is one point of the Markov chain: the spatial partition plus all
// sampled parameters, with cached log-likelihood and log-prior.
//
// States are treated as immutable. Proposals build candidates through
// shallow() and replace only the rows they change; a row shared between
// two states is never written through either of them.
type State struct {
	// zones[z] is the sorted member list of zone z.
	zones [][]int

	// zoneOf[l] is the zone of language l, or NoZone. This is the arena
	// giving O(1) membership checks.
	zoneOf []int

	// weights[l] is language l's mixture weight simplex.
	weights [][]float64

	// universal[f] is the universal state distribution of feature f.
	universal [][]float64

	// contact[z][f] is zone z's state distribution of feature f.
	contact [][][]float64

	// inheritance[fam][f] is family fam's state distribution of feature
	// f; nil when inheritance is disabled.
	inheritance [][][]float64

	// strength[fam] is family fam's inheritance strength; nil when
	// inheritance is disabled.
	strength []float64

	// logLik and logPrior cache the posterior terms of this state.
	logLik   float64
	logPrior float64
}

// shallow returns a copy sharing every row with s. Callers must replace,
// never mutate, the rows they change.
func (s *State) shallow() *State {
	c := &State{
		zones:     append([][]int(nil), s.zones...),
		zoneOf:    append([]int(nil), s.zoneOf...),
		weights:   append([][]float64(nil), s.weights...),
		universal: append([][]float64(nil), s.universal...),
		contact:   append([][][]float64(nil), s.contact...),
		logLik:    s.logLik,
		logPrior:  s.logPrior,
	}
	if s.inheritance != nil {
		c.inheritance = append([][][]float64(nil), s.inheritance...)
		c.strength = append([]float64(nil), s.strength...)
	}
	return c
}

// LogLik returns the cached log-likelihood of the state.
func (s *State) LogLik() float64 { return s.logLik }

// LogPrior returns the cached log-prior of the state.
func (s *State) LogPrior() float64 { return s.logPrior }

// LogPosterior returns the cached log-posterior of the state.
func (s *State) LogPosterior() float64 { return s.logLik + s.logPrior }

// Zones returns the zone member lists. Read-only.
func (s *State) Zones() [][]int { return s.zones }

// ZoneOf returns the zone of language l, or NoZone.
func (s *State) ZoneOf(l int) int { return s.zoneOf[l] }

// Weights returns language l's weight simplex. Read-only.
func (s *State) Weights(l int) []float64 { return s.weights[l] }

// Strengths returns the per-family inheritance strengths (nil when
// inheritance is disabled). Read-only.
func (s *State) Strengths() []float64 { return s.strength }

// CheckInvariants verifies the structural invariants of the state: the
// zones partition a subset of languages without overlap, sizes stay within
// [MinM, MaxM], the arena agrees with the member lists, and every sampled
// vector is a simplex within tolerance. Intended for tests and degeneracy
// diagnosis.
func (s *State) CheckInvariants(m *Model) error {
	const tol = 1e-9

	seen := make([]int, len(s.zoneOf))
	for i := range seen {
		seen[i] = NoZone
	}
	for z, members := range s.zones {
		if len(members) < m.MinM || len(members) > m.MaxM {
			return fmt.Errorf("zone %d has %d members, outside [%d, %d]", z, len(members), m.MinM, m.MaxM)
		}
		if !sort.IntsAreSorted(members) {
			return fmt.Errorf("zone %d member list is not sorted", z)
		}
		for _, l := range members {
			if seen[l] != NoZone {
				return fmt.Errorf("language %d is in zones %d and %d", l, seen[l], z)
			}
			seen[l] = z
		}
	}
	for l, z := range s.zoneOf {
		if z != seen[l] {
			return fmt.Errorf("arena says language %d is in zone %d, member lists say %d", l, z, seen[l])
		}
	}

	for l, w := range s.weights {
		if err := checkSimplex(w, tol); err != nil {
			return fmt.Errorf("weights of language %d: %w", l, err)
		}
	}
	for f, u := range s.universal {
		if err := checkSimplex(u, tol); err != nil {
			return fmt.Errorf("universal distribution of feature %d: %w", f, err)
		}
	}
	for z := range s.contact {
		for f, g := range s.contact[z] {
			if err := checkSimplex(g, tol); err != nil {
				return fmt.Errorf("contact distribution of zone %d, feature %d: %w", z, f, err)
			}
		}
	}
	for fam := range s.inheritance {
		for f, b := range s.inheritance[fam] {
			if err := checkSimplex(b, tol); err != nil {
				return fmt.Errorf("inheritance distribution of family %d, feature %d: %w", fam, f, err)
			}
		}
	}
	for fam, lam := range s.strength {
		if lam <= 0 || math.IsInf(lam, 0) || math.IsNaN(lam) {
			return fmt.Errorf("inheritance strength of family %d is %g", fam, lam)
		}
	}
	return nil
}

// checkSimplex verifies non-negative entries summing to 1 within tol.
func checkSimplex(x []float64, tol float64) error {
	for i, v := range x {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("entry %d is %g", i, v)
		}
	}
	if sum := floats.Sum(x); math.Abs(sum-1) > tol {
		return fmt.Errorf("sums to %g", sum)
	}
	return nil
}

// normalized returns x scaled to sum to 1.
func normalized(x []float64) []float64 {
	out := append([]float64(nil), x...)
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// clampSimplex raises entries below simplexFloor and renormalizes, keeping
// Dirichlet log-densities finite for near-boundary draws.
func clampSimplex(x []float64) {
	for i, v := range x {
		if v < simplexFloor {
			x[i] = simplexFloor
		}
	}
	floats.Scale(1/floats.Sum(x), x)
}

// zoneCounts tallies the observed states of feature f over the given
// members, skipping missing observations.
func (m *Model) zoneCounts(members []int, f int) []float64 {
	counts := make([]float64, m.Table.NStates(f))
	for _, l := range members {
		if s := m.Table.StateOf(l, f); s != data.Missing {
			counts[s]++
		}
	}
	return counts
}
