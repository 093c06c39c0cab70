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
	"math"
	"slices"
)

// Area moves resample zone membership: grow adds a free language, shrink
// releases a member, swap does both at once. Each sub-kind is drawn with
// probability 1/3, so the sub-kind choice cancels in the Hastings ratio
// between grow and shrink (which are each other's reversals) and within
// swap (its own reversal). The zone choice is uniform and cancels too.
//
// Growth is biased toward geographic contiguity: with probability
// P_GROW_CONNECTED the new member is drawn from the free languages
// adjacent to the zone, otherwise from all free languages. The mixture
// density of that draw enters the Hastings correction explicitly, so the
// bias needs no separate connectedness constraint to stay in balance.

// proposeArea draws a zone and one of the three membership sub-kernels.
func (c *Chain) proposeArea(s *State) (*candidate, error) {
	z := c.rng.IntN(c.model.NAreas)
	switch c.rng.IntN(3) {
	case 0:
		return c.proposeGrow(s, z)
	case 1:
		return c.proposeShrink(s, z)
	default:
		return c.proposeSwap(s, z)
	}
}

// drawGrowth picks a language to add to a zone with the given footprint:
// a connected draw from the adjacent free languages with probability
// P_GROW_CONNECTED, otherwise a uniform draw from all free languages.
// Returns errInvalidProposal when the chosen pool is empty.
func (c *Chain) drawGrowth(footprint, free []int) (int, error) {
	if c.rng.Float64() < c.cfg.PGrowConnected {
		adj := adjacentSubset(free, footprint, c.model.Net)
		if len(adj) == 0 {
			return 0, errInvalidProposal
		}
		return adj[c.rng.IntN(len(adj))], nil
	}
	return free[c.rng.IntN(len(free))], nil
}

// growPickLogProb returns the log density of drawGrowth picking cand when
// growing onto footprint from the free pool. Returns -Inf when cand is
// unreachable (purely connected growth toward a non-adjacent language),
// which forces rejection of the move whose reversal this is.
func (c *Chain) growPickLogProb(footprint, free []int, cand int) float64 {
	p := (1 - c.cfg.PGrowConnected) / float64(len(free))
	adj := adjacentSubset(free, footprint, c.model.Net)
	if len(adj) > 0 && slices.Contains(adj, cand) {
		p += c.cfg.PGrowConnected / float64(len(adj))
	}
	return math.Log(p)
}

// proposeGrow adds one free language to zone z.
func (c *Chain) proposeGrow(s *State, z int) (*candidate, error) {
	members := s.zones[z]
	if len(members) >= c.model.MaxM {
		return nil, errInvalidProposal
	}
	free := s.freeLanguages()
	if len(free) == 0 {
		return nil, errInvalidProposal
	}

	pick, err := c.drawGrowth(members, free)
	if err != nil {
		return nil, err
	}
	logQFwd := c.growPickLogProb(members, free, pick)

	next := s.shallow()
	next.zones[z] = insertSorted(members, pick)
	next.zoneOf[pick] = z

	likDelta, err := c.langDelta(s, next, pick)
	if err != nil {
		return nil, err
	}

	// Reversal: shrink picks the new member uniformly among m+1.
	logQBack := -math.Log(float64(len(members) + 1))
	return &candidate{next: next, likDelta: likDelta, logQ: logQBack - logQFwd}, nil
}

// proposeShrink releases one member of zone z.
func (c *Chain) proposeShrink(s *State, z int) (*candidate, error) {
	members := s.zones[z]
	m := len(members)
	if m <= c.model.MinM {
		return nil, errInvalidProposal
	}

	out := members[c.rng.IntN(m)]
	logQFwd := -math.Log(float64(m))

	next := s.shallow()
	next.zones[z] = removeSorted(members, out)
	next.zoneOf[out] = NoZone

	likDelta, err := c.langDelta(s, next, out)
	if err != nil {
		return nil, err
	}

	// Reversal: grow the shrunken zone back by out, which is free there.
	freeBack := insertSorted(s.freeLanguages(), out)
	logQBack := c.growPickLogProb(next.zones[z], freeBack, out)
	return &candidate{next: next, likDelta: likDelta, logQ: logQBack - logQFwd}, nil
}

// proposeSwap exchanges one member of zone z for a free language, keeping
// the zone size fixed so it works at both size bounds.
func (c *Chain) proposeSwap(s *State, z int) (*candidate, error) {
	members := s.zones[z]
	m := len(members)
	free := s.freeLanguages()
	if len(free) == 0 {
		return nil, errInvalidProposal
	}

	out := members[c.rng.IntN(m)]
	footprint := removeSorted(members, out)
	pick, err := c.drawGrowth(footprint, free)
	if err != nil {
		return nil, err
	}
	logQFwd := -math.Log(float64(m)) + c.growPickLogProb(footprint, free, pick)

	next := s.shallow()
	next.zones[z] = insertSorted(footprint, pick)
	next.zoneOf[out] = NoZone
	next.zoneOf[pick] = z

	likDelta := 0.0
	for _, l := range []int{out, pick} {
		d, err := c.langDelta(s, next, l)
		if err != nil {
			return nil, err
		}
		likDelta += d
	}

	// Reversal: remove pick (uniform among m) and grow out back from the
	// free pool with pick gone and out restored.
	freeBack := insertSorted(removeSorted(free, pick), out)
	logQBack := -math.Log(float64(m)) + c.growPickLogProb(footprint, freeBack, out)
	return &candidate{next: next, likDelta: likDelta, logQ: logQBack - logQFwd}, nil
}

// langDelta returns language l's log-likelihood change between two states.
// Membership moves only change the availability of l's own mixture
// components; every other language's terms are untouched.
func (c *Chain) langDelta(old, next *State, l int) (float64, error) {
	after, err := c.model.logLikLanguage(next, l)
	if err != nil {
		return 0, err
	}
	before, err := c.model.logLikLanguage(old, l)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// insertSorted returns a new slice with v inserted into sorted xs.
func insertSorted(xs []int, v int) []int {
	i, _ := slices.BinarySearch(xs, v)
	out := make([]int, 0, len(xs)+1)
	out = append(out, xs[:i]...)
	out = append(out, v)
	return append(out, xs[i:]...)
}

// removeSorted returns a new slice with v removed from sorted xs.
func removeSorted(xs []int, v int) []int {
	i, _ := slices.BinarySearch(xs, v)
	out := make([]int, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	return append(out, xs[i+1:]...)
}
