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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Anaphory/contact-zones/services/sampler/data"
)

// PosteriorPredictive returns the Dirichlet-multinomial posterior
// predictive distribution (a_s + n_s) / (sum a + sum n) for pseudo-counts
// alpha updated by observed counts.
func PosteriorPredictive(alpha, counts []float64) []float64 {
	out := make([]float64, len(alpha))
	total := floats.Sum(alpha) + floats.Sum(counts)
	for i := range out {
		out[i] = (alpha[i] + counts[i]) / total
	}
	return out
}

// effectiveWeights returns language l's mixture weights with unavailable
// components forced to zero and the rest renormalized: contact weight is
// zero for languages outside every zone, inheritance weight is zero for
// isolates (and always absent when inheritance is disabled). The returned
// total is the pre-normalization mass; a zero total means the language has
// no admissible explanation left, which is a degeneracy.
func (m *Model) effectiveWeights(s *State, l int) (wu, wc, wh, total float64) {
	w := s.weights[l]
	wu = w[CompUniversal]
	wc = w[CompContact]
	if m.Inherit {
		wh = w[CompInheritance]
	}
	if s.zoneOf[l] == NoZone {
		wc = 0
	}
	if !m.Inherit || m.Sites.Family[l] == data.NoFamily {
		wh = 0
	}
	total = wu + wc + wh
	if total > 0 {
		wu /= total
		wc /= total
		wh /= total
	}
	return wu, wc, wh, total
}

// logLikLanguage returns the log-likelihood contribution of language l:
// the sum over features of the log mixture probability of the observed
// state. Missing observations contribute zero. A non-positive or
// non-finite mixture probability yields a *DegeneracyError (with Step
// unset; the chain fills it in).
func (m *Model) logLikLanguage(s *State, l int) (float64, error) {
	wu, wc, wh, total := m.effectiveWeights(s, l)
	if total <= 0 {
		return 0, &DegeneracyError{Step: -1, Language: l,
			Detail: "no mixture component has positive weight"}
	}
	z := s.zoneOf[l]
	fam := m.Sites.Family[l]

	sum := 0.0
	for f := 0; f < m.Table.NFeatures(); f++ {
		obs := m.Table.StateOf(l, f)
		if obs == data.Missing {
			continue
		}
		p := wu * s.universal[f][obs]
		if wc > 0 {
			p += wc * s.contact[z][f][obs]
		}
		if wh > 0 {
			p += wh * s.inheritance[fam][f][obs]
		}
		if p <= 0 || math.IsNaN(p) {
			return 0, &DegeneracyError{Step: -1, Language: l,
				Detail: "mixture probability is not positive"}
		}
		sum += math.Log(p)
	}
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return 0, &DegeneracyError{Step: -1, Language: l, Detail: "log-likelihood is not finite"}
	}
	return sum, nil
}

// logLikLangFeature returns the log mixture probability of language l's
// observation at feature f, or zero when the observation is missing. Used
// for delta evaluation of proposals that touch a single feature.
func (m *Model) logLikLangFeature(s *State, l, f int) (float64, error) {
	obs := m.Table.StateOf(l, f)
	if obs == data.Missing {
		return 0, nil
	}
	wu, wc, wh, total := m.effectiveWeights(s, l)
	if total <= 0 {
		return 0, &DegeneracyError{Step: -1, Language: l,
			Detail: "no mixture component has positive weight"}
	}
	p := wu * s.universal[f][obs]
	if wc > 0 {
		p += wc * s.contact[s.zoneOf[l]][f][obs]
	}
	if wh > 0 {
		p += wh * s.inheritance[m.Sites.Family[l]][f][obs]
	}
	if p <= 0 || math.IsNaN(p) {
		return 0, &DegeneracyError{Step: -1, Language: l,
			Detail: "mixture probability is not positive"}
	}
	return math.Log(p), nil
}

// logLikFeatureOver sums the feature f terms of the given languages.
func (m *Model) logLikFeatureOver(s *State, langs []int, f int) (float64, error) {
	sum := 0.0
	for _, l := range langs {
		ll, err := m.logLikLangFeature(s, l, f)
		if err != nil {
			return 0, err
		}
		sum += ll
	}
	return sum, nil
}

// LogLikelihood computes the joint log-likelihood of the observed features
// under the state: features are independent given the mixture, so the
// total is the sum over languages and features of the per-feature log
// mixture probability.
//
// Outputs:
//   - float64: The joint log-likelihood.
//   - error: *DegeneracyError when any term is non-finite.
func (m *Model) LogLikelihood(s *State) (float64, error) {
	total := 0.0
	for l := 0; l < m.Table.NLanguages(); l++ {
		ll, err := m.logLikLanguage(s, l)
		if err != nil {
			return 0, err
		}
		total += ll
	}
	return total, nil
}

// dirichletLogProb evaluates the Dirichlet(alpha) log-density at x.
func dirichletLogProb(alpha, x []float64) float64 {
	return distmv.NewDirichlet(alpha, nil).LogProb(x)
}

// strengthPrior is the Gamma(1,1) prior on inheritance strengths.
var strengthPrior = distuv.Gamma{Alpha: 1, Beta: 1}

// LogPrior computes the joint log-prior of the state: flat Dirichlet on
// every weight simplex, the configured Dirichlet priors on the universal
// and contact distributions, strength-scaled Dirichlet priors on the
// inheritance distributions, and Gamma(1,1) on the strengths themselves.
// The geo prior over zones is uniform and contributes a constant zero.
func (m *Model) LogPrior(s *State) float64 {
	lp := 0.0

	flat := make([]float64, m.NComponents())
	for i := range flat {
		flat[i] = 1
	}
	for l := range s.weights {
		lp += dirichletLogProb(flat, s.weights[l])
	}

	for f := range s.universal {
		lp += dirichletLogProb(m.UniversalPrior.DirichletParams(f), s.universal[f])
	}
	for z := range s.contact {
		for f := range s.contact[z] {
			lp += dirichletLogProb(m.ContactPrior.DirichletParams(f), s.contact[z][f])
		}
	}
	if m.Inherit {
		for fam := range s.inheritance {
			for f := range s.inheritance[fam] {
				lp += dirichletLogProb(m.inheritanceAlpha(fam, f, s.strength[fam]), s.inheritance[fam][f])
			}
			lp += strengthPrior.LogProb(s.strength[fam])
		}
	}
	return lp
}
