// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sampler assembles the contact zone model from a validated
// configuration: it loads the feature and site tables, derives the
// geographic network, resolves the configured priors, and hands the pieces
// to the mcmc package.
package sampler

import (
	"fmt"

	"github.com/Anaphory/contact-zones/services/sampler/config"
	"github.com/Anaphory/contact-zones/services/sampler/data"
	"github.com/Anaphory/contact-zones/services/sampler/geo"
	"github.com/Anaphory/contact-zones/services/sampler/mcmc"
	"github.com/Anaphory/contact-zones/services/sampler/prior"
)

// Build loads every input named by the configuration and assembles the
// model.
//
// Inputs:
//   - cfg: A validated configuration.
//
// Outputs:
//   - *mcmc.Model: Ready for sampling.
//   - error: *data.FormatError for malformed inputs, *config.ValidationError
//     for inputs that contradict the configuration.
func Build(cfg *config.Config) (*mcmc.Model, error) {
	table, err := data.LoadFeatures(cfg.Data.Features, cfg.Data.FeatureStates)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	sites, err := data.LoadSites(cfg.Data.Sites, table)
	if err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}
	net := geo.NewNetwork(sites)

	universal, err := buildPrior(cfg.Model.Prior.Universal, "universal", table)
	if err != nil {
		return nil, err
	}
	contact, err := buildPrior(cfg.Model.Prior.Contact, "contact", table)
	if err != nil {
		return nil, err
	}

	var inheritance map[int]*prior.Table
	if cfg.Model.Inheritance {
		inheritance, err = buildFamilyPriors(cfg.Model.Prior.Inheritance, table, sites)
		if err != nil {
			return nil, err
		}
	}

	return mcmc.NewModel(cfg, table, sites, net, universal, contact, inheritance)
}

func buildPrior(pc config.PriorConfig, name string, table *data.FeatureTable) (*prior.Table, error) {
	switch pc.Type {
	case "uniform":
		return prior.Uniform(table), nil
	case "counts":
		t, err := prior.LoadCounts(pc.File, pc.ScaleCounts, table)
		if err != nil {
			return nil, fmt.Errorf("load %s prior counts: %w", name, err)
		}
		return t, nil
	default:
		return nil, &config.ValidationError{
			Field: "model.PRIOR." + name,
			Msg:   fmt.Sprintf("unsupported prior type %q", pc.Type),
		}
	}
}

func buildFamilyPriors(pc config.PriorConfig, table *data.FeatureTable, sites *data.Sites) (map[int]*prior.Table, error) {
	switch pc.Type {
	case "uniform":
		return prior.UniformFamilies(table, sites), nil
	case "counts":
		tables, err := prior.LoadFamilyCounts(pc.Files, pc.ScaleCounts, table, sites)
		if err != nil {
			return nil, fmt.Errorf("load inheritance prior counts: %w", err)
		}
		return tables, nil
	default:
		return nil, &config.ValidationError{
			Field: "model.PRIOR.inheritance",
			Msg:   fmt.Sprintf("unsupported prior type %q", pc.Type),
		}
	}
}
