// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Anaphory/contact-zones/services/sampler"
	"github.com/Anaphory/contact-zones/services/sampler/config"
)

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	model, err := sampler.Build(&cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "configuration: %s\n", configPath)
	fmt.Fprintf(out, "languages:     %d\n", model.Table.NLanguages())
	fmt.Fprintf(out, "features:      %d\n", model.Table.NFeatures())
	fmt.Fprintf(out, "families:      %d\n", model.Sites.NFamilies())
	fmt.Fprintf(out, "areas:         %d (size %d..%d)\n", model.NAreas, model.MinM, model.MaxM)

	edges := 0
	for i := 0; i < model.Net.Len(); i++ {
		edges += len(model.Net.Neighbors(i))
	}
	fmt.Fprintf(out, "network edges: %d\n", edges/2)
	fmt.Fprintln(out, "ok")
	return nil
}
