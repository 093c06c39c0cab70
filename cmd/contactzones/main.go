// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command contactzones infers geographically contiguous contact zones
// from categorical linguistic feature data.
//
// Usage:
//
//	contactzones run --config config.yaml
//	contactzones validate --config config.yaml
//
// The run command streams posterior samples as newline-delimited JSON
// into the configured results directory. The validate command loads the
// configuration and every data file it names, reporting the first
// problem it finds without sampling.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
