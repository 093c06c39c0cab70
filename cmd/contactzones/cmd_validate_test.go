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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	features := writeTestFile(t, dir, "features.csv", `id,f1
l0,A
l1,B
l2,A
l3,B
l4,A
l5,B
`)
	states := writeTestFile(t, dir, "states.csv", "feature,state\nf1,A\nf1,B\n")
	sites := writeTestFile(t, dir, "sites.csv", `id,x,y,family
l0,0,0,north
l1,1,0,north
l2,2,0,north
l3,0,1,south
l4,1,1,south
l5,2,1,south
`)
	cfgPath := writeTestFile(t, dir, "config.yaml", fmt.Sprintf(`data:
  features: %s
  feature_states: %s
  sites: %s
model:
  N_AREAS: 2
mcmc:
  M_INITIAL: 2
`, features, states, sites))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())

	require.Contains(t, out.String(), "languages:     6")
	require.Contains(t, out.String(), "ok")
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "config.yaml", "model:\n  N_AREAS: 0\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", "--config", cfgPath})
	require.Error(t, rootCmd.Execute())
}
