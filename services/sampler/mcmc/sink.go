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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Sample is one recorded posterior draw, with language indices resolved to
// their identifiers for downstream tooling.
type Sample struct {
	// RunID identifies the sampler invocation across runs and files.
	RunID string `json:"run_id"`

	// Run is the repetition index, Step the main-chain step at which the
	// sample was taken.
	Run  int `json:"run"`
	Step int `json:"step"`

	LogLikelihood float64 `json:"log_likelihood"`
	LogPrior      float64 `json:"log_prior"`

	// Zones holds the member languages of each zone.
	Zones [][]string `json:"zones"`

	// Weights holds each language's component weight simplex in table
	// order.
	Weights [][]float64 `json:"weights"`

	// Universal holds the universal state distribution per feature.
	Universal [][]float64 `json:"universal"`

	// Contact holds the contact state distribution per zone and feature.
	Contact [][][]float64 `json:"contact"`

	// Inheritance holds the per-family state distributions keyed by family
	// name. Omitted when inheritance is disabled.
	Inheritance map[string][][]float64 `json:"inheritance,omitempty"`

	// Strengths holds the per-family inheritance strengths, keyed by
	// family name. Omitted when inheritance is disabled.
	Strengths map[string]float64 `json:"strengths,omitempty"`
}

// SampleSink receives recorded samples. The scheduler serializes Consume
// calls, but both provided implementations are safe for concurrent use
// anyway.
type SampleSink interface {
	Consume(ctx context.Context, s *Sample) error
	Close() error
}

// FileSink writes samples as newline-delimited JSON to a single file under
// the results directory, named after a fresh run identifier.
//
// The run identifier is invocation metadata: it is random per sink so
// repeated invocations never overwrite each other's streams, and it is
// excluded from the determinism contract. Two identically-seeded runs
// produce identical records apart from the run_id field.
//
// Thread Safety: Safe for concurrent use.
type FileSink struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	runID string
}

// NewFileSink creates the results directory if needed and opens the
// sample stream for writing.
//
// Inputs:
//   - dir: The results directory.
//
// Outputs:
//   - *FileSink: Open sink; callers must Close it.
//   - error: Non-nil on directory or file creation failure.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	runID := uuid.NewString()
	f, err := os.Create(filepath.Join(dir, "samples_"+runID+".ndjson"))
	if err != nil {
		return nil, fmt.Errorf("create sample stream: %w", err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), runID: runID}, nil
}

// RunID returns the identifier stamped on every sample of this sink.
func (s *FileSink) RunID() string { return s.runID }

// Consume appends one sample as a JSON line.
func (s *FileSink) Consume(ctx context.Context, sample *Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sample.RunID = s.runID

	s.mu.Lock()
	defer s.mu.Unlock()
	enc, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	if _, err := s.w.Write(append(enc, '\n')); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

// Close flushes and closes the sample stream.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flush sample stream: %w", err)
	}
	return s.f.Close()
}

// MemorySink retains samples in memory for tests and programmatic use.
//
// Thread Safety: Safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	samples []*Sample
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Consume retains the sample.
func (s *MemorySink) Consume(ctx context.Context, sample *Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }

// Samples returns the retained samples in arrival order.
func (s *MemorySink) Samples() []*Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Sample(nil), s.samples...)
}
