// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"errors"
	"fmt"
)

// Sentinel errors for data lookups.
var (
	// ErrUnknownLanguage is returned when a language identifier is not in
	// the feature table.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrUnknownFeature is returned when a feature identifier is not in
	// the feature table.
	ErrUnknownFeature = errors.New("unknown feature")
)

// FormatError describes a malformed or inconsistent input file: bad rows,
// duplicate identifiers, states that are not in the admissible set, or
// references to features that do not exist. It is fatal and aborts the run
// before any chain starts.
type FormatError struct {
	// Path is the offending file.
	Path string

	// Line is the 1-based line number, or 0 when the problem is not tied
	// to a single line.
	Line int

	// Msg describes the problem.
	Msg string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("data format: %s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("data format: %s: %s", e.Path, e.Msg)
}

// formatErrorf builds a *FormatError with a formatted message.
func formatErrorf(path string, line int, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
}
