// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for identifiers
// taken from user-supplied data files.
//
// Language, feature, family, and state identifiers end up in log lines,
// result file contents, and error messages. Validating them on load keeps
// malformed or hostile identifiers (control characters, absurd lengths,
// invisible whitespace) from corrupting any of those surfaces.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// maxIdentifierLen bounds identifier length. Real language names and
// feature codes are far shorter; anything longer is a malformed file.
const maxIdentifierLen = 128

// ValidateIdentifier checks one identifier from a data file.
//
// Valid identifiers:
//   - 1 to 128 characters
//   - no control characters (including tabs and newlines)
//   - no leading or trailing whitespace
//
// Outputs:
//   - error: Non-nil with the offending identifier quoted.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > maxIdentifierLen {
		return fmt.Errorf("identifier %q exceeds %d characters", id[:32]+"...", maxIdentifierLen)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("identifier %q has leading or trailing whitespace", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("identifier %q contains a control character", id)
		}
	}
	return nil
}

// ValidateIdentifiers validates a batch of identifiers and reports every
// failure at once.
func ValidateIdentifiers(ids []string) error {
	var bad []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			bad = append(bad, err.Error())
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%d invalid identifiers: %s", len(bad), strings.Join(bad, "; "))
	}
	return nil
}
