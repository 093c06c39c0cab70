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
	"errors"
	"fmt"
)

// errInvalidProposal marks a candidate that violates a hard constraint
// (zone-size bounds, empty candidate pool). It never escapes a step: the
// step counts as a rejection and the previous state stands.
var errInvalidProposal = errors.New("invalid proposal")

// DegeneracyError reports a non-finite log-likelihood or log-prior in a
// configuration that should be legal. It is fatal for the chain that hit
// it and carries enough of the offending state for diagnosis; sibling
// chains keep running.
type DegeneracyError struct {
	// Step is the chain step at which the degeneracy appeared.
	Step int

	// Language is the language index being evaluated, or -1 when the
	// degeneracy is not tied to a single language.
	Language int

	// Detail describes what became non-finite.
	Detail string
}

// Error implements the error interface.
func (e *DegeneracyError) Error() string {
	if e.Language >= 0 {
		return fmt.Sprintf("numeric degeneracy at step %d, language %d: %s", e.Step, e.Language, e.Detail)
	}
	return fmt.Sprintf("numeric degeneracy at step %d: %s", e.Step, e.Detail)
}
