// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "kalaallisut", false},
		{"single char", "a", false},
		{"with digit", "feat12", false},
		{"with space inside", "West Greenlandic", false},
		{"unicode", "Gwichʼin", false},
		{"hyphen and dot", "ISO-639.3", false},
		{"empty", "", true},
		{"leading space", " aleut", true},
		{"trailing space", "aleut ", true},
		{"embedded newline", "ale\nut", true},
		{"embedded tab", "ale\tut", true},
		{"too long", strings.Repeat("x", 129), true},
		{"max length ok", strings.Repeat("x", 128), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateIdentifiers([]string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateIdentifiers([]string{"ok", "", "bad\n"})
	if err == nil {
		t.Fatal("expected error for invalid identifiers")
	}
	if !strings.Contains(err.Error(), "2 invalid identifiers") {
		t.Errorf("error should count both failures, got %v", err)
	}
}
