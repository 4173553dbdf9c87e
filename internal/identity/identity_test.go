// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeRoundTrip(t *testing.T) {
	keys := []string{"abcdefg", "longerapikey123", strings.Repeat("k", 40)}
	identifiers := []string{"d1", "device-42", strings.Repeat("i", 50)}

	for _, divider := range []byte{'_', ':'} {
		for _, key := range keys {
			for _, ident := range identifiers {
				got, err := Decode(key+string(divider)+ident, divider)
				if err != nil {
					t.Fatalf("Decode(%q%c%q) failed: %v", key, divider, ident, err)
				}
				if got.APIKey != key || got.Identifier != ident {
					t.Errorf("Decode = %+v, want {%q %q}", got, key, ident)
				}
			}
		}
	}
}

func TestDecodeSplitsAtFirstDivider(t *testing.T) {
	// The identifier may itself contain the divider character.
	got, err := Decode("abcdefg_dev_1", '_')
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.APIKey != "abcdefg" || got.Identifier != "dev_1" {
		t.Errorf("Decode = %+v, want split at first divider", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		divider  byte
		wantErr  error
	}{
		{"no divider", "abcdefgdev1", '_', ErrNoDivider},
		{"wrong divider", "abcdefg:dev1", '_', ErrNoDivider},
		{"empty string", "", '_', ErrNoDivider},
		{"key six chars", "abcdef_dev1", '_', ErrAPIKeyTooShort},
		{"key empty", "_dev1", '_', ErrAPIKeyTooShort},
		{"identifier one char", "abcdefg_d", '_', ErrIdentifierLength},
		{"identifier empty", "abcdefg_", '_', ErrIdentifierLength},
		{"identifier 51 chars", "abcdefg_" + strings.Repeat("x", 51), '_', ErrIdentifierLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.identity, tt.divider)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode(%q) error = %v, want %v", tt.identity, err, tt.wantErr)
			}
			if got != (Identity{}) {
				t.Errorf("Decode returned partial result %+v on error", got)
			}
		})
	}
}

func TestDecodeBoundaryLengths(t *testing.T) {
	// Exactly at the inclusive bounds.
	if _, err := Decode("abcdefg_ab", '_'); err != nil {
		t.Errorf("7-char key with 2-char identifier should decode: %v", err)
	}
	if _, err := Decode("abcdefg_"+strings.Repeat("x", 50), '_'); err != nil {
		t.Errorf("50-char identifier should decode: %v", err)
	}
}

func TestDecodeNoNormalization(t *testing.T) {
	got, err := Decode("  ABCDEFG_Dev1 ", '_')
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.APIKey != "  ABCDEFG" || got.Identifier != "Dev1 " {
		t.Errorf("Decode normalized input: %+v", got)
	}
}
