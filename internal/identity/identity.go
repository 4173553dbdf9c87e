// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package identity decodes the compact device-identity strings used by
// the webhook formats: "<apiKey><divider><identifier>". The GPX format
// uses '_' as divider, the Locative format ':'.
package identity

import (
	"errors"
	"strings"
)

// Decode invariants. Comparison downstream is byte-for-byte, so no
// trimming or case folding happens here.
const (
	MinAPIKeyLen     = 7
	MinIdentifierLen = 2
	MaxIdentifierLen = 50
)

var (
	// ErrNoDivider means the identity string has no divider character.
	ErrNoDivider = errors.New("identity: divider not found")

	// ErrAPIKeyTooShort means the key portion is under the minimum length.
	ErrAPIKeyTooShort = errors.New("identity: api key too short")

	// ErrIdentifierLength means the identifier portion is outside [2,50].
	ErrIdentifierLength = errors.New("identity: identifier length invalid")
)

// Identity is a decoded device identity.
type Identity struct {
	APIKey     string
	Identifier string
}

// Decode splits the identity string at the first occurrence of divider
// and validates both portions. It never returns a partial result: any
// violation yields a zero Identity and an error.
func Decode(identity string, divider byte) (Identity, error) {
	idx := strings.IndexByte(identity, divider)
	if idx < 0 {
		return Identity{}, ErrNoDivider
	}

	apiKey := identity[:idx]
	ident := identity[idx+1:]

	if len(apiKey) < MinAPIKeyLen {
		return Identity{}, ErrAPIKeyTooShort
	}
	if len(ident) < MinIdentifierLen || len(ident) > MaxIdentifierLen {
		return Identity{}, ErrIdentifierLength
	}

	return Identity{APIKey: apiKey, Identifier: ident}, nil
}
