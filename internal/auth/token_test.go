// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	codec, err := NewTokenCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec failed: %v", err)
	}

	token, err := codec.Generate(42)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}
	if claims.IssuedAt == nil {
		t.Error("IssuedAt missing from claims")
	}
}

func TestShortSecretRejected(t *testing.T) {
	if _, err := NewTokenCodec("tooshort", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	codec, err := NewTokenCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-2 * time.Hour)
	claims := &Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(past),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := codec.Decode(signed); err == nil {
		t.Fatal("expired token should be rejected")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	codec, _ := NewTokenCodec(testSecret, time.Hour)
	other, _ := NewTokenCodec(strings.Repeat("x", 32), time.Hour)

	token, err := other.Generate(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Decode(token); err == nil {
		t.Fatal("token signed with different secret should be rejected")
	}
}

func TestNonHMACAlgorithmRejected(t *testing.T) {
	codec, _ := NewTokenCodec(testSecret, time.Hour)

	// alg=none token with a valid-looking payload.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 9})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := codec.Decode(signed); err == nil {
		t.Fatal("alg=none token should be rejected")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	codec, _ := NewTokenCodec(testSecret, time.Hour)
	if _, err := codec.Decode("not.a.token"); err == nil {
		t.Fatal("garbage token should be rejected")
	}
}
