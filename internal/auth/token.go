// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package auth implements the subscriber credential codec: signed tokens
// presented by websocket clients to bind a connection to a user identity.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the subscriber identity inside a token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenCodec creates and validates subscriber tokens using HMAC-SHA256.
type TokenCodec struct {
	secret  []byte
	timeout time.Duration
}

// NewTokenCodec builds a codec from the signing secret and token
// lifetime. The secret must be at least 32 characters.
func NewTokenCodec(secret string, timeout time.Duration) (*TokenCodec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 characters")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &TokenCodec{secret: []byte(secret), timeout: timeout}, nil
}

// Generate creates a signed token for the given user.
func (c *TokenCodec) Generate(userID int64) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode validates a token string and returns its claims. The signing
// method is pinned to HMAC to rule out algorithm confusion.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
