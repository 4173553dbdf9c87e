// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies an ingestion failure. The kind decides log severity
// and the outcome label on the ingest counters; the policy of turning
// every kind into a nil result lives in ProcessLocation alone.
type Kind string

const (
	// KindDecode covers malformed identities, missing payload fields,
	// and unparsable JSON.
	KindDecode Kind = "decode_error"

	// KindUnknownCredential covers unrecognized API keys and unresolved
	// device identities. Security-relevant, logged at low severity.
	KindUnknownCredential Kind = "unknown_credential"

	// KindValidation covers normalized events failing the schema check.
	KindValidation Kind = "validation_error"

	// KindStorage covers directory refresh and position insert failures.
	KindStorage Kind = "storage_error"

	// KindBroadcast covers hub publish failures. Persistence has still
	// been attempted when this is reported.
	KindBroadcast Kind = "broadcast_error"
)

// Error is a classified ingestion failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func decodeErr(format string, args ...any) *Error {
	return &Error{Kind: KindDecode, Err: fmt.Errorf(format, args...)}
}

func unknownCredentialErr(format string, args ...any) *Error {
	return &Error{Kind: KindUnknownCredential, Err: fmt.Errorf(format, args...)}
}

// kindOf extracts the failure kind, defaulting unclassified errors to
// KindStorage.
func kindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindStorage
}
