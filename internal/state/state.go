// Package state generates and checks the OAuth2 state parameter
package state

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingState indicates the callback carried no state value
	ErrMissingState = errors.New("missing state")

	// ErrStateMismatch indicates the callback state differs from the generated one
	ErrStateMismatch = errors.New("state mismatch")
)

// Generate returns a fresh version 4 UUID for use as a state token
func Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return id.String(), nil
}

// Verifier checks callback state values against the one issued for this login.
// The zero value accepts any non-empty state.
type Verifier struct {
	expected string
}

// NewVerifier creates a verifier bound to the issued state
func NewVerifier(expected string) Verifier {
	return Verifier{expected: expected}
}

// Verify compares actual against the issued state in constant time
func (v Verifier) Verify(actual string) error {
	if actual == "" {
		return ErrMissingState
	}
	if v.expected == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(v.expected), []byte(actual)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
