package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountID identifies a ledger account.
type AccountID [32]byte

// ParseAccountID decodes the 0x-prefixed hex form produced by String.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 2*len(id) {
		return id, fmt.Errorf("account id must be %d hex characters", 2*len(id))
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return id, fmt.Errorf("invalid account id: %w", err)
	}
	return id, nil
}

// NewAccountID returns a random account id.
func NewAccountID() (AccountID, error) {
	var id AccountID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("failed to generate account id: %w", err)
	}
	return id, nil
}

func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the all-zero id.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// MarshalText encodes a as 0x-prefixed hex.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes 0x-prefixed hex.
func (a *AccountID) UnmarshalText(b []byte) error {
	id, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*a = id
	return nil
}
