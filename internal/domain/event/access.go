package event

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	pinDigits   = 6
	bypassBytes = 24
)

// NewAccessCodes generates a fresh numeric PIN and URL-safe bypass token.
func NewAccessCodes() (AccessCodes, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return AccessCodes{}, fmt.Errorf("generate pin: %w", err)
	}
	b := make([]byte, bypassBytes)
	if _, err := rand.Read(b); err != nil {
		return AccessCodes{}, fmt.Errorf("generate bypass token: %w", err)
	}
	return AccessCodes{
		Pin:         fmt.Sprintf("%0*d", pinDigits, n.Int64()),
		BypassToken: base64.RawURLEncoding.EncodeToString(b),
	}, nil
}

// AdmitsGuest reports whether pin or bypass matches the event's access codes.
// Empty inputs never match.
func (e *Event) AdmitsGuest(pin, bypass string) bool {
	if pin != "" && e.Pin != "" && subtle.ConstantTimeCompare([]byte(pin), []byte(e.Pin)) == 1 {
		return true
	}
	return bypass != "" && e.BypassToken != "" &&
		subtle.ConstantTimeCompare([]byte(bypass), []byte(e.BypassToken)) == 1
}
