package krypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"
)

const (
	tokenLen = 32

	// SecretMarker is a string we can look for in logs to see if the app
	// is accidentally exposing secrets.
	SecretMarker = "<!SECRET_REDACTED!>"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
)

// Token is a random token that is sent via email.
//
// The only time a token should be provided in plaintext is as part of
// the email to the user. Tokens are confidential and should never be
// exposed in logs or persisted in plaintext, persist the Fingerprint instead.
type Token [tokenLen]byte

// GenerateToken creates a new random token with 256 bits of entropy.
func GenerateToken() (Token, error) {
	var t Token
	_, err := rand.Read(t[:])
	if err != nil {
		return Token{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return t, nil
}

// ParseToken parses a token from its hex representation.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return Token{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token(b), nil
}

// String returns the hex representation of the token.
// Unlike other secrets this is allowed, the token needs to be
// embedded in emails.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Token) UnmarshalText(text []byte) error {
	tok, err := ParseToken(string(text))
	if err != nil {
		return err
	}

	*t = tok
	return nil
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// Fingerprint returns the one-way digest of the token that is used to find
// it in storage.
func (t Token) Fingerprint() Fingerprint {
	return Fingerprint(blake2b.Sum256(t[:]))
}

// Fingerprint is a BLAKE2b-256 digest of a Token. Fingerprints are not
// secret, the token can not be derived from them.
type Fingerprint [blake2b.Size256]byte

// ParseFingerprint parses a fingerprint from its hex representation.
func ParseFingerprint(raw string) (Fingerprint, error) {
	if len(raw) != blake2b.Size256*2 {
		return Fingerprint{}, ErrInvalidFingerprint
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Fingerprint{}, ErrInvalidFingerprint
	}

	return Fingerprint(b), nil
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Scan implements the sql.Scanner interface.
func (f *Fingerprint) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported fingerprint type %T", src)
	}

	fp, err := ParseFingerprint(raw)
	if err != nil {
		return err
	}

	*f = fp
	return nil
}
