package email

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail indicates an email address is not valid.
var ErrInvalidEmail = errors.New("invalid email address")

// maxAddressLen is the longest forward-path allowed by RFC 5321.
const maxAddressLen = 254

// Address is a bare email address in canonical form: no display name and a
// lower case domain. Verification tokens are bound to it, so the address in a
// verification link must parse to the one the token was issued for.
type Address string

// ParseAddress parses raw into its canonical Address. Only the address part is
// accepted, "Alice <alice@example.com>" is rejected. The local part keeps its
// case since mail servers may treat it as significant.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > maxAddressLen {
		return "", ErrInvalidEmail
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndexByte(parsed.Address, '@')
	return Address(parsed.Address[:at] + "@" + strings.ToLower(parsed.Address[at+1:])), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr
	return nil
}
