package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/krypto"
)

// VerificationToken is the persisted state of a token that was emailed to
// an account. The token itself is never stored, only its fingerprint.
type VerificationToken struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Email       email.Address
	Fingerprint krypto.Fingerprint
	CreatedAt   time.Time
	ExpiresAt   time.Time
	// Verified only ever goes from false to true.
	Verified bool
}

// IsExpired reports whether the token is expired at the given time.
func (t VerificationToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Status is the result of verifying a token.
type Status int

const (
	StatusNotFound Status = iota
	StatusExpired
	StatusAlreadyVerified
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not found"
	case StatusExpired:
		return "expired"
	case StatusAlreadyVerified:
		return "already verified"
	case StatusValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Verification is the outcome of VerifyToken. Token is only set when
// Status is StatusValid or StatusAlreadyVerified.
type Verification struct {
	Status Status
	Token  VerificationToken
}

// ConsumeResult is the outcome of ConsumeToken.
type ConsumeResult int

const (
	// ConsumeVerified means this call marked the token as verified.
	ConsumeVerified ConsumeResult = iota + 1
	// ConsumeAlreadyVerified means the token had been verified before,
	// possibly by a concurrent call.
	ConsumeAlreadyVerified
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeVerified:
		return "verified"
	case ConsumeAlreadyVerified:
		return "already verified"
	default:
		return "unknown"
	}
}

// VerificationEmail is the data the verification email is rendered with.
type VerificationEmail struct {
	Name      string
	Email     email.Address
	Token     krypto.Token
	ExpiresAt time.Time
}
