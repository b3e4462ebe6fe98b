package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/krypto"
)

// AccountFilter is used filter accounts.
// Returned accounts must match all the provided fields.
// If a field is empty or nil, it's ignored.
type AccountFilter struct {
	IDs      []uuid.UUID
	Emails   []email.Address
	IsActive *bool
}

// TokenFilter is used to filter verification tokens.
// Returned tokens must match all the provided fields.
// If a field is empty or nil, it's ignored.
type TokenFilter struct {
	IDs          []uuid.UUID
	Fingerprints []krypto.Fingerprint
	Emails       []email.Address
	IsVerified   *bool
}

// Store provides access to accounts and verification tokens.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the other methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	CreateAccount(a *Account) error
	UpdateAccount(a *Account) error
	FindAccounts(filter *AccountFilter) ([]Account, error)

	CreateToken(t *VerificationToken) error
	FindTokens(filter *TokenFilter) ([]VerificationToken, error)
	// MarkTokenVerified sets the verified flag of an unverified token.
	// It reports false when the token was already verified or doesn't exist.
	MarkTokenVerified(id uuid.UUID) (bool, error)
	// DeleteSupersededTokens deletes the tokens for email that are expired at
	// now or verified, except for the token with id keep.
	DeleteSupersededTokens(addr email.Address, now time.Time, keep uuid.UUID) (int, error)
	// DeleteExpiredTokens deletes all tokens that are expired at now.
	DeleteExpiredTokens(now time.Time) (int, error)
}
