package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/mailverify/internal/auth"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/errorz"
)

// Tx is a database transaction. All methods run on the single underlying
// *sql.Tx, so Tx is not safe for concurrent use.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return errorz.MapDBErr(t.tx.Commit())
}

func (t *Tx) Rollback() error {
	return errorz.MapDBErr(t.tx.Rollback())
}

// CreateAccount creates an account in the database.
// The account must have a non-zero ID.
func (t *Tx) CreateAccount(a *auth.Account) error {
	return insertAccount(t.tx.Exec, a)
}

// UpdateAccount updates an account in the database.
// It returns errorz.ErrNotFound if no account is found.
func (t *Tx) UpdateAccount(a *auth.Account) error {
	return updateAccount(t.tx.Exec, a)
}

// FindAccounts queries for accounts based on the provided filter.
// It returns an empty slice if no accounts are found.
func (t *Tx) FindAccounts(filter *auth.AccountFilter) ([]auth.Account, error) {
	return selectAccounts(t.tx.Query, filter)
}

// CreateToken creates a verification token in the database.
// The token must have a non-zero ID.
func (t *Tx) CreateToken(tok *auth.VerificationToken) error {
	return insertToken(t.tx.Exec, tok)
}

// FindTokens queries for verification tokens based on the provided filter.
// It returns an empty slice if no tokens are found.
func (t *Tx) FindTokens(filter *auth.TokenFilter) ([]auth.VerificationToken, error) {
	return selectTokens(t.tx.Query, filter)
}

func (t *Tx) MarkTokenVerified(id uuid.UUID) (bool, error) {
	return markTokenVerified(t.tx.Exec, id)
}

func (t *Tx) DeleteSupersededTokens(addr email.Address, now time.Time, keep uuid.UUID) (int, error) {
	return deleteSupersededTokens(t.tx.Exec, addr, now, keep)
}

func (t *Tx) DeleteExpiredTokens(now time.Time) (int, error) {
	return deleteExpiredTokens(t.tx.Exec, now)
}
