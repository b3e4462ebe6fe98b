package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/mailverify/internal/auth"
	"github.com/willemschots/mailverify/internal/db"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/errorz"
	"github.com/willemschots/mailverify/internal/krypto"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

func insertAccount(ef execFunc, a *auth.Account) error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO accounts (id, email, name, is_active, created_at, updated_at) VALUES (`)
	q.Params(a.ID, string(a.Email), a.Name, a.IsActive, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	q.Unsafe(`)`)

	query, params := q.Get()
	_, err := ef(query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateAccount(ef execFunc, a *auth.Account) error {
	var q db.Query
	q.Unsafe(`UPDATE accounts SET `)

	q.Unsafe(`email = `)
	q.Param(string(a.Email))

	q.Unsafe(`, name = `)
	q.Param(a.Name)

	q.Unsafe(`, is_active = `)
	q.Param(a.IsActive)

	q.Unsafe(`, updated_at = `)
	q.Param(toMillis(a.UpdatedAt))

	q.Unsafe(` WHERE id = `)
	q.Param(a.ID)

	return expectAffected(ef, &q, "account")
}

func selectAccounts(qf queryFunc, f *auth.AccountFilter) ([]auth.Account, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email, name, is_active, created_at, updated_at FROM accounts WHERE 1=1 `)

	if f != nil {
		if len(f.IDs) > 0 {
			q.Unsafe(`AND id IN (`)
			q.Params(anySlice(f.IDs)...)
			q.Unsafe(`) `)
		}

		if len(f.Emails) > 0 {
			q.Unsafe(`AND email IN (`)
			q.Params(addressParams(f.Emails)...)
			q.Unsafe(`) `)
		}

		if f.IsActive != nil {
			q.Unsafe(`AND is_active = `)
			q.Param(*f.IsActive)
			q.Unsafe(` `)
		}
	}

	q.Unsafe(`ORDER BY created_at ASC, id ASC`)

	query, params := q.Get()
	rows, err := qf(query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}
	defer rows.Close()

	out := make([]auth.Account, 0)
	for rows.Next() {
		var (
			a                    auth.Account
			createdAt, updatedAt int64
		)

		err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.IsActive, &createdAt, &updatedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		a.CreatedAt = fromMillis(createdAt)
		a.UpdatedAt = fromMillis(updatedAt)
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func insertToken(ef execFunc, tok *auth.VerificationToken) error {
	if tok.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO verification_tokens (id, user_id, email, token_fingerprint, expires_at, created_at, verified) VALUES (`)
	q.Params(tok.ID, tok.UserID, string(tok.Email), tok.Fingerprint.String(), toMillis(tok.ExpiresAt), toMillis(tok.CreatedAt), tok.Verified)
	q.Unsafe(`)`)

	query, params := q.Get()
	_, err := ef(query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func selectTokens(qf queryFunc, f *auth.TokenFilter) ([]auth.VerificationToken, error) {
	var q db.Query
	q.Unsafe(`SELECT id, user_id, email, token_fingerprint, expires_at, created_at, verified FROM verification_tokens WHERE 1=1 `)

	if f != nil {
		if len(f.IDs) > 0 {
			q.Unsafe(`AND id IN (`)
			q.Params(anySlice(f.IDs)...)
			q.Unsafe(`) `)
		}

		if len(f.Fingerprints) > 0 {
			q.Unsafe(`AND token_fingerprint IN (`)
			q.Params(fingerprintParams(f.Fingerprints)...)
			q.Unsafe(`) `)
		}

		if len(f.Emails) > 0 {
			q.Unsafe(`AND email IN (`)
			q.Params(addressParams(f.Emails)...)
			q.Unsafe(`) `)
		}

		if f.IsVerified != nil {
			q.Unsafe(`AND verified = `)
			q.Param(*f.IsVerified)
			q.Unsafe(` `)
		}
	}

	q.Unsafe(`ORDER BY created_at ASC, id ASC`)

	query, params := q.Get()
	rows, err := qf(query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}
	defer rows.Close()

	out := make([]auth.VerificationToken, 0)
	for rows.Next() {
		var (
			tok                  auth.VerificationToken
			expiresAt, createdAt int64
		)

		err := rows.Scan(&tok.ID, &tok.UserID, &tok.Email, &tok.Fingerprint, &expiresAt, &createdAt, &tok.Verified)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		tok.ExpiresAt = fromMillis(expiresAt)
		tok.CreatedAt = fromMillis(createdAt)
		out = append(out, tok)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

// markTokenVerified is a compare-and-swap on the verified flag.
func markTokenVerified(ef execFunc, id uuid.UUID) (bool, error) {
	var q db.Query
	q.Unsafe(`UPDATE verification_tokens SET verified = 1 WHERE verified = 0 AND id = `)
	q.Param(id)

	n, err := affected(ef, &q)
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func deleteSupersededTokens(ef execFunc, addr email.Address, now time.Time, keep uuid.UUID) (int, error) {
	var q db.Query
	q.Unsafe(`DELETE FROM verification_tokens WHERE email = `)
	q.Param(string(addr))
	q.Unsafe(` AND (verified = 1 OR expires_at < `)
	q.Param(toMillis(now))
	q.Unsafe(`) AND id != `)
	q.Param(keep)

	return affected(ef, &q)
}

func deleteExpiredTokens(ef execFunc, now time.Time) (int, error) {
	var q db.Query
	q.Unsafe(`DELETE FROM verification_tokens WHERE expires_at < `)
	q.Param(toMillis(now))

	return affected(ef, &q)
}

func expectAffected(ef execFunc, q *db.Query, what string) error {
	n, err := affected(ef, q)
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%s not found: %w", what, errorz.ErrNotFound)
	}

	return nil
}

func affected(ef execFunc, q *db.Query) (int, error) {
	query, params := q.Get()
	result, err := ef(query, params...)
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	return int(n), nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

func addressParams(addrs []email.Address) []any {
	out := make([]any, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, string(a))
	}
	return out
}

func fingerprintParams(fps []krypto.Fingerprint) []any {
	out := make([]any, 0, len(fps))
	for _, fp := range fps {
		out = append(out, fp.String())
	}
	return out
}
