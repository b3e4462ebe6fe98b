package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/errorz"
	"github.com/willemschots/mailverify/internal/krypto"
)

// VerificationTemplate is the name of the email template for verification emails.
const VerificationTemplate = "email-verification"

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// TokenValidity is the duration a token is valid after it was issued.
	TokenValidity time.Duration
}

// Service issues, verifies and consumes email verification tokens.
type Service struct {
	store      Store
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) *Service {
	return &Service{
		store:      s,
		emailer:    emailer,
		wg:         &sync.WaitGroup{},
		errHandler: errHandler,
		cfg:        cfg,
		NowFunc:    time.Now,
	}
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// StartVerification creates an inactive account for the registration if none
// exists yet, issues a verification token and emails it.
//
// It returns ErrAlreadyActive if the email address belongs to an active account.
// No email is sent when the account or token could not be persisted.
func (s *Service) StartVerification(ctx context.Context, r Registration) error {
	now := s.NowFunc()

	var (
		account Account
		token   krypto.Token
		record  VerificationToken
	)

	err := s.inTx(ctx, func(tx Tx) error {
		accounts, txErr := tx.FindAccounts(&AccountFilter{
			Emails: []email.Address{r.Email},
		})
		if txErr != nil {
			return txErr
		}

		if len(accounts) > 0 {
			if accounts[0].IsActive {
				return ErrAlreadyActive
			}
			account = accounts[0]
		} else {
			account = Account{
				ID:        uuid.New(),
				Email:     r.Email,
				Name:      r.Name,
				IsActive:  false,
				CreatedAt: now,
				UpdatedAt: now,
			}

			txErr = tx.CreateAccount(&account)
			if txErr != nil {
				return txErr
			}
		}

		token, record, txErr = s.issueToken(tx, account.ID, account.Email, now)
		return txErr
	})
	if err != nil {
		return err
	}

	// The email could fail to send after the token was committed. The user
	// can request a new email, so we accept this.
	return s.sendVerificationEmail(ctx, account, token, record)
}

// ResendVerification issues a new token for the inactive account with the given
// email address and emails it.
//
// The work is done in a separate goroutine, the caller never learns whether an
// email was sent. Unknown or already active email addresses are ignored.
func (s *Service) ResendVerification(_ context.Context, addr email.Address) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.resendVerification(wCtx, addr)
		if err != nil {
			s.errHandler(fmt.Errorf("failed to resend verification: %w", err))
		}
	}()
}

func (s *Service) resendVerification(ctx context.Context, addr email.Address) error {
	now := s.NowFunc()

	var (
		account Account
		token   krypto.Token
		record  VerificationToken
	)

	err := s.inTx(ctx, func(tx Tx) error {
		accounts, txErr := tx.FindAccounts(&AccountFilter{
			Emails:   []email.Address{addr},
			IsActive: ptr(false),
		})
		if txErr != nil {
			return txErr
		}

		if len(accounts) != 1 {
			return errorz.ErrNotFound
		}

		account = accounts[0]
		token, record, txErr = s.issueToken(tx, account.ID, account.Email, now)
		return txErr
	})
	if errors.Is(err, errorz.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.sendVerificationEmail(ctx, account, token, record)
}

// IssueToken creates and persists a new verification token for the account.
// The returned token is the only copy of the plaintext token, it should be
// emailed to the user and then forgotten.
//
// Existing tokens for the email address are left alone, they are cleaned up
// once a token is consumed.
func (s *Service) IssueToken(ctx context.Context, userID uuid.UUID, addr email.Address) (krypto.Token, error) {
	var token krypto.Token

	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		token, _, txErr = s.issueToken(tx, userID, addr, s.NowFunc())
		return txErr
	})
	if err != nil {
		return krypto.Token{}, err
	}

	return token, nil
}

func (s *Service) issueToken(tx Tx, userID uuid.UUID, addr email.Address, now time.Time) (krypto.Token, VerificationToken, error) {
	token, err := krypto.GenerateToken()
	if err != nil {
		return krypto.Token{}, VerificationToken{}, err
	}

	record := VerificationToken{
		ID:          uuid.New(),
		UserID:      userID,
		Email:       addr,
		Fingerprint: token.Fingerprint(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.TokenValidity),
		Verified:    false,
	}

	err = tx.CreateToken(&record)
	if err != nil {
		return krypto.Token{}, VerificationToken{}, err
	}

	return token, record, nil
}

func (s *Service) sendVerificationEmail(ctx context.Context, a Account, token krypto.Token, record VerificationToken) error {
	return s.emailer.Send(ctx, VerificationTemplate, a.Email, VerificationEmail{
		Name:      a.Name,
		Email:     a.Email,
		Token:     token,
		ExpiresAt: record.ExpiresAt,
	})
}

// VerifyToken looks up the token for the given email address and reports its
// status. It does not modify any state.
//
// A token that belongs to a different email address is reported as not found.
func (s *Service) VerifyToken(ctx context.Context, token krypto.Token, addr email.Address) (Verification, error) {
	var tokens []VerificationToken
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		tokens, txErr = tx.FindTokens(&TokenFilter{
			Fingerprints: []krypto.Fingerprint{token.Fingerprint()},
			Emails:       []email.Address{addr},
		})
		return txErr
	})
	if err != nil {
		return Verification{}, err
	}

	if len(tokens) != 1 {
		return Verification{Status: StatusNotFound}, nil
	}

	tok := tokens[0]
	switch {
	case tok.IsExpired(s.NowFunc()):
		return Verification{Status: StatusExpired}, nil
	case tok.Verified:
		return Verification{Status: StatusAlreadyVerified, Token: tok}, nil
	default:
		return Verification{Status: StatusValid, Token: tok}, nil
	}
}

// ConsumeToken marks the token as verified and activates the account it belongs to.
//
// Only one call can ever mark a token as verified, all others (including
// concurrent ones) result in ConsumeAlreadyVerified without side effects.
// After consuming, the other expired or verified tokens for the same email
// address are deleted. The consumed token itself is kept so that repeated
// verification attempts are reported as already verified.
func (s *Service) ConsumeToken(ctx context.Context, tok VerificationToken) (ConsumeResult, error) {
	result := ConsumeAlreadyVerified

	err := s.inTx(ctx, func(tx Tx) error {
		now := s.NowFunc()

		marked, err := tx.MarkTokenVerified(tok.ID)
		if err != nil {
			return err
		}

		if !marked {
			return nil
		}

		accounts, err := tx.FindAccounts(&AccountFilter{
			IDs: []uuid.UUID{tok.UserID},
		})
		if err != nil {
			return err
		}

		if len(accounts) != 1 {
			return fmt.Errorf("account of token: %w", errorz.ErrNotFound)
		}

		account := accounts[0]
		if !account.IsActive {
			account.IsActive = true
			account.UpdatedAt = now

			err = tx.UpdateAccount(&account)
			if err != nil {
				return err
			}
		}

		_, err = tx.DeleteSupersededTokens(tok.Email, now, tok.ID)
		if err != nil {
			return err
		}

		result = ConsumeVerified
		return nil
	})
	if err != nil {
		return 0, err
	}

	return result, nil
}

// PurgeExpired deletes all expired tokens and returns how many were deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	var n int
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		n, txErr = tx.DeleteExpiredTokens(s.NowFunc())
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	return tx.Commit()
}

func ptr[T any](v T) *T {
	return &v
}
