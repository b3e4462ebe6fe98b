package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/willemschots/mailverify/internal/auth"
	"github.com/willemschots/mailverify/internal/csrf"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/errorz"
	"github.com/willemschots/mailverify/internal/krypto"
)

// outcome is the terminal state of a verification request.
type outcome int

const (
	outcomeServerError outcome = iota
	outcomeTooManyRequests
	outcomeForbidden
	outcomeBadRequest
	outcomeInvalidToken
	outcomeAlreadyVerified
	outcomeVerified
)

type verifyResult struct {
	outcome    outcome
	retryAfter int
}

// verifyMode configures the pipeline for one of the verification endpoints.
type verifyMode struct {
	scope       string
	limit       int
	requireCSRF bool
	decode      func(r *http.Request) (verifyInput, error)
}

type verifyInput struct {
	Token string `schema:"token" json:"token"`
	Email string `schema:"email" json:"email"`
}

// errMalformedToken is returned for tokens that can't have been issued by us.
var errMalformedToken = errors.New("malformed token")

func (in verifyInput) parse() (krypto.Token, email.Address, error) {
	var invalid errorz.InvalidInput
	if in.Token == "" {
		invalid = append(invalid, errorz.Keyed{Key: "token", Err: errMissing})
	}

	var addr email.Address
	if in.Email == "" {
		invalid = append(invalid, errorz.Keyed{Key: "email", Err: errMissing})
	} else {
		var err error
		addr, err = email.ParseAddress(in.Email)
		if err != nil {
			invalid = append(invalid, errorz.Keyed{Key: "email", Err: err})
		}
	}

	if len(invalid) > 0 {
		return krypto.Token{}, "", invalid
	}

	tok, err := krypto.ParseToken(in.Token)
	if err != nil {
		return krypto.Token{}, "", errMalformedToken
	}

	return tok, addr, nil
}

// verifyPipeline runs a verification request through the rate limiter, the
// CSRF check and the token checks. It doesn't write to the response.
func (s *Server) verifyPipeline(r *http.Request, mode verifyMode) verifyResult {
	logger := s.deps.Logger.With("path", r.URL.Path)

	d, err := s.allow(r, mode.scope, mode.limit)
	if err != nil {
		logger.Error("failed to check rate limit", "error", err)
		return verifyResult{outcome: outcomeServerError}
	}

	if !d.Allowed {
		return verifyResult{outcome: outcomeTooManyRequests, retryAfter: d.RetryAfterSeconds()}
	}

	if mode.requireCSRF && !csrf.ValidateRequest(r) {
		logger.Warn("csrf validation failed", "key", s.clientKey(r))
		return verifyResult{outcome: outcomeForbidden}
	}

	in, err := mode.decode(r)
	if err != nil {
		logger.Info("failed to decode verification request", "error", err)
		return verifyResult{outcome: outcomeBadRequest}
	}

	tok, addr, err := in.parse()
	if errors.Is(err, errMalformedToken) {
		logger.Info("malformed verification token", "email", in.Email)
		return verifyResult{outcome: outcomeInvalidToken}
	}
	if err != nil {
		logger.Info("invalid verification request", "error", err)
		return verifyResult{outcome: outcomeBadRequest}
	}

	logger = logger.With("email", addr)

	v, err := s.deps.AuthService.VerifyToken(r.Context(), tok, addr)
	if err != nil {
		logger.Error("failed to verify token", "error", err)
		return verifyResult{outcome: outcomeServerError}
	}

	switch v.Status {
	case auth.StatusNotFound:
		logger.Info("verification token not found")
		return verifyResult{outcome: outcomeInvalidToken}
	case auth.StatusExpired:
		logger.Info("verification token expired")
		return verifyResult{outcome: outcomeInvalidToken}
	case auth.StatusAlreadyVerified:
		logger.Info("email already verified")
		return verifyResult{outcome: outcomeAlreadyVerified}
	}

	res, err := s.deps.AuthService.ConsumeToken(r.Context(), v.Token)
	if err != nil {
		logger.Error("failed to consume token", "error", err)
		return verifyResult{outcome: outcomeServerError}
	}

	if res == auth.ConsumeAlreadyVerified {
		logger.Info("email already verified by concurrent request")
		return verifyResult{outcome: outcomeAlreadyVerified}
	}

	logger.Info("email verified", "userID", v.Token.UserID)
	return verifyResult{outcome: outcomeVerified}
}

func (s *Server) verifyGet(w http.ResponseWriter, r *http.Request) {
	// The GET pattern also matches HEAD. Link scanners send those and must
	// not consume the token.
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	res := s.verifyPipeline(r, verifyMode{
		scope: "verify-get",
		limit: s.cfg.RateLimits.VerifyGet,
		decode: func(r *http.Request) (verifyInput, error) {
			var in verifyInput
			err := s.decoder.Decode(&in, r.URL.Query())
			return in, decodeError(err)
		},
	})

	switch res.outcome {
	case outcomeTooManyRequests:
		err := writeTooManyRequests(w, res.retryAfter)
		if err != nil {
			s.deps.Logger.Error("failed to write response", "path", r.URL.Path, "error", err)
		}
	case outcomeVerified, outcomeAlreadyVerified:
		http.Redirect(w, r, "/login?verified=true", http.StatusFound)
	case outcomeBadRequest:
		redirectError(w, r, "invalid_params")
	case outcomeInvalidToken:
		redirectError(w, r, "invalid_token")
	default:
		redirectError(w, r, "server_error")
	}
}

func (s *Server) verifyPost(w http.ResponseWriter, r *http.Request) {
	res := s.verifyPipeline(r, verifyMode{
		scope:       "verify-post",
		limit:       s.cfg.RateLimits.VerifyPost,
		requireCSRF: true,
		decode: func(r *http.Request) (verifyInput, error) {
			var in verifyInput
			err := decodeJSON(r, &in)
			return in, err
		},
	})

	var err error
	switch res.outcome {
	case outcomeTooManyRequests:
		err = writeTooManyRequests(w, res.retryAfter)
	case outcomeForbidden:
		err = writeJSON(w, http.StatusForbidden, errorResponse{Error: "Invalid CSRF token."})
	case outcomeBadRequest:
		err = writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing or invalid token or email."})
	case outcomeInvalidToken:
		err = writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid or expired verification token."})
	case outcomeAlreadyVerified:
		err = writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Email already verified."})
	case outcomeVerified:
		err = writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Email verified successfully."})
	default:
		err = writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error."})
	}

	if err != nil {
		s.deps.Logger.Error("failed to write response", "path", r.URL.Path, "error", err)
	}
}

func redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/auth/error?error="+url.QueryEscape(code), http.StatusFound)
}
