package web

import (
	"net/http"

	"github.com/willemschots/mailverify/internal/csrf"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/errorz"
)

type resendInput struct {
	Email email.Address `schema:"email" json:"email"`
}

func (s *Server) resendRequest(r *http.Request) (resendInput, error) {
	in, err := decodeRequest[resendInput](s, r)
	if err != nil {
		return in, err
	}

	if in.Email == "" {
		return in, errorz.InvalidInput{errorz.Keyed{Key: "email", Err: errMissing}}
	}

	return in, nil
}

// csrfProtected rejects requests that fail the CSRF check.
func csrfProtected(s *Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !csrf.ValidateRequest(r) {
			s.deps.Logger.Warn("csrf validation failed", "key", s.clientKey(r), "path", r.URL.Path)
			_ = writeJSON(w, http.StatusForbidden, errorResponse{Error: "Invalid CSRF token."})
			return
		}

		next.ServeHTTP(w, r)
	})
}
