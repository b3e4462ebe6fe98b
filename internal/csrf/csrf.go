// Package csrf implements double submit cookie protection: a random value is
// set as a cookie, and state changing requests must echo it in a header.
package csrf

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/willemschots/mailverify/internal/krypto"
)

const (
	CookieName = "csrf_token"
	HeaderName = "X-CSRF-Token"
)

// Validate reports whether the cookie and header values are equal and non-empty.
// Values of equal length are compared in constant time.
func Validate(cookieValue, headerValue string) bool {
	if cookieValue == "" || headerValue == "" {
		return false
	}

	// Only the length can leak, which is the same for all valid tokens.
	if len(cookieValue) != len(headerValue) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) == 1
}

// ValidateRequest validates the CSRF cookie and header of r.
func ValidateRequest(r *http.Request) bool {
	var cookieValue string
	if c, err := r.Cookie(CookieName); err == nil {
		cookieValue = c.Value
	}

	return Validate(cookieValue, r.Header.Get(HeaderName))
}

// GenerateToken generates a new random CSRF token.
func GenerateToken() (string, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return tok.String(), nil
}

// CookieConfig configures the cookie set by IssueCookie.
type CookieConfig struct {
	Secure bool
	Path   string
}

// IssueCookie is middleware that sets a new CSRF cookie on safe requests
// that don't carry one yet. The cookie is readable by scripts, they need
// to copy it into the header.
func IssueCookie(cfg CookieConfig, errHandler func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	path := cfg.Path
	if path == "" {
		path = "/"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
				next.ServeHTTP(w, r)
				return
			}

			tok, err := GenerateToken()
			if err != nil {
				errHandler(w, r, err)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    tok,
				Path:     path,
				Secure:   cfg.Secure,
				HttpOnly: false,
				SameSite: http.SameSiteLaxMode,
			})

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
