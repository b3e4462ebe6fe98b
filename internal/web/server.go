package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/willemschots/mailverify/internal"
	"github.com/willemschots/mailverify/internal/auth"
	"github.com/willemschots/mailverify/internal/csrf"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/krypto"
	"github.com/willemschots/mailverify/internal/ratelimit"
)

// AuthService is the part of the auth service the server depends on.
type AuthService interface {
	VerifyToken(ctx context.Context, token krypto.Token, addr email.Address) (auth.Verification, error)
	ConsumeToken(ctx context.Context, tok auth.VerificationToken) (auth.ConsumeResult, error)
	ResendVerification(ctx context.Context, addr email.Address)
}

// Limiter limits the number of requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger      *slog.Logger
	AuthService AuthService
	Limiter     Limiter
}

// RateLimits configures the number of requests a client can make per window.
type RateLimits struct {
	Window     time.Duration
	VerifyGet  int
	VerifyPost int
	Resend     int
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	SecureCookie bool
	// TrustProxy makes the server identify clients by the last address in
	// the X-Forwarded-For header. Only enable this behind a single proxy that
	// appends the peer address to it.
	TrustProxy bool
	RateLimits RateLimits
}

type Server struct {
	deps    *ServerDeps
	cfg     ServerConfig
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		decoder: decoder,
	}

	s.mux.Handle("GET /verify", http.HandlerFunc(s.verifyGet))
	s.mux.Handle("POST /api/verify", http.HandlerFunc(s.verifyPost))

	{
		const route = "POST /verify/resend"
		h := mapRequest(s, func(ctx context.Context, in resendInput) error {
			s.deps.AuthService.ResendVerification(ctx, in.Email)
			return nil
		})
		h.request(s.resendRequest)
		h.response(func(r result[resendInput, struct{}]) error {
			return writeJSON(r.w, http.StatusAccepted, successResponse{
				Success: true,
				Message: "If the address belongs to an unverified account, a new verification email is on its way.",
			})
		})

		s.mux.Handle(route, s.limited("resend", cfg.RateLimits.Resend, csrfProtected(s, h)))
	}

	{
		const route = "GET /healthz"
		h := mapResponse(s, func(ctx context.Context) (health, error) {
			return health{Status: "ok", Revision: internal.Build.Revision}, nil
		})

		s.mux.Handle(route, h)
	}

	// Wrap the mux with global middlewares.
	middlewares := []func(http.Handler) http.Handler{
		csrf.IssueCookie(csrf.CookieConfig{Secure: cfg.SecureCookie}, s.handleError),
	}

	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type health struct {
	Status   string `json:"status"`
	Revision string `json:"revision"`
}
