package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/willemschots/mailverify/assets"
	"github.com/willemschots/mailverify/internal"
	"github.com/willemschots/mailverify/internal/auth"
	authdb "github.com/willemschots/mailverify/internal/auth/db"
	"github.com/willemschots/mailverify/internal/db"
	"github.com/willemschots/mailverify/internal/db/migrate"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/email/postmark"
	"github.com/willemschots/mailverify/internal/email/view"
	"github.com/willemschots/mailverify/internal/ratelimit"
	"github.com/willemschots/mailverify/internal/web"
	"github.com/willemschots/mailverify/migrations"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	err := loadEnvFile()
	if err != nil {
		logger.Error("failed to load env file", "error", err)
		return 1
	}

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	sqlDB, err := db.OpenSQLite(cfg.db.file)
	if err != nil {
		logger.Error("failed to open database", "error", err, "file", cfg.db.file)
		return 1
	}

	defer func() {
		err := sqlDB.Close()
		if err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.db.migrate {
		logger.Info("attempting to migrate database", "file", cfg.db.file)

		ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{
			AppVersion: internal.Build.Revision,
			Timestamp:  internal.Build.RevisionTime,
		})
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}

		for _, m := range ran {
			logger.Info("migration ran", "version", m.Version, "filename", m.Filename)
		}
	}

	emailService := email.NewService(emailRenderer(logger, cfg), emailSender(logger, cfg), cfg.email.service)

	authService := auth.NewService(authdb.New(sqlDB), emailService, func(err error) {
		logger.Error("error in auth service worker", "error", err)
	}, cfg.auth)

	limitStore, closeStore, err := rateLimitStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to create rate limit store", "error", err)
		return 1
	}
	defer closeStore()

	server := web.NewServer(&web.ServerDeps{
		Logger:      logger,
		AuthService: authService,
		Limiter:     ratelimit.New(limitStore),
	}, cfg.http.server)

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      server,
	}

	// We need to run three tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.
	// - Periodically purging expired tokens.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.http.addr, "build", internal.Build)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutines.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		purgeExpired(gCtx, logger, authService, cfg.db.purgeInterval)
		return nil
	})

	err = g.Wait()

	// Let running workers finish before the database is closed.
	authService.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

func emailRenderer(logger *slog.Logger, cfg config) email.Renderer {
	if cfg.email.templateDir != "" {
		logger.Info("loading email templates from disk", "dir", cfg.email.templateDir)
		return view.NewReloadingFSRenderer(os.DirFS(cfg.email.templateDir))
	}

	return view.NewFSRenderer(assets.EmailFS)
}

func emailSender(logger *slog.Logger, cfg config) email.Sender {
	if cfg.email.sender == senderPostmark {
		logger.Info("sending emails via postmark", "apiURL", cfg.email.postmark.APIURL.String())
		return postmark.NewSender(&http.Client{Timeout: 10 * time.Second}, cfg.email.postmark)
	}

	logger.Warn("logging emails instead of sending them")
	return email.NewLogSender(logger)
}

// rateLimitStore returns the counter store for the rate limiter and a
// function that releases its resources.
func rateLimitStore(ctx context.Context, logger *slog.Logger, cfg config) (ratelimit.CounterStore, func(), error) {
	if cfg.rateLimit.redisAddr == "" {
		logger.Info("using in-memory rate limit store")
		return ratelimit.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.rateLimit.redisAddr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	logger.Info("using redis rate limit store", "addr", cfg.rateLimit.redisAddr)

	return ratelimit.NewRedisStore(client, "mailverify:ratelimit:"), func() {
		err := client.Close()
		if err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}, nil
}

// purgeExpired deletes expired tokens every interval until ctx is done.
func purgeExpired(ctx context.Context, logger *slog.Logger, svc *auth.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Error("failed to purge expired tokens", "error", err)
				continue
			}

			logger.Info("purged expired tokens", "count", n)
		}
	}
}
