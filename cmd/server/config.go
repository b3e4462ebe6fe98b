package main

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/willemschots/mailverify/internal/auth"
	"github.com/willemschots/mailverify/internal/email"
	"github.com/willemschots/mailverify/internal/email/postmark"
	"github.com/willemschots/mailverify/internal/krypto"
	"github.com/willemschots/mailverify/internal/web"
)

const (
	senderLog      = "log"
	senderPostmark = "postmark"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	server          web.ServerConfig
}

type dbConfig struct {
	file    string
	migrate bool
	// purgeInterval is how often expired tokens are deleted.
	purgeInterval time.Duration
}

type emailConfig struct {
	sender string
	// templateDir loads templates from disk on every render when set.
	templateDir string
	service     email.ServiceConfig
	postmark    postmark.Settings
}

type rateLimitConfig struct {
	// redisAddr selects the redis store, the in-memory store is used when empty.
	redisAddr string
}

// config is the configuration for the server command.
type config struct {
	http      httpConfig
	db        dbConfig
	auth      auth.ServiceConfig
	email     emailConfig
	rateLimit rateLimitConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			server: web.ServerConfig{
				SecureCookie: true,
				TrustProxy:   false,
				RateLimits: web.RateLimits{
					Window:     time.Minute,
					VerifyGet:  5,
					VerifyPost: 3,
					Resend:     3,
				},
			},
		},
		db: dbConfig{
			file:          "mailverify.db",
			migrate:       true,
			purgeInterval: time.Hour,
		},
		auth: auth.ServiceConfig{
			WorkerTimeout: time.Second * 10,
			TokenValidity: time.Hour * 72,
		},
		email: emailConfig{
			sender: senderLog,
			service: email.ServiceConfig{
				BaseURL: mustURL("http://localhost:8888"),
			},
			postmark: postmark.Settings{
				APIURL:        mustURL("https://api.postmarkapp.com"),
				MessageStream: "outbound",
			},
		},
	}
}

// requiredEnv are the environment variables without a default.
var requiredEnv = []string{
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.server.SecureCookie)
	},
	"HTTP_TRUST_PROXY": func(v string, c *config) error {
		return confBool(v, &c.http.server.TrustProxy)
	},
	"BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.email.service.BaseURL)
	},
	"DB_FILENAME": func(v string, c *config) error {
		return confNonEmpty(v, &c.db.file)
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"DB_PURGE_INTERVAL": func(v string, c *config) error {
		return confDuration(v, &c.db.purgeInterval, time.Second, math.MaxInt64)
	},
	"TOKEN_VALIDITY": func(v string, c *config) error {
		return confDuration(v, &c.auth.TokenValidity, time.Minute, math.MaxInt64)
	},
	"WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.WorkerTimeout, 0, math.MaxInt64)
	},
	"RATELIMIT_WINDOW": func(v string, c *config) error {
		return confDuration(v, &c.http.server.RateLimits.Window, time.Second, math.MaxInt64)
	},
	"RATELIMIT_VERIFY_GET_MAX": func(v string, c *config) error {
		return confInt(v, &c.http.server.RateLimits.VerifyGet, 1, math.MaxInt32)
	},
	"RATELIMIT_VERIFY_POST_MAX": func(v string, c *config) error {
		return confInt(v, &c.http.server.RateLimits.VerifyPost, 1, math.MaxInt32)
	},
	"RATELIMIT_RESEND_MAX": func(v string, c *config) error {
		return confInt(v, &c.http.server.RateLimits.Resend, 1, math.MaxInt32)
	},
	"RATELIMIT_REDIS_ADDR": func(v string, c *config) error {
		c.rateLimit.redisAddr = v
		return nil
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.service.From = addr
		return nil
	},
	"EMAIL_SENDER": func(v string, c *config) error {
		switch v {
		case senderLog, senderPostmark:
			c.email.sender = v
			return nil
		default:
			return fmt.Errorf("unknown sender %q, expected %q or %q", v, senderLog, senderPostmark)
		}
	},
	"EMAIL_TEMPLATE_DIR": func(v string, c *config) error {
		c.email.templateDir = v
		return nil
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		return confNonEmpty(v, &c.email.postmark.MessageStream)
	},
}

// loadEnvFile loads environment variables from the file named by ENV_FILE,
// or from .env when it's not set. Variables that are already set are not
// overwritten. A missing .env file is not an error.
func loadEnvFile() error {
	file, explicit := os.LookupEnv("ENV_FILE")
	if !explicit {
		file = ".env"
	}

	err := godotenv.Load(file)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file %s: %w", file, err)
	}

	return nil
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredEnv {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if c.email.sender == senderPostmark && c.email.postmark.ServerToken.IsZero() {
		errs = append(errs, errors.New("env variable POSTMARK_SERVER_TOKEN is required when EMAIL_SENDER is postmark"))
	}

	return c, errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confInt(v string, tgt *int, min, max int) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}

	if i < min || i > max {
		return fmt.Errorf("%d not in range [%d, %d] (inclusive)", i, min, max)
	}

	*tgt = i

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

func confNonEmpty(v string, tgt *string) error {
	if v == "" {
		return errors.New("empty value")
	}

	*tgt = v

	return nil
}

// confURL parses an absolute URL.
func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q must have a scheme and host", v)
	}

	*tgt = u

	return nil
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
