package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/willemschots/mailverify/internal/ratelimit"
)

const window = time.Minute

// clock controls the time seen by the limiter and, for Redis, the time
// seen by the server.
type clock struct {
	now     time.Time
	advance func(d time.Duration)
}

func (c *clock) Add(d time.Duration) {
	c.now = c.now.Add(d)
	if c.advance != nil {
		c.advance(d)
	}
}

type storeFactory func(t *testing.T, c *clock) ratelimit.CounterStore

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, c *clock) ratelimit.CounterStore {
			return ratelimit.NewMemoryStore()
		},
		"redis": func(t *testing.T, c *clock) ratelimit.CounterStore {
			mr, client := newTestRedis(t)
			c.advance = mr.FastForward
			return ratelimit.NewRedisStore(client, "ratelimit:")
		},
	}
}

func Test_Limiter_Allow(t *testing.T) {
	for name, newStore := range stores() {
		t.Run("ok, "+name+" denies 4th request in window", func(t *testing.T) {
			l, c := newLimiter(t, newStore)

			for i := 0; i < 3; i++ {
				assertAllowed(t, l, "key", true)
				c.Add(time.Second)
			}

			c.Add(7 * time.Second)

			d := allow(t, l, "key")
			if d.Allowed {
				t.Fatalf("expected 4th request to be denied")
			}

			if d.RetryAfter != 50*time.Second {
				t.Errorf("got retry after %v want %v", d.RetryAfter, 50*time.Second)
			}

			if d.RetryAfterSeconds() != 50 {
				t.Errorf("got retry after %ds want 50s", d.RetryAfterSeconds())
			}
		})

		t.Run("ok, "+name+" resets after window", func(t *testing.T) {
			l, c := newLimiter(t, newStore)

			for i := 0; i < 4; i++ {
				allow(t, l, "key")
			}
			assertAllowed(t, l, "key", false)

			c.Add(window + time.Millisecond)

			for i := 0; i < 3; i++ {
				assertAllowed(t, l, "key", true)
			}
			assertAllowed(t, l, "key", false)
		})

		t.Run("ok, "+name+" keys are independent", func(t *testing.T) {
			l, _ := newLimiter(t, newStore)

			for i := 0; i < 3; i++ {
				assertAllowed(t, l, "verify-get:1.2.3.4", true)
			}
			assertAllowed(t, l, "verify-get:1.2.3.4", false)
			assertAllowed(t, l, "verify-post:1.2.3.4", true)
			assertAllowed(t, l, "verify-get:5.6.7.8", true)
		})
	}

	t.Run("fail, redis unavailable", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to run miniredis: %v", err)
		}

		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		l := ratelimit.New(ratelimit.NewRedisStore(client, "ratelimit:"))

		_, err = l.Allow(context.Background(), "key", 3, window)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
	})
}

func Test_MemoryStore(t *testing.T) {
	t.Run("ok, evicts stale keys when limit is exceeded", func(t *testing.T) {
		store := ratelimit.NewMemoryStore()
		c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

		l := ratelimit.New(store)
		l.NowFunc = func() time.Time { return c.now }

		ctx := context.Background()
		for _, key := range []string{"a", "b"} {
			if _, err := l.Allow(ctx, key, 3, window); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		c.Add(2*window + time.Millisecond)

		// Within the limit, nothing is evicted.
		if _, err := l.Allow(ctx, "c", 1, window); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.Len() != 3 {
			t.Fatalf("got %d keys want 3", store.Len())
		}

		d, err := l.Allow(ctx, "c", 1, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if d.Allowed {
			t.Fatalf("expected request to be denied")
		}

		if store.Len() != 1 {
			t.Fatalf("got %d keys want 1", store.Len())
		}
	})

	t.Run("ok, concurrent hits are all counted", func(t *testing.T) {
		const limit = 10

		l := ratelimit.New(ratelimit.NewMemoryStore())

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)

		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				d, err := l.Allow(context.Background(), "key", limit, window)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}

				if d.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}

		wg.Wait()

		if allowed != limit {
			t.Errorf("got %d allowed want %d", allowed, limit)
		}
	})
}

func Test_Decision_RetryAfterSeconds(t *testing.T) {
	tests := map[time.Duration]int{
		0:                       1,
		time.Millisecond:        1,
		time.Second:             1,
		time.Second + 1:         2,
		59*time.Second + 999999: 60,
	}

	for in, want := range tests {
		got := ratelimit.Decision{RetryAfter: in}.RetryAfterSeconds()
		if got != want {
			t.Errorf("%v: got %d want %d", in, got, want)
		}
	}
}

func newLimiter(t *testing.T, newStore storeFactory) (*ratelimit.Limiter, *clock) {
	t.Helper()

	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := ratelimit.New(newStore(t, c))
	l.NowFunc = func() time.Time { return c.now }

	return l, c
}

func allow(t *testing.T, l *ratelimit.Limiter, key string) ratelimit.Decision {
	t.Helper()

	d, err := l.Allow(context.Background(), key, 3, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return d
}

func assertAllowed(t *testing.T, l *ratelimit.Limiter, key string, want bool) {
	t.Helper()

	if got := allow(t, l, key).Allowed; got != want {
		t.Fatalf("%s: got allowed %v want %v", key, got, want)
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return mr, client
}
