package csrf_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/willemschots/mailverify/internal/csrf"
)

func Test_Validate(t *testing.T) {
	const tok = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"

	tests := map[string]struct {
		cookie string
		header string
		want   bool
	}{
		"ok, equal":                {cookie: tok, header: tok, want: true},
		"ok, equal short values":   {cookie: "a", header: "a", want: true},
		"fail, both empty":         {cookie: "", header: "", want: false},
		"fail, empty cookie":       {cookie: "", header: tok, want: false},
		"fail, empty header":       {cookie: tok, header: "", want: false},
		"fail, shorter header":     {cookie: tok, header: tok[:63], want: false},
		"fail, longer header":      {cookie: tok, header: tok + "0", want: false},
		"fail, case differs":       {cookie: tok, header: strings.ToUpper(tok), want: false},
		"fail, first byte differs": {cookie: tok, header: "6" + tok[1:], want: false},
		"fail, last byte differs":  {cookie: tok, header: tok[:63] + "9", want: false},
		"fail, all bytes differ":   {cookie: tok, header: strings.Repeat("0", 64), want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := csrf.Validate(tc.cookie, tc.header)
			if got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}

func Test_Validate_EveryPosition(t *testing.T) {
	tok, err := csrf.GenerateToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	// A difference at any position must be detected, so every byte is compared.
	for i := range tok {
		b := []byte(tok)
		b[i] ^= 0x01

		if csrf.Validate(tok, string(b)) {
			t.Fatalf("difference at position %d not detected", i)
		}
	}
}

func Test_ValidateRequest(t *testing.T) {
	tok, err := csrf.GenerateToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	tests := map[string]struct {
		cookie string
		header string
		want   bool
	}{
		"ok, cookie matches header": {cookie: tok, header: tok, want: true},
		"fail, no cookie":           {header: tok, want: false},
		"fail, no header":           {cookie: tok, want: false},
		"fail, mismatch":            {cookie: tok, header: strings.Repeat("a", len(tok)), want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/verify", nil)
			if tc.cookie != "" {
				r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: tc.cookie})
			}
			if tc.header != "" {
				r.Header.Set(csrf.HeaderName, tc.header)
			}

			if got := csrf.ValidateRequest(r); got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}

func Test_GenerateToken(t *testing.T) {
	a, err := csrf.GenerateToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	b, err := csrf.GenerateToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if len(a) != 64 || a == b {
		t.Errorf("unexpected tokens %q and %q", a, b)
	}
}

func Test_IssueCookie(t *testing.T) {
	mw := csrf.IssueCookie(csrf.CookieConfig{Secure: true}, func(w http.ResponseWriter, r *http.Request, err error) {
		t.Errorf("unexpected error: %v", err)
	})

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("ok, sets cookie on safe request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("expected 1 cookie, got %d", len(cookies))
		}

		c := cookies[0]
		if c.Name != csrf.CookieName || len(c.Value) != 64 || c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
			t.Errorf("unexpected cookie: %+v", c)
		}

		if rec.Code != http.StatusNoContent {
			t.Errorf("got status %d want %d", rec.Code, http.StatusNoContent)
		}
	})

	t.Run("ok, keeps existing cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: "existing"})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("expected no new cookie")
		}
	})

	t.Run("ok, no cookie on unsafe request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("expected no cookie")
		}
	})
}

func BenchmarkValidate(b *testing.B) {
	tok, err := csrf.GenerateToken()
	if err != nil {
		b.Fatalf("failed to generate token: %v", err)
	}

	first := "x" + tok[1:]
	last := tok[:len(tok)-1] + "x"

	b.Run("first byte differs", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			csrf.Validate(tok, first)
		}
	})

	b.Run("last byte differs", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			csrf.Validate(tok, last)
		}
	})
}
