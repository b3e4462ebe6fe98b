package krypto_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/mailverify/internal/krypto"
)

func Test_GenerateToken(t *testing.T) {
	t.Run("ok, tokens are unique", func(t *testing.T) {
		seen := make(map[krypto.Token]struct{})
		for i := 0; i < 100; i++ {
			tok := must(krypto.GenerateToken())
			if _, ok := seen[tok]; ok {
				t.Fatalf("generated duplicate token %d", i)
			}
			seen[tok] = struct{}{}
		}
	})
}

func Test_ParseToken(t *testing.T) {
	t.Run("ok, round trip through string", func(t *testing.T) {
		tok := must(krypto.GenerateToken())

		got, err := krypto.ParseToken(tok.String())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got != tok {
			t.Errorf("got %x, want %x", got, tok)
		}
	})

	failCases := map[string]string{
		"empty string":          "",
		"garbage":               "garbage",
		"too short":             "0102030405060708091011121314151617181920212223242526272829303132"[:63],
		"too long":              "0102030405060708091011121314151617181920212223242526272829303132" + "0",
		"invalid hex character": "z102030405060708091011121314151617181920212223242526272829303132",
	}

	for name, raw := range failCases {
		t.Run("fail, "+name, func(t *testing.T) {
			_, err := krypto.ParseToken(raw)
			if !errors.Is(err, krypto.ErrInvalidToken) {
				t.Fatalf("got %v, want %v (via errors.Is)", err, krypto.ErrInvalidToken)
			}
		})
	}
}

func Test_Token_Fingerprint(t *testing.T) {
	tok := must(krypto.ParseToken("0102030405060708091011121314151617181920212223242526272829303132"))

	t.Run("ok, deterministic", func(t *testing.T) {
		if tok.Fingerprint() != tok.Fingerprint() {
			t.Fatalf("fingerprints of the same token differ")
		}
	})

	t.Run("ok, does not contain the token", func(t *testing.T) {
		if strings.Contains(tok.Fingerprint().String(), tok.String()) {
			t.Fatalf("fingerprint contains the raw token")
		}
	})

	t.Run("ok, different tokens have different fingerprints", func(t *testing.T) {
		other := must(krypto.GenerateToken())
		if tok.Fingerprint() == other.Fingerprint() {
			t.Fatalf("expected different fingerprints")
		}
	})

	t.Run("ok, scan from string", func(t *testing.T) {
		var got krypto.Fingerprint
		err := got.Scan(tok.Fingerprint().String())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got != tok.Fingerprint() {
			t.Errorf("got %s, want %s", got, tok.Fingerprint())
		}
	})

	t.Run("fail, scan invalid value", func(t *testing.T) {
		var got krypto.Fingerprint
		err := got.Scan("abc")
		if !errors.Is(err, krypto.ErrInvalidFingerprint) {
			t.Fatalf("got %v, want %v (via errors.Is)", err, krypto.ErrInvalidFingerprint)
		}
	})
}

func Test_Token_PreventExposure(t *testing.T) {
	tok := must(krypto.GenerateToken())

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("attempting to log a token", "token", tok)

	s := buf.String()
	if !strings.Contains(s, krypto.SecretMarker) {
		t.Errorf("log output\n%s\ndoes not contain secret marker: %s", s, krypto.SecretMarker)
	}

	if strings.Contains(s, tok.String()) {
		t.Errorf("log output\n%s\ncontains raw token", s)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
