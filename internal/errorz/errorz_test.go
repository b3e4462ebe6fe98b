package errorz_test

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/willemschots/mailverify/internal/errorz"
)

func Test_MapDBErr(t *testing.T) {
	t.Run("ok, nil stays nil", func(t *testing.T) {
		if err := errorz.MapDBErr(nil); err != nil {
			t.Fatalf("got %v, want <nil>", err)
		}
	})

	t.Run("ok, no rows is not found", func(t *testing.T) {
		err := errorz.MapDBErr(fmt.Errorf("query: %w", sql.ErrNoRows))
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("got %v, want %v (via errors.Is)", err, errorz.ErrNotFound)
		}
	})

	t.Run("ok, finished transaction is a bad state", func(t *testing.T) {
		err := errorz.MapDBErr(sql.ErrTxDone)
		if !errors.Is(err, errorz.ErrTxBadState) {
			t.Fatalf("got %v, want %v (via errors.Is)", err, errorz.ErrTxBadState)
		}
	})

	t.Run("ok, other errors pass through", func(t *testing.T) {
		in := errors.New("boom")
		if err := errorz.MapDBErr(in); err != in {
			t.Fatalf("got %v, want %v", err, in)
		}
	})
}

func Test_InvalidInput(t *testing.T) {
	inner := errors.New("required")
	err := error(errorz.InvalidInput{
		errorz.Keyed{Key: "token", Err: inner},
		errorz.Keyed{Key: "email", Err: inner},
	})

	t.Run("ok, unwraps to keyed errors", func(t *testing.T) {
		if !errors.Is(err, inner) {
			t.Fatalf("expected %v to wrap %v", err, inner)
		}

		var keyed errorz.Keyed
		if !errors.As(err, &keyed) || keyed.Key != "token" {
			t.Fatalf("expected first keyed error for token, got %#v", keyed)
		}
	})

	t.Run("ok, keys", func(t *testing.T) {
		var invalid errorz.InvalidInput
		if !errors.As(err, &invalid) {
			t.Fatalf("expected errorz.InvalidInput, got %T", err)
		}

		got := invalid.Keys()
		want := []string{"token", "email"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}
