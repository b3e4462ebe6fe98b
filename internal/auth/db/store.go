package db

import (
	"context"
	"database/sql"

	"github.com/willemschots/mailverify/internal/auth"
	"github.com/willemschots/mailverify/internal/errorz"
)

// Store is responsible for interacting with a database.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}
	return &Tx{
		tx: tx,
	}, nil
}
