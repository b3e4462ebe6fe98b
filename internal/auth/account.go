package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/mailverify/internal/email"
)

// ErrAlreadyActive is returned when verification is started for an account
// that has already been activated.
var ErrAlreadyActive = errors.New("account already active")

// Account is the account that is activated by verifying its email address.
type Account struct {
	ID        uuid.UUID
	Email     email.Address
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registration is the input for starting the verification of an email address.
type Registration struct {
	Email email.Address `schema:"email" json:"email"`
	Name  string        `schema:"name" json:"name"`
}
