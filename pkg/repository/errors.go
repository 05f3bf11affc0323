package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes for integrity violations.
const (
	codeNotNull    = "23502"
	codeForeignKey = "23503"
	codeUnique     = "23505"
	codeCheck      = "23514"
)

// Errors maps storage failures onto a domain's sentinel errors. A nil field
// leaves the matching failure unmapped.
type Errors struct {
	// NotFound replaces sql.ErrNoRows and foreign key violations.
	NotFound error
	// Duplicate replaces unique violations.
	Duplicate error
	// Invalid replaces check and not-null violations.
	Invalid error
}

// Map translates err. Constraint violations keep the constraint name in the
// message; anything unrecognized is returned unchanged.
func (e Errors) Map(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) && e.NotFound != nil {
		return e.NotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	var sentinel error
	switch pgErr.Code {
	case codeForeignKey:
		sentinel = e.NotFound
	case codeUnique:
		sentinel = e.Duplicate
	case codeCheck, codeNotNull:
		sentinel = e.Invalid
	}
	if sentinel == nil {
		return err
	}
	if pgErr.ConstraintName == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, pgErr.ConstraintName)
}
