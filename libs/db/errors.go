package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports a unique index conflict, optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pgerrcode.UniqueViolation, constraint)
}

func IsCheckViolation(err error) bool {
	return hasCode(err, pgerrcode.CheckViolation, "")
}

// IsInvalidText reports a value the column type could not parse, such as a malformed uuid.
func IsInvalidText(err error) bool {
	return hasCode(err, pgerrcode.InvalidTextRepresentation, "")
}

func hasCode(err error, code string, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
