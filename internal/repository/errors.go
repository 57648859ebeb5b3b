package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DuplicateError reports a uniqueness violation on a named field.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Field, e.Value)
}

// IsDuplicate reports whether err is a uniqueness violation, optionally on a
// specific field.
func IsDuplicate(err error, field string) bool {
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		return false
	}
	return field == "" || dup.Field == field
}

const (
	pgUniqueViolation   = "23505"
	pgForeignKey        = "23503"
	pgInvalidTextFormat = "22P02"
)

// constraintFields maps unique index names from the migrations to API fields.
var constraintFields = map[string]string{
	"applications_registration_number_key": "registrationNumber",
	"applications_engine_number_key":       "engineNumber",
	"applications_chassis_number_key":      "chassisNumber",
	"applications_route_number_key":        "routeNumber",
	"users_email_key":                      "email",
}

// translate converts driver errors into repository errors. values supplies
// the offending value per field for duplicate reporting.
func translate(err error, values map[string]string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		field, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ConstraintName
		}
		return &DuplicateError{Field: field, Value: values[field]}
	case pgForeignKey, pgInvalidTextFormat:
		return ErrNotFound
	}
	return err
}
