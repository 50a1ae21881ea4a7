package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the repositories translate into domain errors.
const (
	CodeForeignKeyViolation  = "23503"
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeExclusionViolation   = "23P01"
	CodeSerializationFailure = "40001"
)

// ErrorCode returns the SQLSTATE of a PostgreSQL error, or "" for other errors.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ConstraintName returns the violated constraint of a PostgreSQL error, if any.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return ErrorCode(err) == CodeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return ErrorCode(err) == CodeForeignKeyViolation
}

// IsOverlapRejection reports whether err came from an exclusion constraint or a
// serializable transaction that lost a race with a concurrent writer.
func IsOverlapRejection(err error) bool {
	code := ErrorCode(err)
	return code == CodeExclusionViolation || code == CodeSerializationFailure
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
