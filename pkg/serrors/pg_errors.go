package serrors

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MapDBError translates low-level Postgres constraint failures into stable
// coded errors. Unrecognized errors pass through untouched.
func MapDBError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return NewError("ALREADY_EXISTS", "record already exists").
			WithTemplateData(map[string]string{"constraint": pgErr.ConstraintName})
	case pgForeignKeyViolation:
		return NewError("NOT_FOUND", "referenced record does not exist").
			WithTemplateData(map[string]string{"constraint": pgErr.ConstraintName})
	case pgCheckViolation:
		return NewError("INVALID", "record violates a data constraint").
			WithTemplateData(map[string]string{"constraint": pgErr.ConstraintName})
	}
	return err
}
