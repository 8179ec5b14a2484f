package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"storefront/internal/apperror"
)

const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgInvalidTextInput     = "22P02"
	pgForeignKeyViolation  = "23503"
	pgNumericOutOfRange    = "22003"
	pgStringDataRightTrunc = "22001"
)

// constraintFields names the request field behind a unique constraint
var constraintFields = map[string]string{
	"users_name_key":           "name",
	"users_email_key":          "email",
	"categories_name_key":      "name",
	"products_name_key":        "name",
	"reviews_user_product_key": "product",
}

var constraintMessages = map[string]string{
	"reviews_user_product_key": "You have already reviewed this product",
	"products_count_check":     "Not enough products in stock",
}

// translate maps driver errors onto the apperror taxonomy. Errors that are not
// PostgreSQL errors are returned unchanged.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		field := fieldForConstraint(pgErr.ConstraintName, pgErr.TableName)
		message, ok := constraintMessages[pgErr.ConstraintName]
		if !ok {
			message = "Duplicate field value. Please use another value!"
		}
		return &apperror.Error{
			Kind:    apperror.KindConflict,
			Message: message,
			Fields:  []apperror.FieldError{{Field: field, Message: field + " is already used"}},
			Err:     err,
		}
	case pgCheckViolation:
		if message, ok := constraintMessages[pgErr.ConstraintName]; ok {
			return apperror.Wrap(apperror.KindConflict, message, err)
		}
		return &apperror.Error{
			Kind:    apperror.KindValidation,
			Message: "Invalid input data",
			Fields: []apperror.FieldError{{
				Field:   checkField(pgErr.ConstraintName, pgErr.TableName),
				Message: "value is out of the allowed range",
			}},
			Err: err,
		}
	case pgInvalidTextInput, pgNumericOutOfRange, pgStringDataRightTrunc:
		return apperror.Wrap(apperror.KindValidation, "Invalid input data", err)
	case pgForeignKeyViolation:
		return apperror.Wrap(apperror.KindNotFound, "Referenced document not found", err)
	}
	return err
}

func fieldForConstraint(constraint, table string) string {
	if field, ok := constraintFields[constraint]; ok {
		return field
	}
	field := strings.TrimPrefix(constraint, table+"_")
	return strings.TrimSuffix(field, "_key")
}

func checkField(constraint, table string) string {
	field := strings.TrimPrefix(constraint, table+"_")
	return strings.TrimSuffix(field, "_check")
}
