package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// constraintFields maps unique constraints to the field they guard.
var constraintFields = map[string]string{
	"invoices_invoice_number_key": "invoice_number",
}

func storageErr(op string, err error) error {
	return &core.StorageError{Op: op, Err: err}
}

// translate maps a driver error to the core taxonomy. value is reported on
// conflicts so callers can tell which candidate collided.
func translate(op, resource, id, value string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &core.NotFoundError{Resource: resource, ID: id}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		field := constraintFields[pgErr.ConstraintName]
		if field == "" {
			field = pgErr.ConstraintName
		}
		return &core.ConflictError{Resource: resource, Field: field, Value: value, Err: err}
	}

	return storageErr(op, err)
}
