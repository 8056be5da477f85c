package errors

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from a unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError instances:
//   - context deadline / cancellation → Timeout / Canceled
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - check and NOT NULL violations → Validation
//   - connection failures → Unavailable
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database request was canceled", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "record not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return &AppError{Code: ErrCodeUnavailable, Message: "database unavailable", Cause: err}
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "record already exists",
			Field:   violatedField(pgErr),
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.CheckViolation, pgErr.Code == pgerrcode.NotNullViolation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "invalid value",
			Field:   violatedField(pgErr),
			Cause:   pgErr,
		}
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgErr.Code == pgerrcode.AdminShutdown,
		pgErr.Code == pgerrcode.CannotConnectNow,
		pgErr.Code == pgerrcode.TooManyConnections:
		return &AppError{Code: ErrCodeUnavailable, Message: "database unavailable", Cause: pgErr}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
	}
}

// violatedField prefers the column metadata, then the detail message, then the constraint
// name ("profiles_email_key" → "email").
func violatedField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return inferFieldFromConstraint(pgErr.ConstraintName)
}

// inferFieldFromConstraint handles the "<table>_<field>_<suffix>" naming Postgres uses by
// default. Multi-column and expression constraints yield "".
func inferFieldFromConstraint(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) != 3 {
		return ""
	}
	switch strings.ToLower(parts[1]) {
	case "lower", "upper", "trim":
		return ""
	}
	return parts[1]
}
