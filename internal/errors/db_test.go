package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError(t *testing.T) {
	plain := errors.New("plain")
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique with column",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "subject_id"},
			wantCode:  ErrCodeConflict,
			wantField: "subject_id",
		},
		{
			name:      "unique with detail",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: `Key (email)=(a@b.c) already exists.`},
			wantCode:  ErrCodeConflict,
			wantField: "email",
		},
		{
			name:      "unique from constraint name",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "profiles_pkey_key"},
			wantCode:  ErrCodeConflict,
			wantField: "pkey",
		},
		{
			name:     "expression index yields no field",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "profiles_lower_idx"},
			wantCode: ErrCodeConflict,
		},
		{
			name:      "check violation",
			err:       &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "profiles_role_check"},
			wantCode:  ErrCodeValidation,
			wantField: "role",
		},
		{
			name:      "not null",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "role"},
			wantCode:  ErrCodeValidation,
			wantField: "role",
		},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, wantCode: ErrCodeUnavailable},
		{name: "other pg error", err: &pgconn.PgError{Code: pgerrcode.DivisionByZero}, wantCode: ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			assert.Equal(t, tt.wantCode, GetCode(got))
			assert.Equal(t, tt.wantField, GetField(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, MapDBError(nil))
	assert.Same(t, plain, MapDBError(plain))
}

func TestInferFieldFromConstraint(t *testing.T) {
	assert.Equal(t, "email", inferFieldFromConstraint("profiles_email_key"))
	assert.Empty(t, inferFieldFromConstraint("profiles_email_role_key"))
	assert.Empty(t, inferFieldFromConstraint(""))
	assert.Empty(t, inferFieldFromConstraint("profiles_upper_idx"))
}
