package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/enquiry-gateway/internal/data/pgxutil"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	apperrors "github.com/target/enquiry-gateway/internal/errors"
)

// revocationRetention is how long after token expiry an audit entry is kept.
const revocationRetention = 30 * 24 * time.Hour

// Revocation is one audited operator revocation.
type Revocation struct {
	TokenID   string
	SubjectID string
	Reason    string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// RevocationLogRepo keeps the audit trail of operator revocations. Enforcement happens in the
// Redis revocation store; this table only answers "who revoked what".
type RevocationLogRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRevocationLogRepo creates a RevocationLogRepo on db.
func NewRevocationLogRepo(db *sql.DB) *RevocationLogRepo {
	return &RevocationLogRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// Record stores the revocation of tok. Recording the same token twice keeps the first entry
// and reports false.
func (r *RevocationLogRepo) Record(ctx context.Context, tok domainauth.SessionToken, reason string) (bool, error) {
	if tok.ID == "" || tok.SubjectID == "" {
		return false, apperrors.Validation("token id and subject are required")
	}
	var inserted bool
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO session_revocations (token_id, subject_id, reason, expires_at, revoked_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (token_id) DO NOTHING
		`, tok.ID, tok.SubjectID, strings.TrimSpace(reason), tok.ExpiresAt.UTC(), r.timeProvider.Now().UTC())
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() == 1
		if !inserted {
			return nil
		}
		// Entries whose tokens expired long ago carry no information.
		_, err = tx.Exec(ctx, `DELETE FROM session_revocations WHERE expires_at < $1`,
			r.timeProvider.Now().UTC().Add(-revocationRetention))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("record revocation: %w", apperrors.MapDBError(err))
	}
	return inserted, nil
}

// ListBySubject returns the subject's revocations, newest first.
func (r *RevocationLogRepo) ListBySubject(ctx context.Context, subjectID string) ([]Revocation, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, apperrors.ValidationField("subject_id", "subject id is required")
	}
	var out []Revocation
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT token_id, subject_id, reason, expires_at, revoked_at
			FROM session_revocations
			WHERE subject_id = $1
			ORDER BY revoked_at DESC, token_id
		`, subjectID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Revocation, error) {
			var rv Revocation
			err := row.Scan(&rv.TokenID, &rv.SubjectID, &rv.Reason, &rv.ExpiresAt, &rv.RevokedAt)
			return rv, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
