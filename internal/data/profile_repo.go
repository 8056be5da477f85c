package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/enquiry-gateway/internal/data/pgxutil"
	domainauth "github.com/target/enquiry-gateway/internal/domain/auth"
	apperrors "github.com/target/enquiry-gateway/internal/errors"
	"github.com/target/enquiry-gateway/internal/ports"
)

var _ ports.ProfileStore = (*ProfileRepo)(nil)

const (
	profileColumns      = `subject_id, role, email, display_name, created_at`
	defaultProfileLimit = 50
	maxProfileLimit     = 500
)

// ProfileRepo is the PostgreSQL ports.ProfileStore.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a ProfileRepo on db.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// CreateProfileRecord inserts p. A record that already exists for the subject counts as
// success, so repeated repairs are harmless.
func (r *ProfileRepo) CreateProfileRecord(ctx context.Context, p ports.Profile) error {
	if strings.TrimSpace(p.SubjectID) == "" {
		return apperrors.ValidationField("subject_id", "subject id is required")
	}
	if !p.Role.Valid() {
		return apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", p.Role))
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = r.timeProvider.Now()
	}
	created = created.UTC()

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO profiles (subject_id, role, email, display_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, p.SubjectID, string(p.Role), strings.TrimSpace(p.Email), strings.TrimSpace(p.DisplayName), created)
		return err
	})
	if err == nil {
		return nil
	}
	mapped := apperrors.MapDBError(err)
	if apperrors.IsConflict(mapped) {
		return nil
	}
	return fmt.Errorf("create profile: %w", mapped)
}

// GetProfile returns the subject's profile or ports.ErrProfileNotFound.
func (r *ProfileRepo) GetProfile(ctx context.Context, subjectID string) (ports.Profile, error) {
	if strings.TrimSpace(subjectID) == "" {
		return ports.Profile{}, apperrors.ValidationField("subject_id", "subject id is required")
	}
	var out ports.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE subject_id = $1`, subjectID)
		var e error
		out, e = scanProfile(row)
		return e
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.Profile{}, ports.ErrProfileNotFound
		}
		return ports.Profile{}, fmt.Errorf("get profile: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// ProfileListOptions filters ListProfiles.
type ProfileListOptions struct {
	Role   domainauth.Role // empty lists every role
	Limit  int
	Offset int
}

// ListProfiles returns profiles ordered by creation time, newest first.
func (r *ProfileRepo) ListProfiles(ctx context.Context, opts ProfileListOptions) ([]ports.Profile, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultProfileLimit
	}
	if limit > maxProfileLimit {
		limit = maxProfileLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + profileColumns + ` FROM profiles`
	args := []any{}
	if opts.Role != "" {
		if !opts.Role.Valid() {
			return nil, apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", opts.Role))
		}
		query += ` WHERE role = $1`
		args = append(args, string(opts.Role))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, subject_id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var out []ports.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func scanProfile(row pgx.Row) (ports.Profile, error) {
	var (
		p       ports.Profile
		role    string
		created time.Time
	)
	if err := row.Scan(&p.SubjectID, &role, &p.Email, &p.DisplayName, &created); err != nil {
		return ports.Profile{}, err
	}
	p.Role = domainauth.Role(role)
	p.CreatedAt = created.UTC()
	return p, nil
}
