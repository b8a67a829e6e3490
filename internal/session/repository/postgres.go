package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"session-control-plane/internal/session/domain"
)

const familyColumns = `family_id, user_id, device_hash, last_ip_cidr, user_agent,
	current_jti, refresh_token_hash, rotated_from, reused_jti_of,
	revoked_at, revocation_reason, auth_time, created_at, last_used, expires_at`

// PostgresRepository persists session families in the session_families table.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a session-family repository that uses the given pool for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the family row. The family must have FamilyID set.
func (r *PostgresRepository) Create(ctx context.Context, f *domain.Family) error {
	_, err := r.pool.ExecContext(ctx, `
		INSERT INTO session_families (`+familyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		f.FamilyID, f.UserID, f.DeviceHash, f.LastIPCIDR, f.UserAgent,
		nullString(f.CurrentJTI), f.RefreshTokenHash, nullString(f.RotatedFrom), nullString(f.ReusedJTIOf),
		timeToNullTime(f.RevokedAt), nullString(string(f.RevocationReason)),
		f.AuthTime, f.CreatedAt, f.LastUsed, f.ExpiresAt,
	)
	return err
}

// GetByID returns the family row for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, familyID string) (*domain.Family, error) {
	row := r.pool.QueryRowContext(ctx, `
		SELECT `+familyColumns+`
		FROM session_families WHERE family_id = $1`, familyID)
	return scanFamily(row)
}

// GetOpenByID returns the non-revoked row for id, or nil if missing or revoked.
func (r *PostgresRepository) GetOpenByID(ctx context.Context, familyID string) (*domain.Family, error) {
	row := r.pool.QueryRowContext(ctx, `
		SELECT `+familyColumns+`
		FROM session_families WHERE family_id = $1 AND revoked_at IS NULL`, familyID)
	return scanFamily(row)
}

// Rotate advances the rotation anchor as one conditional update. The WHERE
// clause re-checks the expected anchor so a crash or a lapsed mutex cannot
// leave a half-rotated row; rotated_from reads the pre-update current_jti.
func (r *PostgresRepository) Rotate(ctx context.Context, familyID, expectedJTI, newJTI, refreshTokenHash string, now time.Time) (bool, error) {
	res, err := r.pool.ExecContext(ctx, `
		UPDATE session_families
		SET current_jti = $2, refresh_token_hash = $3, rotated_from = current_jti, last_used = $4
		WHERE family_id = $1 AND revoked_at IS NULL AND current_jti IS NOT DISTINCT FROM $5`,
		familyID, newJTI, refreshTokenHash, now, nullString(expectedJTI),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindConsumedJTI returns a family that already consumed jti: either it was
// marked as a replayed anchor (reused_jti_of) or it is the live anchor of a
// different family. Returns nil if the jti is unknown.
func (r *PostgresRepository) FindConsumedJTI(ctx context.Context, jti, excludeFamilyID string) (*domain.Family, error) {
	row := r.pool.QueryRowContext(ctx, `
		SELECT `+familyColumns+`
		FROM session_families
		WHERE reused_jti_of = $1 OR (current_jti = $1 AND family_id <> $2)
		LIMIT 1`, jti, excludeFamilyID)
	return scanFamily(row)
}

// Revoke marks the open row terminal. Returns false if no open row matched
// (missing family, or already revoked; callers treat that as idempotent success).
func (r *PostgresRepository) Revoke(ctx context.Context, familyID string, reason domain.RevocationReason, reusedJTIOf string, now time.Time) (bool, error) {
	res, err := r.pool.ExecContext(ctx, `
		UPDATE session_families
		SET revoked_at = $2, revocation_reason = $3, reused_jti_of = COALESCE($4, reused_jti_of)
		WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID, now, string(reason), nullString(reusedJTIOf),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeAllByUser revokes every open family of userID except exceptFamilyID.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID, exceptFamilyID string, reason domain.RevocationReason, now time.Time) (int, error) {
	res, err := r.pool.ExecContext(ctx, `
		UPDATE session_families
		SET revoked_at = $2, revocation_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL AND ($4 = '' OR family_id <> $4)`,
		userID, now, string(reason), exceptFamilyID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListActiveByUser returns open, unexpired families ordered by last_used descending.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Family, error) {
	rows, err := r.pool.QueryContext(ctx, `
		SELECT `+familyColumns+`
		FROM session_families
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY last_used DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteExpiredBefore hard-deletes rows whose expiry or revocation predates cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.pool.ExecContext(ctx, `
		DELETE FROM session_families
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFamily(row rowScanner) (*domain.Family, error) {
	var f domain.Family
	var currentJTI, rotatedFrom, reusedJTIOf, reason sql.NullString
	var revokedAt sql.NullTime
	err := row.Scan(
		&f.FamilyID, &f.UserID, &f.DeviceHash, &f.LastIPCIDR, &f.UserAgent,
		&currentJTI, &f.RefreshTokenHash, &rotatedFrom, &reusedJTIOf,
		&revokedAt, &reason, &f.AuthTime, &f.CreatedAt, &f.LastUsed, &f.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.CurrentJTI = currentJTI.String
	f.RotatedFrom = rotatedFrom.String
	f.ReusedJTIOf = reusedJTIOf.String
	f.RevocationReason = domain.RevocationReason(reason.String)
	f.RevokedAt = nullTimeToPtr(revokedAt)
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
