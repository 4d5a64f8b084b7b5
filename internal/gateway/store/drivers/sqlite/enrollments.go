package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/stackguard/authgate/internal/gateway/domain"
)

type enrollmentsRepo struct {
	db *sql.DB
}

func (r *enrollmentsRepo) GetByUserID(ctx context.Context, userID string) (domain.EnrollmentStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, enrolled, enrolled_at
		FROM user_mfa_status
		WHERE user_id = ?`, userID)

	var (
		st         domain.EnrollmentStatus
		enrolledAt sql.NullTime
	)
	if err := row.Scan(&st.UserID, &st.Enrolled, &enrolledAt); err != nil {
		return domain.EnrollmentStatus{}, mapNotFound(err)
	}
	if enrolledAt.Valid {
		st.EnrolledAt = enrolledAt.Time
	}
	return st, nil
}

func (r *enrollmentsRepo) Upsert(ctx context.Context, st domain.EnrollmentStatus) error {
	var enrolledAt sql.NullTime
	if !st.EnrolledAt.IsZero() {
		enrolledAt = sql.NullTime{Time: st.EnrolledAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_mfa_status (user_id, enrolled, enrolled_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			enrolled    = excluded.enrolled,
			enrolled_at = excluded.enrolled_at,
			updated_at  = excluded.updated_at`,
		st.UserID, st.Enrolled, enrolledAt, time.Now().UTC())
	return err
}

func (r *enrollmentsRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_mfa_status WHERE user_id = ?`, userID)
	return err
}
