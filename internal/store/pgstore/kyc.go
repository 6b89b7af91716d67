package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const kycColumns = `user_id, status, details, rejection_reason, COALESCE(reviewed_by, ''), submitted_at, reviewed_at`

func scanKYC(row pgx.Row) (*models.KYC, error) {
	var k models.KYC
	err := row.Scan(&k.UserID, &k.Status, &k.Details, &k.RejectionReason, &k.ReviewedBy, &k.SubmittedAt, &k.ReviewedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *repo) GetKYC(ctx context.Context, userID string) (*models.KYC, error) {
	k, err := scanKYC(r.q.QueryRow(ctx, `SELECT `+kycColumns+` FROM kyc_records WHERE user_id = $1`, userID))
	return k, translate(err, "get kyc")
}

func (r *repo) SaveKYC(ctx context.Context, k *models.KYC) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO kyc_records (user_id, status, details, rejection_reason, reviewed_by, submitted_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status, details = EXCLUDED.details, rejection_reason = EXCLUDED.rejection_reason,
			reviewed_by = EXCLUDED.reviewed_by, submitted_at = EXCLUDED.submitted_at, reviewed_at = EXCLUDED.reviewed_at`,
		k.UserID, k.Status, k.Details, k.RejectionReason, nullable(k.ReviewedBy), k.SubmittedAt, k.ReviewedAt,
	)
	return translate(err, "save kyc")
}

func (r *repo) ReviewKYC(ctx context.Context, k *models.KYC) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE kyc_records SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5
		WHERE user_id = $1 AND status = 'pending'`,
		k.UserID, k.Status, k.RejectionReason, nullable(k.ReviewedBy), k.ReviewedAt,
	)
	if err != nil {
		return false, translate(err, "review kyc")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) ListKYC(ctx context.Context, status models.KYCStatus, page models.Page) ([]models.KYC, int, error) {
	limit, offset := limitOffset(page)
	const filter = ` WHERE ($1 = '' OR status = $1)`

	rows, err := r.q.Query(ctx, `SELECT `+kycColumns+` FROM kyc_records`+filter+`
		ORDER BY submitted_at ASC LIMIT $2 OFFSET $3`, string(status), limit, offset)
	records, err := collect(rows, err, "list kyc", scanKYC)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.count(ctx, "count kyc", `SELECT COUNT(*) FROM kyc_records`+filter, string(status))
	return records, total, err
}
