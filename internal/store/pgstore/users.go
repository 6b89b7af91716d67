package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/stonemart/internal/models"
)

const userColumns = `id, name, email, password, role, is_active, push_token, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.PushToken, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) CreateUser(ctx context.Context, u *models.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, name, email, password, role, is_active, push_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsActive, u.PushToken, u.CreatedAt,
	)
	return translate(err, "insert user")
}

func (r *repo) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, translate(err, "get user")
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	return u, translate(err, "get user by email")
}

func (r *repo) ListUsers(ctx context.Context, role models.Role, page models.Page) ([]models.User, int, error) {
	limit, offset := limitOffset(page)
	rows, err := r.q.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR role = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, string(role), limit, offset)
	users, err := collect(rows, err, "list users", scanUser)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.count(ctx, "count users", `SELECT COUNT(*) FROM users WHERE ($1 = '' OR role = $1)`, string(role))
	return users, total, err
}

func (r *repo) UpdateUserRole(ctx context.Context, id string, role models.Role) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	return affected(tag, err, "update user role")
}

func (r *repo) SetUserActive(ctx context.Context, id string, active bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	return affected(tag, err, "set user active")
}

func (r *repo) SetPushToken(ctx context.Context, id, token string) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET push_token = $2 WHERE id = $1`, id, token)
	return affected(tag, err, "set push token")
}

func (r *repo) ListUserIDs(ctx context.Context, role models.Role, withPushToken bool) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id FROM users
		WHERE role = $1 AND is_active AND (NOT $2 OR push_token <> '')
		ORDER BY id`, role, withPushToken)
	if err != nil {
		return nil, translate(err, "list user ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, translate(err, "list user ids")
}
