package identity

import (
	"context"
	"database/sql"
	"time"

	"otp-drop/internal/db"
)

// User is the local mirror of a realm account.
type User struct {
	ID        int64     `json:"id"`
	KCID      string    `json:"kc_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRepository persists users in the users table.
type UserRepository struct {
	conn *sql.DB
}

func NewUserRepository(conn *sql.DB) *UserRepository {
	return &UserRepository{conn: conn}
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	return exists, err
}

// Create inserts u and fills its generated columns. A duplicate username
// or subject id returns ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, u User) (*User, error) {
	err := db.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO users (kc_id, username, email, full_name)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, is_active, created_at, updated_at`,
			u.KCID, u.Username, u.Email, u.FullName,
		).Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
