package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/parlor/internal/auth"
	"github.com/jason-s-yu/parlor/internal/models"
)

// UpdateUserCredentials sets email, password and username, turning an ephemeral guest into a
// registered user.
func UpdateUserCredentials(ctx context.Context, u *models.User) error {
	hashed, err := auth.HashPassword(u.Password)
	if err != nil {
		return err
	}

	q := `UPDATE users SET email = $1, password = $2, username = $3, is_ephemeral = FALSE WHERE id = $4`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, q, nullIfEmpty(u.Email), hashed, u.Username, u.ID)
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update user credentials: %w", err)
	}
	u.Password = hashed
	u.IsEphemeral = false
	return nil
}
