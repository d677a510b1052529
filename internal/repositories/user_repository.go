package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrUserNotFound = errors.New("user not found")

// User is the display slice of the marketplace user record.
type User struct {
	ID       int64  `db:"id"`
	FullName string `db:"full_name"`
}

// UserRepository resolves display info for message senders and participants.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (User, error)
	BulkUsers(ctx context.Context, ids []int64) (map[int64]User, error)
}

// UserRepo reads the marketplace users table.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one user's display info.
func (r *UserRepo) GetUser(ctx context.Context, userID int64) (User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT id, full_name FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches display info for many users in one round trip.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int64) (map[int64]User, error) {
	result := make(map[int64]User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT id, full_name FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
