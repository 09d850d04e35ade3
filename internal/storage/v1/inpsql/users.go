package inpsql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	storage "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const userColumns = `id, username, email, password_hash, role, is_active, must_change_password, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, u *modelstorage.UserStorageEntry) error {
	return row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.MustChangePassword,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
}

// AddNewUser inserts a user row.
func (s *Storage) AddNewUser(ctx context.Context, user *modelstorage.UserStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("adding new user %s", user.Username), func() (struct{}, error) {
		_, err := s.DB.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.IsActive, user.MustChangePassword,
			user.CreatedAt, user.UpdatedAt, user.LastLoginAt)
		return struct{}{}, classify(err, user.Username)
	})
	return err
}

// GetUserByID retrieves a user by identifier.
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*modelstorage.UserStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting user by id", func() (*modelstorage.UserStorageEntry, error) {
		var u modelstorage.UserStorageEntry
		err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID), &u)
		if err != nil {
			return nil, classify(err, userID)
		}
		return &u, nil
	})
}

// GetUserByUsername retrieves a user by login name.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*modelstorage.UserStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting user by username", func() (*modelstorage.UserStorageEntry, error) {
		var u modelstorage.UserStorageEntry
		err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username), &u)
		if err != nil {
			return nil, classify(err, username)
		}
		return &u, nil
	})
}

// ListUsers retrieves users ordered by creation time.
func (s *Storage) ListUsers(ctx context.Context, filter modelstorage.UserFilter) ([]modelstorage.UserStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing users", func() ([]modelstorage.UserStorageEntry, error) {
		var (
			where []string
			args  []interface{}
		)
		if filter.Role != "" {
			args = append(args, filter.Role)
			where = append(where, fmt.Sprintf("role = $%d", len(args)))
		}
		if filter.Active != nil {
			args = append(args, *filter.Active)
			where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
		}
		query := `SELECT ` + userColumns + ` FROM users`
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
		rows, err := s.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		defer rows.Close()
		var users []modelstorage.UserStorageEntry
		for rows.Next() {
			var u modelstorage.UserStorageEntry
			if err = scanUser(rows, &u); err != nil {
				return nil, &storageErrors.ScanningError{Err: err}
			}
			users = append(users, u)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningError{Err: err}
		}
		return users, nil
	})
}

// UpdateUser overwrites the mutable columns of a user.
func (s *Storage) UpdateUser(ctx context.Context, user *modelstorage.UserStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("updating user %s", user.ID), func() (struct{}, error) {
		res, err := s.DB.ExecContext(ctx, `UPDATE users SET email = $2, password_hash = $3, role = $4, is_active = $5,
			must_change_password = $6, updated_at = $7 WHERE id = $1`,
			user.ID, user.Email, user.PasswordHash, user.Role, user.IsActive, user.MustChangePassword, user.UpdatedAt)
		if err != nil {
			return struct{}{}, classify(err, user.Email)
		}
		return struct{}{}, expectAffected(res, user.ID)
	})
	return err
}

// TouchLogin records a successful login.
func (s *Storage) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := storage.Run(ctx, s.log, "recording login", func() (struct{}, error) {
		res, err := s.DB.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
		if err != nil {
			return struct{}{}, classify(err, userID)
		}
		return struct{}{}, expectAffected(res, userID)
	})
	return err
}

type affected interface {
	RowsAffected() (int64, error)
}

func expectAffected(res affected, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &storageErrors.ExecutionError{Err: err}
	}
	if n == 0 {
		return &storageErrors.NotFoundError{ID: id}
	}
	return nil
}
