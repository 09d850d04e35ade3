package inpsql

import (
	"context"
	"time"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	storage "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const apiKeyColumns = `id, user_id, name, prefix, key_hash, created_at, last_used_at, expires_at, revoked_at`

func scanAPIKey(row rowScanner, k *modelstorage.APIKeyStorageEntry) error {
	return row.Scan(&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.KeyHash, &k.CreatedAt, &k.LastUsedAt, &k.ExpiresAt, &k.RevokedAt)
}

// AddNewAPIKey inserts an API key row.
func (s *Storage) AddNewAPIKey(ctx context.Context, key *modelstorage.APIKeyStorageEntry) error {
	_, err := storage.Run(ctx, s.log, "adding new API key", func() (struct{}, error) {
		_, err := s.DB.ExecContext(ctx, `INSERT INTO api_keys (`+apiKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			key.ID, key.UserID, key.Name, key.Prefix, key.KeyHash, key.CreatedAt, key.LastUsedAt, key.ExpiresAt, key.RevokedAt)
		return struct{}{}, classify(err, key.Prefix)
	})
	return err
}

// GetAPIKeyByHash retrieves an API key by the hash of its secret.
func (s *Storage) GetAPIKeyByHash(ctx context.Context, keyHash string) (*modelstorage.APIKeyStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting API key by hash", func() (*modelstorage.APIKeyStorageEntry, error) {
		var k modelstorage.APIKeyStorageEntry
		err := scanAPIKey(s.DB.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash), &k)
		if err != nil {
			return nil, classify(err, "api key")
		}
		return &k, nil
	})
}

// GetAPIKey retrieves an API key by identifier.
func (s *Storage) GetAPIKey(ctx context.Context, keyID string) (*modelstorage.APIKeyStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting API key", func() (*modelstorage.APIKeyStorageEntry, error) {
		var k modelstorage.APIKeyStorageEntry
		err := scanAPIKey(s.DB.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, keyID), &k)
		if err != nil {
			return nil, classify(err, keyID)
		}
		return &k, nil
	})
}

// ListAPIKeys retrieves the API keys of a user.
func (s *Storage) ListAPIKeys(ctx context.Context, userID string) ([]modelstorage.APIKeyStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing API keys", func() ([]modelstorage.APIKeyStorageEntry, error) {
		rows, err := s.DB.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at`, userID)
		if err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		defer rows.Close()
		var keys []modelstorage.APIKeyStorageEntry
		for rows.Next() {
			var k modelstorage.APIKeyStorageEntry
			if err = scanAPIKey(rows, &k); err != nil {
				return nil, &storageErrors.ScanningError{Err: err}
			}
			keys = append(keys, k)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningError{Err: err}
		}
		return keys, nil
	})
}

// RevokeAPIKey marks an API key as revoked. Revoking twice keeps the first timestamp.
func (s *Storage) RevokeAPIKey(ctx context.Context, keyID string, at time.Time) error {
	_, err := storage.Run(ctx, s.log, "revoking API key", func() (struct{}, error) {
		res, err := s.DB.ExecContext(ctx, `UPDATE api_keys SET revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`, keyID, at)
		if err != nil {
			return struct{}{}, classify(err, keyID)
		}
		return struct{}{}, expectAffected(res, keyID)
	})
	return err
}

// TouchAPIKey records the last use of an API key.
func (s *Storage) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	_, err := storage.Run(ctx, s.log, "recording API key use", func() (struct{}, error) {
		_, err := s.DB.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
		return struct{}{}, classify(err, keyID)
	})
	return err
}
