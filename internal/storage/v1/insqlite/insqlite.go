// Package insqlite implements the storage contract on top of SQLite through gorm.
package insqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	storage "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

// Storage defines attributes of a struct available to its methods.
type Storage struct {
	DB  *gorm.DB
	log *zerolog.Logger
}

// InitStorage opens the database file, migrates the schema and closes the database once ctx is done.
// A nil wg means the caller closes the storage itself.
func InitStorage(ctx context.Context, path string, log *zerolog.Logger, wg *sync.WaitGroup) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// a single connection serialises writers and keeps :memory: databases alive
	sqlDB.SetMaxOpenConns(1)
	err = db.WithContext(ctx).AutoMigrate(
		&modelstorage.UserStorageEntry{},
		&modelstorage.CurrencyStorageEntry{},
		&modelstorage.BalanceStorageEntry{},
		&modelstorage.TransactionStorageEntry{},
		&modelstorage.APIKeyStorageEntry{},
	)
	if err != nil {
		sqlDB.Close()
		return nil, &storageErrors.ExecutionError{Err: err}
	}
	st := Storage{
		DB:  db,
		log: log,
	}
	log.Info().Msgf("SQLite DB %s was opened", path)

	if wg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			if err := st.Close(); err != nil {
				log.Error().Err(err).Msg("closing SQLite DB failed")
				return
			}
			log.Info().Msg("SQLite DB was closed")
		}()
	}
	return &st, nil
}

// Ping checks the connection to the DB.
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify maps gorm errors onto storage errors.
func classify(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &storageErrors.NotFoundError{Err: err, ID: id}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &storageErrors.AlreadyExistsError{Err: err, ID: id}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &storageErrors.NotFoundError{Err: err, ID: id}
	}
	return &storageErrors.ExecutionError{Err: err}
}

func expectAffected(res *gorm.DB, id string) error {
	if res.Error != nil {
		return classify(res.Error, id)
	}
	if res.RowsAffected == 0 {
		return &storageErrors.NotFoundError{ID: id}
	}
	return nil
}

// AddNewUser inserts a user row.
func (s *Storage) AddNewUser(ctx context.Context, user *modelstorage.UserStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("adding new user %s", user.Username), func() (struct{}, error) {
		return struct{}{}, classify(s.DB.WithContext(ctx).Create(user).Error, user.Username)
	})
	return err
}

// GetUserByID retrieves a user by identifier.
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*modelstorage.UserStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting user by id", func() (*modelstorage.UserStorageEntry, error) {
		var u modelstorage.UserStorageEntry
		if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
			return nil, classify(err, userID)
		}
		return &u, nil
	})
}

// GetUserByUsername retrieves a user by login name.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*modelstorage.UserStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting user by username", func() (*modelstorage.UserStorageEntry, error) {
		var u modelstorage.UserStorageEntry
		if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
			return nil, classify(err, username)
		}
		return &u, nil
	})
}

// ListUsers retrieves users ordered by creation time.
func (s *Storage) ListUsers(ctx context.Context, filter modelstorage.UserFilter) ([]modelstorage.UserStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing users", func() ([]modelstorage.UserStorageEntry, error) {
		query := s.DB.WithContext(ctx).Model(&modelstorage.UserStorageEntry{})
		if filter.Role != "" {
			query = query.Where("role = ?", filter.Role)
		}
		if filter.Active != nil {
			query = query.Where("is_active = ?", *filter.Active)
		}
		var users []modelstorage.UserStorageEntry
		err := query.Order("created_at, id").Limit(filter.Limit).Offset(filter.Offset).Find(&users).Error
		if err != nil {
			return nil, classify(err, "")
		}
		return users, nil
	})
}

// UpdateUser overwrites the mutable columns of a user.
func (s *Storage) UpdateUser(ctx context.Context, user *modelstorage.UserStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("updating user %s", user.ID), func() (struct{}, error) {
		res := s.DB.WithContext(ctx).Model(&modelstorage.UserStorageEntry{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"email":                user.Email,
			"password_hash":        user.PasswordHash,
			"role":                 user.Role,
			"is_active":            user.IsActive,
			"must_change_password": user.MustChangePassword,
			"updated_at":           user.UpdatedAt,
		})
		if res.Error != nil {
			return struct{}{}, classify(res.Error, user.Email)
		}
		return struct{}{}, expectAffected(res, user.ID)
	})
	return err
}

// TouchLogin records a successful login.
func (s *Storage) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := storage.Run(ctx, s.log, "recording login", func() (struct{}, error) {
		res := s.DB.WithContext(ctx).Model(&modelstorage.UserStorageEntry{}).Where("id = ?", userID).UpdateColumn("last_login_at", at)
		return struct{}{}, expectAffected(res, userID)
	})
	return err
}

// AddNewCurrency inserts a currency row.
func (s *Storage) AddNewCurrency(ctx context.Context, currency *modelstorage.CurrencyStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("adding new currency %s", currency.Code), func() (struct{}, error) {
		return struct{}{}, classify(s.DB.WithContext(ctx).Create(currency).Error, currency.Code)
	})
	return err
}

// GetCurrency retrieves a currency by code.
func (s *Storage) GetCurrency(ctx context.Context, code string) (*modelstorage.CurrencyStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting currency", func() (*modelstorage.CurrencyStorageEntry, error) {
		var c modelstorage.CurrencyStorageEntry
		if err := s.DB.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
			return nil, classify(err, code)
		}
		return &c, nil
	})
}

// ListCurrencies retrieves currencies ordered by code.
func (s *Storage) ListCurrencies(ctx context.Context, activeOnly bool) ([]modelstorage.CurrencyStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing currencies", func() ([]modelstorage.CurrencyStorageEntry, error) {
		query := s.DB.WithContext(ctx).Order("code")
		if activeOnly {
			query = query.Where("is_active = ?", true)
		}
		var currencies []modelstorage.CurrencyStorageEntry
		if err := query.Find(&currencies).Error; err != nil {
			return nil, classify(err, "")
		}
		return currencies, nil
	})
}

// UpdateCurrency overwrites the mutable columns of a currency.
func (s *Storage) UpdateCurrency(ctx context.Context, currency *modelstorage.CurrencyStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("updating currency %s", currency.Code), func() (struct{}, error) {
		res := s.DB.WithContext(ctx).Model(&modelstorage.CurrencyStorageEntry{}).Where("code = ?", currency.Code).Updates(map[string]interface{}{
			"name":         currency.Name,
			"symbol":       currency.Symbol,
			"decimals":     currency.Decimals,
			"rate_to_base": currency.RateToBase,
			"is_active":    currency.IsActive,
			"updated_at":   currency.UpdatedAt,
		})
		return struct{}{}, expectAffected(res, currency.Code)
	})
	return err
}

// AddNewAPIKey inserts an API key row.
func (s *Storage) AddNewAPIKey(ctx context.Context, key *modelstorage.APIKeyStorageEntry) error {
	_, err := storage.Run(ctx, s.log, "adding new API key", func() (struct{}, error) {
		return struct{}{}, classify(s.DB.WithContext(ctx).Create(key).Error, key.Prefix)
	})
	return err
}

// GetAPIKeyByHash retrieves an API key by the hash of its secret.
func (s *Storage) GetAPIKeyByHash(ctx context.Context, keyHash string) (*modelstorage.APIKeyStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting API key by hash", func() (*modelstorage.APIKeyStorageEntry, error) {
		var k modelstorage.APIKeyStorageEntry
		if err := s.DB.WithContext(ctx).Where("key_hash = ?", keyHash).First(&k).Error; err != nil {
			return nil, classify(err, "api key")
		}
		return &k, nil
	})
}

// GetAPIKey retrieves an API key by identifier.
func (s *Storage) GetAPIKey(ctx context.Context, keyID string) (*modelstorage.APIKeyStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting API key", func() (*modelstorage.APIKeyStorageEntry, error) {
		var k modelstorage.APIKeyStorageEntry
		if err := s.DB.WithContext(ctx).Where("id = ?", keyID).First(&k).Error; err != nil {
			return nil, classify(err, keyID)
		}
		return &k, nil
	})
}

// ListAPIKeys retrieves the API keys of a user.
func (s *Storage) ListAPIKeys(ctx context.Context, userID string) ([]modelstorage.APIKeyStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing API keys", func() ([]modelstorage.APIKeyStorageEntry, error) {
		var keys []modelstorage.APIKeyStorageEntry
		if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&keys).Error; err != nil {
			return nil, classify(err, userID)
		}
		return keys, nil
	})
}

// RevokeAPIKey marks an API key as revoked. Revoking twice keeps the first timestamp.
func (s *Storage) RevokeAPIKey(ctx context.Context, keyID string, at time.Time) error {
	_, err := storage.Run(ctx, s.log, "revoking API key", func() (struct{}, error) {
		res := s.DB.WithContext(ctx).Model(&modelstorage.APIKeyStorageEntry{}).Where("id = ?", keyID).
			Update("revoked_at", gorm.Expr("COALESCE(revoked_at, ?)", at))
		return struct{}{}, expectAffected(res, keyID)
	})
	return err
}

// TouchAPIKey records the last use of an API key.
func (s *Storage) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	_, err := storage.Run(ctx, s.log, "recording API key use", func() (struct{}, error) {
		res := s.DB.WithContext(ctx).Model(&modelstorage.APIKeyStorageEntry{}).Where("id = ?", keyID).Update("last_used_at", at)
		return struct{}{}, classify(res.Error, keyID)
	})
	return err
}
