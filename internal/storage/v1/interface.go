// Package storage defines the persistence contract of the service.
package storage

import (
	"context"
	"time"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
)

type Users interface {
	AddNewUser(ctx context.Context, user *modelstorage.UserStorageEntry) error
	GetUserByID(ctx context.Context, userID string) (*modelstorage.UserStorageEntry, error)
	GetUserByUsername(ctx context.Context, username string) (*modelstorage.UserStorageEntry, error)
	ListUsers(ctx context.Context, filter modelstorage.UserFilter) ([]modelstorage.UserStorageEntry, error)
	UpdateUser(ctx context.Context, user *modelstorage.UserStorageEntry) error
	TouchLogin(ctx context.Context, userID string, at time.Time) error
}

type Currencies interface {
	AddNewCurrency(ctx context.Context, currency *modelstorage.CurrencyStorageEntry) error
	GetCurrency(ctx context.Context, code string) (*modelstorage.CurrencyStorageEntry, error)
	ListCurrencies(ctx context.Context, activeOnly bool) ([]modelstorage.CurrencyStorageEntry, error)
	UpdateCurrency(ctx context.Context, currency *modelstorage.CurrencyStorageEntry) error
}

type Balances interface {
	GetBalances(ctx context.Context, userID string) ([]modelstorage.BalanceStorageEntry, error)
	GetBalance(ctx context.Context, userID, code string) (*modelstorage.BalanceStorageEntry, error)
}

type Ledger interface {
	// ApplyTransaction atomically applies postings and records tx. No balance may end up negative.
	ApplyTransaction(ctx context.Context, tx *modelstorage.TransactionStorageEntry, postings []modelstorage.Posting) error
	GetTransaction(ctx context.Context, txID string) (*modelstorage.TransactionStorageEntry, error)
	ListTransactions(ctx context.Context, filter modelstorage.TransactionFilter) ([]modelstorage.TransactionStorageEntry, error)
	GetStats(ctx context.Context) (*modelstorage.Stats, error)
}

type APIKeys interface {
	AddNewAPIKey(ctx context.Context, key *modelstorage.APIKeyStorageEntry) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*modelstorage.APIKeyStorageEntry, error)
	GetAPIKey(ctx context.Context, keyID string) (*modelstorage.APIKeyStorageEntry, error)
	ListAPIKeys(ctx context.Context, userID string) ([]modelstorage.APIKeyStorageEntry, error)
	RevokeAPIKey(ctx context.Context, keyID string, at time.Time) error
	TouchAPIKey(ctx context.Context, keyID string, at time.Time) error
}

type Storage interface {
	Users
	Currencies
	Balances
	Ledger
	APIKeys
	Ping(ctx context.Context) error
	Close() error
}
