// Package processor defines the service layer contract used by the REST handlers.
package processor

import (
	"context"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
)

type Auth interface {
	Login(ctx context.Context, credentials modeldto.Credentials) (*modeldto.Token, error)
	Register(ctx context.Context, req modeldto.RegisterRequest) (*modeldto.User, error)
	Me(ctx context.Context, p *modelprincipal.Principal) (*modeldto.User, error)
	ChangePassword(ctx context.Context, p *modelprincipal.Principal, req modeldto.ChangePasswordRequest) (*modeldto.Token, error)
	AuthenticateToken(ctx context.Context, accessToken string) (*modelprincipal.Principal, error)
	AuthenticateAPIKey(ctx context.Context, key string) (*modelprincipal.Principal, error)
	CreateAPIKey(ctx context.Context, p *modelprincipal.Principal, req modeldto.APIKeyRequest) (*modeldto.CreatedAPIKey, error)
	ListAPIKeys(ctx context.Context, p *modelprincipal.Principal) ([]modeldto.APIKey, error)
	RevokeAPIKey(ctx context.Context, p *modelprincipal.Principal, keyID string) error
}

type Users interface {
	CreateUser(ctx context.Context, p *modelprincipal.Principal, req modeldto.CreateUserRequest) (*modeldto.CreatedUser, error)
	ListUsers(ctx context.Context, query modeldto.UserQuery) ([]modeldto.User, error)
	GetUser(ctx context.Context, p *modelprincipal.Principal, userID string) (*modeldto.User, error)
	UpdateUser(ctx context.Context, p *modelprincipal.Principal, userID string, req modeldto.UpdateUserRequest) (*modeldto.User, error)
	DeactivateUser(ctx context.Context, p *modelprincipal.Principal, userID string) error
	ResetPassword(ctx context.Context, p *modelprincipal.Principal, userID string) (*modeldto.PasswordReset, error)
}

type Currencies interface {
	ListCurrencies(ctx context.Context, activeOnly bool) ([]modeldto.Currency, error)
	GetCurrency(ctx context.Context, code string) (*modeldto.Currency, error)
	CreateCurrency(ctx context.Context, req modeldto.CurrencyRequest) (*modeldto.Currency, error)
	UpdateCurrency(ctx context.Context, code string, req modeldto.UpdateCurrencyRequest) (*modeldto.Currency, error)
	SyncRates(ctx context.Context) (*modeldto.SyncResult, error)
}

type Ledger interface {
	ListBalances(ctx context.Context, p *modelprincipal.Principal, userID string) ([]modeldto.Balance, error)
	GetBalance(ctx context.Context, p *modelprincipal.Principal, userID, code string) (*modeldto.Balance, error)
	GetTotal(ctx context.Context, p *modelprincipal.Principal, userID, code string) (*modeldto.BalanceTotal, error)
	CreateTransaction(ctx context.Context, p *modelprincipal.Principal, req modeldto.TransactionRequest) (*modeldto.Transaction, error)
	AdjustBalance(ctx context.Context, p *modelprincipal.Principal, req modeldto.AdjustBalanceRequest) (*modeldto.Transaction, error)
	ListTransactions(ctx context.Context, p *modelprincipal.Principal, query modeldto.TransactionQuery) ([]modeldto.Transaction, error)
	GetTransaction(ctx context.Context, p *modelprincipal.Principal, txID string) (*modeldto.Transaction, error)
	Stats(ctx context.Context) (*modeldto.Stats, error)
}

type Processor interface {
	Auth
	Users
	Currencies
	Ledger
	Ping(ctx context.Context) error
}
