// Package modeldto provides request and response bodies of the REST API.
package modeldto

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	Credentials struct {
		Username string `json:"username" validate:"required,max=64"`
		Password string `json:"password" validate:"required,max=128"`
	}
	RegisterRequest struct {
		Username string `json:"username" validate:"required,min=3,max=64"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,max=128"`
	}
	ChangePasswordRequest struct {
		CurrentPassword string `json:"current_password" validate:"required,max=128"`
		NewPassword     string `json:"new_password" validate:"required,max=128"`
	}
	Token struct {
		AccessToken        string `json:"access_token"`
		TokenType          string `json:"token_type"`
		ExpiresIn          int64  `json:"expires_in"`
		Role               string `json:"role"`
		MustChangePassword bool   `json:"must_change_password"`
	}
)

type (
	User struct {
		ID                 string     `json:"id"`
		Username           string     `json:"username"`
		Email              string     `json:"email"`
		Role               string     `json:"role"`
		IsActive           bool       `json:"is_active"`
		MustChangePassword bool       `json:"must_change_password"`
		CreatedAt          time.Time  `json:"created_at"`
		UpdatedAt          time.Time  `json:"updated_at"`
		LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	}
	CreateUserRequest struct {
		Username string `json:"username" validate:"required,min=3,max=64"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Role     string `json:"role" validate:"required,oneof=admin trader viewer"`
		Password string `json:"password,omitempty" validate:"max=128"`
	}
	CreatedUser struct {
		User
		TemporaryPassword string `json:"temporary_password,omitempty"`
	}
	UpdateUserRequest struct {
		Email    *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
		Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin trader viewer"`
		IsActive *bool   `json:"is_active,omitempty"`
	}
	UserQuery struct {
		Role   string
		Active *bool
		Limit  int
		Offset int
	}
	PasswordReset struct {
		UserID            string `json:"user_id"`
		TemporaryPassword string `json:"temporary_password"`
	}
)

type (
	APIKeyRequest struct {
		Name          string `json:"name" validate:"required,max=64"`
		ExpiresInDays *int   `json:"expires_in_days,omitempty" validate:"omitempty,min=1,max=3650"`
	}
	APIKey struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Prefix     string     `json:"prefix"`
		CreatedAt  time.Time  `json:"created_at"`
		LastUsedAt *time.Time `json:"last_used_at,omitempty"`
		ExpiresAt  *time.Time `json:"expires_at,omitempty"`
		RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	}
	CreatedAPIKey struct {
		APIKey
		Key string `json:"key"`
	}
)

type (
	Currency struct {
		Code       string          `json:"code"`
		Name       string          `json:"name"`
		Symbol     string          `json:"symbol"`
		Decimals   int32           `json:"decimals"`
		RateToBase decimal.Decimal `json:"rate_to_base"`
		IsActive   bool            `json:"is_active"`
		UpdatedAt  time.Time       `json:"updated_at"`
	}
	CurrencyRequest struct {
		Code       string          `json:"code" validate:"required,min=3,max=10,alpha"`
		Name       string          `json:"name" validate:"required,max=64"`
		Symbol     string          `json:"symbol" validate:"required,max=8"`
		Decimals   *int32          `json:"decimals,omitempty" validate:"omitempty,min=0,max=18"`
		RateToBase decimal.Decimal `json:"rate_to_base"`
	}
	UpdateCurrencyRequest struct {
		Name       *string          `json:"name,omitempty" validate:"omitempty,max=64"`
		Symbol     *string          `json:"symbol,omitempty" validate:"omitempty,max=8"`
		Decimals   *int32           `json:"decimals,omitempty" validate:"omitempty,min=0,max=18"`
		RateToBase *decimal.Decimal `json:"rate_to_base,omitempty"`
		IsActive   *bool            `json:"is_active,omitempty"`
	}
	SyncResult struct {
		Updated []string          `json:"updated"`
		Failed  map[string]string `json:"failed"`
	}
)

type (
	Balance struct {
		Currency  string          `json:"currency"`
		Amount    decimal.Decimal `json:"amount"`
		UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	}
	BalanceTotal struct {
		Currency string          `json:"currency"`
		Total    decimal.Decimal `json:"total"`
		Balances []Balance       `json:"balances"`
	}
)

type (
	TransactionRequest struct {
		Type           string          `json:"type" validate:"required,oneof=deposit withdrawal transfer exchange"`
		Currency       string          `json:"currency" validate:"required,max=10"`
		Amount         decimal.Decimal `json:"amount"`
		ToUserID       string          `json:"to_user_id,omitempty" validate:"omitempty,uuid4"`
		TargetCurrency string          `json:"target_currency,omitempty" validate:"omitempty,max=10"`
		CardNumber     string          `json:"card_number,omitempty" validate:"omitempty,numeric,min=12,max=19"`
		Description    string          `json:"description,omitempty" validate:"max=1024"`
	}
	AdjustBalanceRequest struct {
		UserID      string          `json:"user_id" validate:"required,uuid4"`
		Currency    string          `json:"currency" validate:"required,max=10"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description,omitempty" validate:"max=1024"`
	}
	Transaction struct {
		ID                 string           `json:"id"`
		UserID             string           `json:"user_id"`
		Type               string           `json:"type"`
		Currency           string           `json:"currency"`
		Amount             decimal.Decimal  `json:"amount"`
		CounterpartyUserID *string          `json:"counterparty_user_id,omitempty"`
		TargetCurrency     *string          `json:"target_currency,omitempty"`
		TargetAmount       *decimal.Decimal `json:"target_amount,omitempty"`
		Rate               *decimal.Decimal `json:"rate,omitempty"`
		Reference          string           `json:"reference,omitempty"`
		Description        string           `json:"description,omitempty"`
		CreatedBy          string           `json:"created_by"`
		CreatedAt          time.Time        `json:"created_at"`
	}
	TransactionQuery struct {
		UserID   string
		Type     string
		Currency string
		From     *time.Time
		To       *time.Time
		Limit    int
		Offset   int
	}
)

type (
	Stats struct {
		UsersByRole        map[string]int64           `json:"users_by_role"`
		ActiveUsers        int64                      `json:"active_users"`
		TransactionsByType map[string]int64           `json:"transactions_by_type"`
		TotalsByCurrency   map[string]decimal.Decimal `json:"totals_by_currency"`
	}
	Health struct {
		Status      string `json:"status"`
		Database    string `json:"database"`
		RateLimiter string `json:"rate_limiter"`
	}
	ErrorResponse struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields,omitempty"`
	}
)
