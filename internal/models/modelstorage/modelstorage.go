// Package modelstorage provides types for querying relational DB.

package modelstorage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles known to the access control layer.
const (
	RoleAdmin  = "admin"
	RoleTrader = "trader"
	RoleViewer = "viewer"
)

// Transaction types.
const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxTransfer   = "transfer"
	TxExchange   = "exchange"
	TxAdjustment = "adjustment"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTrader, RoleViewer:
		return true
	}
	return false
}

type UserStorageEntry struct {
	ID                 string     `db:"id" gorm:"primaryKey;type:varchar(36)"`
	Username           string     `db:"username" gorm:"uniqueIndex;not null"`
	Email              string     `db:"email" gorm:"uniqueIndex;not null"`
	PasswordHash       string     `db:"password_hash" gorm:"not null"`
	Role               string     `db:"role" gorm:"index;not null"`
	IsActive           bool       `db:"is_active" gorm:"not null"`
	MustChangePassword bool       `db:"must_change_password" gorm:"not null"`
	CreatedAt          time.Time  `db:"created_at" gorm:"not null"`
	UpdatedAt          time.Time  `db:"updated_at" gorm:"not null"`
	LastLoginAt        *time.Time `db:"last_login_at"`
}

func (UserStorageEntry) TableName() string { return "users" }

type CurrencyStorageEntry struct {
	Code       string          `db:"code" gorm:"primaryKey;type:varchar(10)"`
	Name       string          `db:"name" gorm:"not null"`
	Symbol     string          `db:"symbol" gorm:"not null"`
	Decimals   int32           `db:"decimals" gorm:"not null"`
	RateToBase decimal.Decimal `db:"rate_to_base" gorm:"type:text;not null"`
	IsActive   bool            `db:"is_active" gorm:"not null"`
	UpdatedAt  time.Time       `db:"updated_at" gorm:"not null"`
}

func (CurrencyStorageEntry) TableName() string { return "currencies" }

type BalanceStorageEntry struct {
	ID           uint            `db:"id" gorm:"primaryKey"`
	UserID       string          `db:"user_id" gorm:"uniqueIndex:idx_balance_owner;not null"`
	CurrencyCode string          `db:"currency_code" gorm:"uniqueIndex:idx_balance_owner;not null"`
	Amount       decimal.Decimal `db:"amount" gorm:"type:text;not null"`
	UpdatedAt    time.Time       `db:"updated_at" gorm:"not null"`
}

func (BalanceStorageEntry) TableName() string { return "balances" }

type TransactionStorageEntry struct {
	ID                 string           `db:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID             string           `db:"user_id" gorm:"index;not null"`
	Type               string           `db:"type" gorm:"index;not null"`
	CurrencyCode       string           `db:"currency_code" gorm:"not null"`
	Amount             decimal.Decimal  `db:"amount" gorm:"type:text;not null"`
	CounterpartyUserID *string          `db:"counterparty_user_id" gorm:"index"`
	TargetCurrencyCode *string          `db:"target_currency_code"`
	TargetAmount       *decimal.Decimal `db:"target_amount" gorm:"type:text"`
	Rate               *decimal.Decimal `db:"rate" gorm:"type:text"`
	Reference          string           `db:"reference"`
	Description        string           `db:"description"`
	CreatedBy          string           `db:"created_by" gorm:"not null"`
	CreatedAt          time.Time        `db:"created_at" gorm:"index;not null"`
}

func (TransactionStorageEntry) TableName() string { return "transactions" }

type APIKeyStorageEntry struct {
	ID         string     `db:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string     `db:"user_id" gorm:"index;not null"`
	Name       string     `db:"name" gorm:"not null"`
	Prefix     string     `db:"prefix" gorm:"not null"`
	KeyHash    string     `db:"key_hash" gorm:"uniqueIndex;not null"`
	CreatedAt  time.Time  `db:"created_at" gorm:"not null"`
	LastUsedAt *time.Time `db:"last_used_at"`
	ExpiresAt  *time.Time `db:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

func (APIKeyStorageEntry) TableName() string { return "api_keys" }

// Posting is a signed change of one balance applied as part of a ledger transaction.
type Posting struct {
	UserID       string
	CurrencyCode string
	Delta        decimal.Decimal
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role   string
	Active *bool
	Limit  int
	Offset int
}

// TransactionFilter narrows transaction listings. An empty UserID lists everything.
type TransactionFilter struct {
	UserID       string
	Type         string
	CurrencyCode string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Stats aggregates figures for the admin dashboard.
type Stats struct {
	UsersByRole        map[string]int64
	ActiveUsers        int64
	TransactionsByType map[string]int64
	TotalsByCurrency   map[string]decimal.Decimal
}
