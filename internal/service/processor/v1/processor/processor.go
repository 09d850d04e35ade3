// Package processor provides intermediary layer functionality between the DB and API endpoint handlers.
package processor

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/secretary/v1"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxDescription    = 255
	defaultPageSize   = 50
	maxPageSize       = 500
)

// RateSyncer fetches fresh exchange rates for a set of currencies.
type RateSyncer interface {
	Sync(ctx context.Context, codes []string) []modelqueue.RateResult
}

// Processor defines attributes of a struct available to its methods.
type Processor struct {
	storage   storage.Storage
	secretary secretary.Secretary
	syncer    RateSyncer
	cfg       *config.Config
	log       *zerolog.Logger
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// InitService initializes an intermediary service for data processing.
func InitService(st storage.Storage, sec secretary.Secretary, syncer RateSyncer, cfg *config.Config, log *zerolog.Logger) (*Processor, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if sec == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil secretary was passed to service initializer"}
	}
	if syncer == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil rate syncer was passed to service initializer"}
	}
	if cfg == nil || cfg.ServerConfig == nil || cfg.SecretConfig == nil || cfg.QueueConfig == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "incomplete config was passed to service initializer"}
	}
	processor := &Processor{
		storage:   st,
		secretary: sec,
		syncer:    syncer,
		cfg:       cfg,
		log:       log,
		sanitizer: bluemonday.StrictPolicy(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	return processor, nil
}

// Ping checks the underlying storage.
func (proc *Processor) Ping(ctx context.Context) error {
	return proc.storage.Ping(ctx)
}

// EnsureAdmin creates the configured administrator unless a user with that name already exists.
func (proc *Processor) EnsureAdmin(ctx context.Context) error {
	secretCfg := proc.cfg.SecretConfig
	_, err := proc.storage.GetUserByUsername(ctx, secretCfg.AdminUsername)
	if err == nil {
		return nil
	}
	var notFoundError *storageErrors.NotFoundError
	if !errors.As(err, &notFoundError) {
		return err
	}
	hash, err := proc.secretary.HashPassword(secretCfg.AdminPassword)
	if err != nil {
		return err
	}
	now := proc.now()
	admin := &modelstorage.UserStorageEntry{
		ID:                 uuid.New().String(),
		Username:           secretCfg.AdminUsername,
		Email:              strings.ToLower(secretCfg.AdminEmail),
		PasswordHash:       hash,
		Role:               modelstorage.RoleAdmin,
		IsActive:           true,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err = proc.storage.AddNewUser(ctx, admin); err != nil {
		return err
	}
	proc.log.Warn().Msgf("administrator %s was created, password change is required on first login", admin.Username)
	return nil
}

// validatePassword enforces the password policy.
func validatePassword(field, password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return serviceErrors.Invalid(field, "must be between 8 and 128 characters long")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return serviceErrors.Invalid(field, "must contain at least one letter and one digit")
	}
	return nil
}

// targetUser resolves whose data a request is about. Only admins may look at other users.
func targetUser(p *modelprincipal.Principal, userID string) (string, error) {
	if userID == "" || userID == p.UserID {
		return p.UserID, nil
	}
	if !p.HasRole(modelstorage.RoleAdmin) {
		return "", &serviceErrors.ForbiddenError{Msg: "insufficient permissions"}
	}
	return userID, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (proc *Processor) sanitize(description string) string {
	clean := strings.TrimSpace(proc.sanitizer.Sanitize(description))
	if utf8.RuneCountInString(clean) > maxDescription {
		clean = string([]rune(clean)[:maxDescription])
	}
	return clean
}

func toUserDTO(u *modelstorage.UserStorageEntry) modeldto.User {
	return modeldto.User{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Role:               u.Role,
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
		LastLoginAt:        u.LastLoginAt,
	}
}

func toAPIKeyDTO(k *modelstorage.APIKeyStorageEntry) modeldto.APIKey {
	return modeldto.APIKey{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		RevokedAt:  k.RevokedAt,
	}
}

func toCurrencyDTO(c *modelstorage.CurrencyStorageEntry) modeldto.Currency {
	return modeldto.Currency{
		Code:       c.Code,
		Name:       c.Name,
		Symbol:     c.Symbol,
		Decimals:   c.Decimals,
		RateToBase: c.RateToBase,
		IsActive:   c.IsActive,
		UpdatedAt:  c.UpdatedAt,
	}
}

func toBalanceDTO(b *modelstorage.BalanceStorageEntry) modeldto.Balance {
	updatedAt := b.UpdatedAt
	return modeldto.Balance{
		Currency:  b.CurrencyCode,
		Amount:    b.Amount,
		UpdatedAt: &updatedAt,
	}
}

func toTransactionDTO(t *modelstorage.TransactionStorageEntry) modeldto.Transaction {
	return modeldto.Transaction{
		ID:                 t.ID,
		UserID:             t.UserID,
		Type:               t.Type,
		Currency:           t.CurrencyCode,
		Amount:             t.Amount,
		CounterpartyUserID: t.CounterpartyUserID,
		TargetCurrency:     t.TargetCurrencyCode,
		TargetAmount:       t.TargetAmount,
		Rate:               t.Rate,
		Reference:          t.Reference,
		Description:        t.Description,
		CreatedBy:          t.CreatedBy,
		CreatedAt:          t.CreatedAt,
	}
}

// convert expresses amount of from in units of to, truncated to the precision of to.
func convert(amount decimal.Decimal, from, to *modelstorage.CurrencyStorageEntry) (decimal.Decimal, decimal.Decimal) {
	if from.Code == to.Code {
		return amount, decimal.NewFromInt(1)
	}
	rate := from.RateToBase.DivRound(to.RateToBase, 18)
	return amount.Mul(from.RateToBase).DivRound(to.RateToBase, 18).Truncate(to.Decimals), rate
}
