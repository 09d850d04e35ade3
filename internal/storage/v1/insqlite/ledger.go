package insqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	storage "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

// GetBalances retrieves all balances of a user ordered by currency.
func (s *Storage) GetBalances(ctx context.Context, userID string) ([]modelstorage.BalanceStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting balances", func() ([]modelstorage.BalanceStorageEntry, error) {
		var balances []modelstorage.BalanceStorageEntry
		if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("currency_code").Find(&balances).Error; err != nil {
			return nil, classify(err, userID)
		}
		return balances, nil
	})
}

// GetBalance retrieves a single balance.
func (s *Storage) GetBalance(ctx context.Context, userID, code string) (*modelstorage.BalanceStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting balance", func() (*modelstorage.BalanceStorageEntry, error) {
		var b modelstorage.BalanceStorageEntry
		if err := s.DB.WithContext(ctx).Where("user_id = ? AND currency_code = ?", userID, code).First(&b).Error; err != nil {
			return nil, classify(err, code)
		}
		return &b, nil
	})
}

// ApplyTransaction applies postings and records the transaction in a single DB transaction.
func (s *Storage) ApplyTransaction(ctx context.Context, tx *modelstorage.TransactionStorageEntry, postings []modelstorage.Posting) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("applying %s transaction %s", tx.Type, tx.ID), func() (struct{}, error) {
		err := s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			for _, p := range storage.NormalizePostings(postings) {
				if err := applyPosting(db, p, tx); err != nil {
					return err
				}
			}
			return classify(db.Create(tx).Error, tx.ID)
		})
		return struct{}{}, err
	})
	return err
}

func applyPosting(db *gorm.DB, p modelstorage.Posting, tx *modelstorage.TransactionStorageEntry) error {
	var b modelstorage.BalanceStorageEntry
	err := db.Where("user_id = ? AND currency_code = ?", p.UserID, p.CurrencyCode).First(&b).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		b = modelstorage.BalanceStorageEntry{
			UserID:       p.UserID,
			CurrencyCode: p.CurrencyCode,
			Amount:       decimal.Zero,
			UpdatedAt:    tx.CreatedAt,
		}
		if err = db.Create(&b).Error; err != nil {
			return classify(err, p.UserID+"/"+p.CurrencyCode)
		}
	case err != nil:
		return classify(err, p.UserID+"/"+p.CurrencyCode)
	}
	updated := b.Amount.Add(p.Delta)
	if updated.IsNegative() {
		return &storageErrors.InsufficientFundsError{UserID: p.UserID, CurrencyCode: p.CurrencyCode}
	}
	err = db.Model(&modelstorage.BalanceStorageEntry{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"amount":     updated,
		"updated_at": tx.CreatedAt,
	}).Error
	return classify(err, p.UserID+"/"+p.CurrencyCode)
}

// GetTransaction retrieves a transaction by identifier.
func (s *Storage) GetTransaction(ctx context.Context, txID string) (*modelstorage.TransactionStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting transaction", func() (*modelstorage.TransactionStorageEntry, error) {
		var t modelstorage.TransactionStorageEntry
		if err := s.DB.WithContext(ctx).Where("id = ?", txID).First(&t).Error; err != nil {
			return nil, classify(err, txID)
		}
		return &t, nil
	})
}

// ListTransactions retrieves transactions newest first.
func (s *Storage) ListTransactions(ctx context.Context, filter modelstorage.TransactionFilter) ([]modelstorage.TransactionStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing transactions", func() ([]modelstorage.TransactionStorageEntry, error) {
		query := s.DB.WithContext(ctx).Model(&modelstorage.TransactionStorageEntry{})
		if filter.UserID != "" {
			query = query.Where("(user_id = ? OR counterparty_user_id = ?)", filter.UserID, filter.UserID)
		}
		if filter.Type != "" {
			query = query.Where("type = ?", filter.Type)
		}
		if filter.CurrencyCode != "" {
			query = query.Where("(currency_code = ? OR target_currency_code = ?)", filter.CurrencyCode, filter.CurrencyCode)
		}
		if filter.From != nil {
			query = query.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("created_at < ?", *filter.To)
		}
		var transactions []modelstorage.TransactionStorageEntry
		err := query.Order("created_at DESC, id").Limit(filter.Limit).Offset(filter.Offset).Find(&transactions).Error
		if err != nil {
			return nil, classify(err, "")
		}
		return transactions, nil
	})
}

type groupCount struct {
	Name  string
	Count int64
}

// GetStats aggregates users, transactions and balances.
func (s *Storage) GetStats(ctx context.Context) (*modelstorage.Stats, error) {
	return storage.Run(ctx, s.log, "getting stats", func() (*modelstorage.Stats, error) {
		stats := &modelstorage.Stats{
			UsersByRole:        map[string]int64{},
			TransactionsByType: map[string]int64{},
			TotalsByCurrency:   map[string]decimal.Decimal{},
		}
		db := s.DB.WithContext(ctx)
		var groups []groupCount
		err := db.Model(&modelstorage.UserStorageEntry{}).Select("role AS name, COUNT(*) AS count").Group("role").Scan(&groups).Error
		if err != nil {
			return nil, classify(err, "")
		}
		for _, g := range groups {
			stats.UsersByRole[g.Name] = g.Count
		}
		groups = nil
		err = db.Model(&modelstorage.TransactionStorageEntry{}).Select("type AS name, COUNT(*) AS count").Group("type").Scan(&groups).Error
		if err != nil {
			return nil, classify(err, "")
		}
		for _, g := range groups {
			stats.TransactionsByType[g.Name] = g.Count
		}
		if err = db.Model(&modelstorage.UserStorageEntry{}).Where("is_active = ?", true).Count(&stats.ActiveUsers).Error; err != nil {
			return nil, classify(err, "")
		}
		// amounts are stored as text, so SQL SUM would lose precision
		var balances []modelstorage.BalanceStorageEntry
		if err = db.Find(&balances).Error; err != nil {
			return nil, classify(err, "")
		}
		for _, b := range balances {
			stats.TotalsByCurrency[b.CurrencyCode] = stats.TotalsByCurrency[b.CurrencyCode].Add(b.Amount)
		}
		return stats, nil
	})
}
