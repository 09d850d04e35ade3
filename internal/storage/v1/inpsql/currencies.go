package inpsql

import (
	"context"
	"fmt"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	storage "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const currencyColumns = `code, name, symbol, decimals, rate_to_base, is_active, updated_at`

func scanCurrency(row rowScanner, c *modelstorage.CurrencyStorageEntry) error {
	return row.Scan(&c.Code, &c.Name, &c.Symbol, &c.Decimals, &c.RateToBase, &c.IsActive, &c.UpdatedAt)
}

// AddNewCurrency inserts a currency row.
func (s *Storage) AddNewCurrency(ctx context.Context, currency *modelstorage.CurrencyStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("adding new currency %s", currency.Code), func() (struct{}, error) {
		_, err := s.DB.ExecContext(ctx, `INSERT INTO currencies (`+currencyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			currency.Code, currency.Name, currency.Symbol, currency.Decimals, currency.RateToBase, currency.IsActive, currency.UpdatedAt)
		return struct{}{}, classify(err, currency.Code)
	})
	return err
}

// GetCurrency retrieves a currency by code.
func (s *Storage) GetCurrency(ctx context.Context, code string) (*modelstorage.CurrencyStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting currency", func() (*modelstorage.CurrencyStorageEntry, error) {
		var c modelstorage.CurrencyStorageEntry
		err := scanCurrency(s.DB.QueryRowContext(ctx, `SELECT `+currencyColumns+` FROM currencies WHERE code = $1`, code), &c)
		if err != nil {
			return nil, classify(err, code)
		}
		return &c, nil
	})
}

// ListCurrencies retrieves currencies ordered by code.
func (s *Storage) ListCurrencies(ctx context.Context, activeOnly bool) ([]modelstorage.CurrencyStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing currencies", func() ([]modelstorage.CurrencyStorageEntry, error) {
		query := `SELECT ` + currencyColumns + ` FROM currencies`
		if activeOnly {
			query += ` WHERE is_active`
		}
		rows, err := s.DB.QueryContext(ctx, query+` ORDER BY code`)
		if err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		defer rows.Close()
		var currencies []modelstorage.CurrencyStorageEntry
		for rows.Next() {
			var c modelstorage.CurrencyStorageEntry
			if err = scanCurrency(rows, &c); err != nil {
				return nil, &storageErrors.ScanningError{Err: err}
			}
			currencies = append(currencies, c)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningError{Err: err}
		}
		return currencies, nil
	})
}

// UpdateCurrency overwrites the mutable columns of a currency.
func (s *Storage) UpdateCurrency(ctx context.Context, currency *modelstorage.CurrencyStorageEntry) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("updating currency %s", currency.Code), func() (struct{}, error) {
		res, err := s.DB.ExecContext(ctx, `UPDATE currencies SET name = $2, symbol = $3, decimals = $4, rate_to_base = $5,
			is_active = $6, updated_at = $7 WHERE code = $1`,
			currency.Code, currency.Name, currency.Symbol, currency.Decimals, currency.RateToBase, currency.IsActive, currency.UpdatedAt)
		if err != nil {
			return struct{}{}, classify(err, currency.Code)
		}
		return struct{}{}, expectAffected(res, currency.Code)
	})
	return err
}
