package inpsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	storage "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const (
	balanceColumns     = `id, user_id, currency_code, amount, updated_at`
	transactionColumns = `id, user_id, type, currency_code, amount, counterparty_user_id, target_currency_code,
		target_amount, rate, reference, description, created_by, created_at`
)

func scanBalance(row rowScanner, b *modelstorage.BalanceStorageEntry) error {
	return row.Scan(&b.ID, &b.UserID, &b.CurrencyCode, &b.Amount, &b.UpdatedAt)
}

func scanTransaction(row rowScanner, t *modelstorage.TransactionStorageEntry) error {
	return row.Scan(&t.ID, &t.UserID, &t.Type, &t.CurrencyCode, &t.Amount, &t.CounterpartyUserID, &t.TargetCurrencyCode,
		&t.TargetAmount, &t.Rate, &t.Reference, &t.Description, &t.CreatedBy, &t.CreatedAt)
}

// GetBalances retrieves all balances of a user ordered by currency.
func (s *Storage) GetBalances(ctx context.Context, userID string) ([]modelstorage.BalanceStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting balances", func() ([]modelstorage.BalanceStorageEntry, error) {
		rows, err := s.DB.QueryContext(ctx, `SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 ORDER BY currency_code`, userID)
		if err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		defer rows.Close()
		var balances []modelstorage.BalanceStorageEntry
		for rows.Next() {
			var b modelstorage.BalanceStorageEntry
			if err = scanBalance(rows, &b); err != nil {
				return nil, &storageErrors.ScanningError{Err: err}
			}
			balances = append(balances, b)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningError{Err: err}
		}
		return balances, nil
	})
}

// GetBalance retrieves a single balance.
func (s *Storage) GetBalance(ctx context.Context, userID, code string) (*modelstorage.BalanceStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting balance", func() (*modelstorage.BalanceStorageEntry, error) {
		var b modelstorage.BalanceStorageEntry
		err := scanBalance(s.DB.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 AND currency_code = $2`,
			userID, code), &b)
		if err != nil {
			return nil, classify(err, code)
		}
		return &b, nil
	})
}

// ApplyTransaction applies postings under row locks and records the transaction in a single DB transaction.
func (s *Storage) ApplyTransaction(ctx context.Context, tx *modelstorage.TransactionStorageEntry, postings []modelstorage.Posting) error {
	_, err := storage.Run(ctx, s.log, fmt.Sprintf("applying %s transaction %s", tx.Type, tx.ID), func() (struct{}, error) {
		sqlTx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, &storageErrors.ExecutionError{Err: err}
		}
		defer sqlTx.Rollback()

		for _, p := range storage.NormalizePostings(postings) {
			if err = applyPosting(ctx, sqlTx, p, tx); err != nil {
				return struct{}{}, err
			}
		}
		_, err = sqlTx.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			tx.ID, tx.UserID, tx.Type, tx.CurrencyCode, tx.Amount, tx.CounterpartyUserID, tx.TargetCurrencyCode,
			tx.TargetAmount, tx.Rate, tx.Reference, tx.Description, tx.CreatedBy, tx.CreatedAt)
		if err != nil {
			return struct{}{}, classify(err, tx.ID)
		}
		if err = sqlTx.Commit(); err != nil {
			return struct{}{}, &storageErrors.ExecutionError{Err: err}
		}
		return struct{}{}, nil
	})
	return err
}

func applyPosting(ctx context.Context, sqlTx *sql.Tx, p modelstorage.Posting, tx *modelstorage.TransactionStorageEntry) error {
	_, err := sqlTx.ExecContext(ctx, `INSERT INTO balances (user_id, currency_code, amount, updated_at) VALUES ($1, $2, 0, $3)
		ON CONFLICT (user_id, currency_code) DO NOTHING`, p.UserID, p.CurrencyCode, tx.CreatedAt)
	if err != nil {
		return classify(err, p.UserID+"/"+p.CurrencyCode)
	}
	var amount decimal.Decimal
	err = sqlTx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = $1 AND currency_code = $2 FOR UPDATE`,
		p.UserID, p.CurrencyCode).Scan(&amount)
	if err != nil {
		return classify(err, p.UserID+"/"+p.CurrencyCode)
	}
	updated := amount.Add(p.Delta)
	if updated.IsNegative() {
		return &storageErrors.InsufficientFundsError{UserID: p.UserID, CurrencyCode: p.CurrencyCode}
	}
	_, err = sqlTx.ExecContext(ctx, `UPDATE balances SET amount = $3, updated_at = $4 WHERE user_id = $1 AND currency_code = $2`,
		p.UserID, p.CurrencyCode, updated, tx.CreatedAt)
	if err != nil {
		return classify(err, p.UserID+"/"+p.CurrencyCode)
	}
	return nil
}

// GetTransaction retrieves a transaction by identifier.
func (s *Storage) GetTransaction(ctx context.Context, txID string) (*modelstorage.TransactionStorageEntry, error) {
	return storage.Run(ctx, s.log, "getting transaction", func() (*modelstorage.TransactionStorageEntry, error) {
		var t modelstorage.TransactionStorageEntry
		err := scanTransaction(s.DB.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID), &t)
		if err != nil {
			return nil, classify(err, txID)
		}
		return &t, nil
	})
}

// transactionsQuery builds the filtered listing query with numbered placeholders.
func transactionsQuery(filter modelstorage.TransactionFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("(user_id = $%d OR counterparty_user_id = $%d)", len(args), len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.CurrencyCode != "" {
		args = append(args, filter.CurrencyCode)
		where = append(where, fmt.Sprintf("(currency_code = $%d OR target_currency_code = $%d)", len(args), len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return query, args
}

// ListTransactions retrieves transactions newest first.
func (s *Storage) ListTransactions(ctx context.Context, filter modelstorage.TransactionFilter) ([]modelstorage.TransactionStorageEntry, error) {
	return storage.Run(ctx, s.log, "listing transactions", func() ([]modelstorage.TransactionStorageEntry, error) {
		query, args := transactionsQuery(filter)
		rows, err := s.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		defer rows.Close()
		var transactions []modelstorage.TransactionStorageEntry
		for rows.Next() {
			var t modelstorage.TransactionStorageEntry
			if err = scanTransaction(rows, &t); err != nil {
				return nil, &storageErrors.ScanningError{Err: err}
			}
			transactions = append(transactions, t)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningError{Err: err}
		}
		return transactions, nil
	})
}

// GetStats aggregates users, transactions and balances.
func (s *Storage) GetStats(ctx context.Context) (*modelstorage.Stats, error) {
	return storage.Run(ctx, s.log, "getting stats", func() (*modelstorage.Stats, error) {
		stats := &modelstorage.Stats{
			UsersByRole:        map[string]int64{},
			TransactionsByType: map[string]int64{},
			TotalsByCurrency:   map[string]decimal.Decimal{},
		}
		if err := s.groupCount(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`, stats.UsersByRole); err != nil {
			return nil, err
		}
		if err := s.groupCount(ctx, `SELECT type, COUNT(*) FROM transactions GROUP BY type`, stats.TransactionsByType); err != nil {
			return nil, err
		}
		if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_active`).Scan(&stats.ActiveUsers); err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		rows, err := s.DB.QueryContext(ctx, `SELECT currency_code, SUM(amount) FROM balances GROUP BY currency_code`)
		if err != nil {
			return nil, &storageErrors.ExecutionError{Err: err}
		}
		defer rows.Close()
		for rows.Next() {
			var (
				code  string
				total decimal.Decimal
			)
			if err = rows.Scan(&code, &total); err != nil {
				return nil, &storageErrors.ScanningError{Err: err}
			}
			stats.TotalsByCurrency[code] = total
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningError{Err: err}
		}
		return stats, nil
	})
}

func (s *Storage) groupCount(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return &storageErrors.ExecutionError{Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err = rows.Scan(&key, &count); err != nil {
			return &storageErrors.ScanningError{Err: err}
		}
		into[key] = count
	}
	if err = rows.Err(); err != nil {
		return &storageErrors.ScanningError{Err: err}
	}
	return nil
}
