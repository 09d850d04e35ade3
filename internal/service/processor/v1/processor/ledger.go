package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/ShiraazMoollatjie/goluhn"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/metrics"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

// activeCurrency loads a currency that may take part in new transactions.
func (proc *Processor) activeCurrency(ctx context.Context, code string) (*modelstorage.CurrencyStorageEntry, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	currency, err := proc.storage.GetCurrency(ctx, code)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return nil, &serviceErrors.UnsupportedCurrencyError{Code: code}
		}
		return nil, err
	}
	if !currency.IsActive {
		return nil, &serviceErrors.UnsupportedCurrencyError{Code: code}
	}
	return currency, nil
}

func checkPrecision(field string, amount decimal.Decimal, currency *modelstorage.CurrencyStorageEntry) error {
	if !amount.Equal(amount.Truncate(currency.Decimals)) {
		return serviceErrors.Invalid(field, "has more decimal places than "+currency.Code+" allows")
	}
	return nil
}

func maskCard(number string) string {
	return "card:****" + number[len(number)-4:]
}

// CreateTransaction records a deposit, withdrawal, transfer or exchange of the caller.
func (proc *Processor) CreateTransaction(ctx context.Context, p *modelprincipal.Principal, req modeldto.TransactionRequest) (*modeldto.Transaction, error) {
	if !p.HasRole(modelstorage.RoleAdmin, modelstorage.RoleTrader) {
		return nil, &serviceErrors.ForbiddenError{Msg: "insufficient permissions"}
	}
	if !req.Amount.IsPositive() {
		return nil, serviceErrors.Invalid("amount", "must be positive")
	}
	currency, err := proc.activeCurrency(ctx, req.Currency)
	if err != nil {
		return nil, err
	}
	if err = checkPrecision("amount", req.Amount, currency); err != nil {
		return nil, err
	}
	if req.CardNumber != "" && req.Type != modelstorage.TxDeposit {
		return nil, serviceErrors.Invalid("card_number", "is only accepted for deposits")
	}

	tx := &modelstorage.TransactionStorageEntry{
		ID:           uuid.New().String(),
		UserID:       p.UserID,
		Type:         req.Type,
		CurrencyCode: currency.Code,
		Amount:       req.Amount,
		Description:  proc.sanitize(req.Description),
		CreatedBy:    p.UserID,
		CreatedAt:    proc.now(),
	}
	var postings []modelstorage.Posting
	switch req.Type {
	case modelstorage.TxDeposit:
		if req.CardNumber != "" {
			if err = goluhn.Validate(req.CardNumber); err != nil {
				return nil, serviceErrors.Invalid("card_number", "fails the Luhn check")
			}
			tx.Reference = maskCard(req.CardNumber)
		}
		postings = append(postings, modelstorage.Posting{UserID: p.UserID, CurrencyCode: currency.Code, Delta: req.Amount})
	case modelstorage.TxWithdrawal:
		postings = append(postings, modelstorage.Posting{UserID: p.UserID, CurrencyCode: currency.Code, Delta: req.Amount.Neg()})
	case modelstorage.TxTransfer:
		recipient, err := proc.recipient(ctx, p, req.ToUserID)
		if err != nil {
			return nil, err
		}
		tx.CounterpartyUserID = &recipient.ID
		postings = append(postings,
			modelstorage.Posting{UserID: p.UserID, CurrencyCode: currency.Code, Delta: req.Amount.Neg()},
			modelstorage.Posting{UserID: recipient.ID, CurrencyCode: currency.Code, Delta: req.Amount},
		)
	case modelstorage.TxExchange:
		if strings.TrimSpace(req.TargetCurrency) == "" {
			return nil, serviceErrors.Invalid("target_currency", "is required for exchanges")
		}
		target, err := proc.activeCurrency(ctx, req.TargetCurrency)
		if err != nil {
			return nil, err
		}
		if target.Code == currency.Code {
			return nil, serviceErrors.Invalid("target_currency", "must differ from currency")
		}
		converted, rate := convert(req.Amount, currency, target)
		if !converted.IsPositive() {
			return nil, serviceErrors.Invalid("amount", "is too small to exchange")
		}
		tx.TargetCurrencyCode = &target.Code
		tx.TargetAmount = &converted
		tx.Rate = &rate
		postings = append(postings,
			modelstorage.Posting{UserID: p.UserID, CurrencyCode: currency.Code, Delta: req.Amount.Neg()},
			modelstorage.Posting{UserID: p.UserID, CurrencyCode: target.Code, Delta: converted},
		)
	default:
		return nil, serviceErrors.Invalid("type", "must be one of deposit, withdrawal, transfer, exchange")
	}

	if err = proc.storage.ApplyTransaction(ctx, tx, postings); err != nil {
		return nil, err
	}
	metrics.Transactions.WithLabelValues(tx.Type).Inc()
	dto := toTransactionDTO(tx)
	return &dto, nil
}

func (proc *Processor) recipient(ctx context.Context, p *modelprincipal.Principal, userID string) (*modelstorage.UserStorageEntry, error) {
	if userID == "" {
		return nil, serviceErrors.Invalid("to_user_id", "is required for transfers")
	}
	if userID == p.UserID {
		return nil, serviceErrors.Invalid("to_user_id", "cannot transfer to yourself")
	}
	recipient, err := proc.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !recipient.IsActive {
		return nil, serviceErrors.Invalid("to_user_id", "recipient is inactive")
	}
	return recipient, nil
}

// AdjustBalance applies a signed administrative correction to a balance.
func (proc *Processor) AdjustBalance(ctx context.Context, p *modelprincipal.Principal, req modeldto.AdjustBalanceRequest) (*modeldto.Transaction, error) {
	if req.Amount.IsZero() {
		return nil, serviceErrors.Invalid("amount", "must not be zero")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	currency, err := proc.storage.GetCurrency(ctx, code)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return nil, &serviceErrors.UnsupportedCurrencyError{Code: code}
		}
		return nil, err
	}
	if err = checkPrecision("amount", req.Amount, currency); err != nil {
		return nil, err
	}
	user, err := proc.storage.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	tx := &modelstorage.TransactionStorageEntry{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Type:         modelstorage.TxAdjustment,
		CurrencyCode: currency.Code,
		Amount:       req.Amount,
		Description:  proc.sanitize(req.Description),
		CreatedBy:    p.UserID,
		CreatedAt:    proc.now(),
	}
	err = proc.storage.ApplyTransaction(ctx, tx, []modelstorage.Posting{
		{UserID: user.ID, CurrencyCode: currency.Code, Delta: req.Amount},
	})
	if err != nil {
		return nil, err
	}
	metrics.Transactions.WithLabelValues(tx.Type).Inc()
	proc.log.Info().Msgf("balance %s of %s adjusted by %s by %s", currency.Code, user.Username, req.Amount, p.Username)
	dto := toTransactionDTO(tx)
	return &dto, nil
}

func (proc *Processor) balanceOwner(ctx context.Context, p *modelprincipal.Principal, userID string) (string, error) {
	owner, err := targetUser(p, userID)
	if err != nil {
		return "", err
	}
	if owner != p.UserID {
		if _, err = proc.storage.GetUserByID(ctx, owner); err != nil {
			return "", err
		}
	}
	return owner, nil
}

// ListBalances returns all balances of the caller, or of user_id for admins.
func (proc *Processor) ListBalances(ctx context.Context, p *modelprincipal.Principal, userID string) ([]modeldto.Balance, error) {
	owner, err := proc.balanceOwner(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	balances, err := proc.storage.GetBalances(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]modeldto.Balance, 0, len(balances))
	for i := range balances {
		out = append(out, toBalanceDTO(&balances[i]))
	}
	return out, nil
}

// GetBalance returns one balance. A currency never used by the owner has a zero balance.
func (proc *Processor) GetBalance(ctx context.Context, p *modelprincipal.Principal, userID, code string) (*modeldto.Balance, error) {
	owner, err := proc.balanceOwner(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	currency, err := proc.storage.GetCurrency(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	balance, err := proc.storage.GetBalance(ctx, owner, currency.Code)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return &modeldto.Balance{Currency: currency.Code, Amount: decimal.Zero}, nil
		}
		return nil, err
	}
	dto := toBalanceDTO(balance)
	return &dto, nil
}

// GetTotal sums all balances of the owner expressed in code.
func (proc *Processor) GetTotal(ctx context.Context, p *modelprincipal.Principal, userID, code string) (*modeldto.BalanceTotal, error) {
	owner, err := proc.balanceOwner(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	if code == "" {
		code = proc.baseCurrency()
	}
	target, err := proc.storage.GetCurrency(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	currencies, err := proc.storage.ListCurrencies(ctx, false)
	if err != nil {
		return nil, err
	}
	rates := make(map[string]decimal.Decimal, len(currencies))
	for _, c := range currencies {
		rates[c.Code] = c.RateToBase
	}
	balances, err := proc.storage.GetBalances(ctx, owner)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	out := make([]modeldto.Balance, 0, len(balances))
	for i := range balances {
		b := &balances[i]
		out = append(out, toBalanceDTO(b))
		if rate, ok := rates[b.CurrencyCode]; ok {
			total = total.Add(b.Amount.Mul(rate).DivRound(target.RateToBase, 18))
		}
	}
	return &modeldto.BalanceTotal{
		Currency: target.Code,
		Total:    total.Truncate(target.Decimals),
		Balances: out,
	}, nil
}

// ListTransactions lists transactions visible to the caller, newest first.
func (proc *Processor) ListTransactions(ctx context.Context, p *modelprincipal.Principal, query modeldto.TransactionQuery) ([]modeldto.Transaction, error) {
	filter := modelstorage.TransactionFilter{
		UserID:       p.UserID,
		Type:         query.Type,
		CurrencyCode: strings.ToUpper(query.Currency),
		From:         query.From,
		To:           query.To,
	}
	filter.Limit, filter.Offset = page(query.Limit, query.Offset)
	if p.HasRole(modelstorage.RoleAdmin) {
		filter.UserID = query.UserID
	} else if query.UserID != "" && query.UserID != p.UserID {
		return nil, &serviceErrors.ForbiddenError{Msg: "insufficient permissions"}
	}
	switch filter.Type {
	case "", modelstorage.TxDeposit, modelstorage.TxWithdrawal, modelstorage.TxTransfer, modelstorage.TxExchange, modelstorage.TxAdjustment:
	default:
		return nil, serviceErrors.Invalid("type", "unknown transaction type")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, serviceErrors.Invalid("from", "must precede to")
	}
	transactions, err := proc.storage.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]modeldto.Transaction, 0, len(transactions))
	for i := range transactions {
		out = append(out, toTransactionDTO(&transactions[i]))
	}
	return out, nil
}

// GetTransaction returns a transaction to its owner, its counterparty or an admin.
func (proc *Processor) GetTransaction(ctx context.Context, p *modelprincipal.Principal, txID string) (*modeldto.Transaction, error) {
	tx, err := proc.storage.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	visible := tx.UserID == p.UserID ||
		(tx.CounterpartyUserID != nil && *tx.CounterpartyUserID == p.UserID) ||
		p.HasRole(modelstorage.RoleAdmin)
	if !visible {
		return nil, &storageErrors.NotFoundError{ID: txID}
	}
	dto := toTransactionDTO(tx)
	return &dto, nil
}

// Stats aggregates figures for the admin dashboard.
func (proc *Processor) Stats(ctx context.Context) (*modeldto.Stats, error) {
	stats, err := proc.storage.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &modeldto.Stats{
		UsersByRole:        stats.UsersByRole,
		ActiveUsers:        stats.ActiveUsers,
		TransactionsByType: stats.TransactionsByType,
		TotalsByCurrency:   stats.TotalsByCurrency,
	}, nil
}
