package processor

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

type seedCurrency struct {
	name     string
	symbol   string
	decimals int32
	usdRate  string
}

// rates in US dollars, refreshed by SyncRates once a provider is reachable
var seedCurrencies = map[string]seedCurrency{
	"USD": {name: "US Dollar", symbol: "$", decimals: 2, usdRate: "1"},
	"EUR": {name: "Euro", symbol: "€", decimals: 2, usdRate: "1.08"},
	"GBP": {name: "British Pound", symbol: "£", decimals: 2, usdRate: "1.27"},
	"JPY": {name: "Japanese Yen", symbol: "¥", decimals: 0, usdRate: "0.0067"},
	"BTC": {name: "Bitcoin", symbol: "₿", decimals: 8, usdRate: "65000"},
}

var seedOrder = []string{"EUR", "GBP", "JPY", "BTC"}

func (proc *Processor) baseCurrency() string {
	return proc.cfg.QueueConfig.BaseCurrency
}

// SeedCurrencies creates the base currency and the default set of currencies when they are missing.
func (proc *Processor) SeedCurrencies(ctx context.Context) error {
	base := proc.baseCurrency()
	now := proc.now()
	baseSeed, known := seedCurrencies[base]
	if !known {
		baseSeed = seedCurrency{name: base, symbol: base, decimals: 2, usdRate: "1"}
	}
	entries := []modelstorage.CurrencyStorageEntry{{
		Code:       base,
		Name:       baseSeed.name,
		Symbol:     baseSeed.symbol,
		Decimals:   baseSeed.decimals,
		RateToBase: decimal.NewFromInt(1),
		IsActive:   true,
		UpdatedAt:  now,
	}}
	// without a known USD rate of the base the defaults cannot be expressed in it
	if known {
		baseRate := decimal.RequireFromString(baseSeed.usdRate)
		for _, code := range append([]string{"USD"}, seedOrder...) {
			if code == base {
				continue
			}
			seed := seedCurrencies[code]
			entries = append(entries, modelstorage.CurrencyStorageEntry{
				Code:       code,
				Name:       seed.name,
				Symbol:     seed.symbol,
				Decimals:   seed.decimals,
				RateToBase: decimal.RequireFromString(seed.usdRate).DivRound(baseRate, 18),
				IsActive:   true,
				UpdatedAt:  now,
			})
		}
	}
	for i := range entries {
		err := proc.storage.AddNewCurrency(ctx, &entries[i])
		var alreadyExistsError *storageErrors.AlreadyExistsError
		if err != nil && !errors.As(err, &alreadyExistsError) {
			return err
		}
	}
	return nil
}

// ListCurrencies lists currencies ordered by code.
func (proc *Processor) ListCurrencies(ctx context.Context, activeOnly bool) ([]modeldto.Currency, error) {
	currencies, err := proc.storage.ListCurrencies(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]modeldto.Currency, 0, len(currencies))
	for i := range currencies {
		out = append(out, toCurrencyDTO(&currencies[i]))
	}
	return out, nil
}

// GetCurrency returns a single currency.
func (proc *Processor) GetCurrency(ctx context.Context, code string) (*modeldto.Currency, error) {
	currency, err := proc.storage.GetCurrency(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	dto := toCurrencyDTO(currency)
	return &dto, nil
}

// CreateCurrency registers a new currency.
func (proc *Processor) CreateCurrency(ctx context.Context, req modeldto.CurrencyRequest) (*modeldto.Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	rate := req.RateToBase
	if code == proc.baseCurrency() {
		rate = decimal.NewFromInt(1)
	}
	if !rate.IsPositive() {
		return nil, serviceErrors.Invalid("rate_to_base", "must be positive")
	}
	decimals := int32(2)
	if req.Decimals != nil {
		decimals = *req.Decimals
	}
	currency := &modelstorage.CurrencyStorageEntry{
		Code:       code,
		Name:       strings.TrimSpace(req.Name),
		Symbol:     strings.TrimSpace(req.Symbol),
		Decimals:   decimals,
		RateToBase: rate,
		IsActive:   true,
		UpdatedAt:  proc.now(),
	}
	if err := proc.storage.AddNewCurrency(ctx, currency); err != nil {
		return nil, err
	}
	dto := toCurrencyDTO(currency)
	return &dto, nil
}

// UpdateCurrency changes a currency. The rate and activity of the base currency are fixed.
func (proc *Processor) UpdateCurrency(ctx context.Context, code string, req modeldto.UpdateCurrencyRequest) (*modeldto.Currency, error) {
	currency, err := proc.storage.GetCurrency(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	isBase := currency.Code == proc.baseCurrency()
	if req.Name != nil {
		currency.Name = strings.TrimSpace(*req.Name)
	}
	if req.Symbol != nil {
		currency.Symbol = strings.TrimSpace(*req.Symbol)
	}
	if req.Decimals != nil {
		currency.Decimals = *req.Decimals
	}
	if req.RateToBase != nil && !req.RateToBase.Equal(currency.RateToBase) {
		if isBase {
			return nil, serviceErrors.Invalid("rate_to_base", "the rate of the base currency is fixed")
		}
		if !req.RateToBase.IsPositive() {
			return nil, serviceErrors.Invalid("rate_to_base", "must be positive")
		}
		currency.RateToBase = *req.RateToBase
	}
	if req.IsActive != nil && *req.IsActive != currency.IsActive {
		if isBase {
			return nil, serviceErrors.Invalid("is_active", "the base currency cannot be deactivated")
		}
		currency.IsActive = *req.IsActive
	}
	currency.UpdatedAt = proc.now()
	if err = proc.storage.UpdateCurrency(ctx, currency); err != nil {
		return nil, err
	}
	dto := toCurrencyDTO(currency)
	return &dto, nil
}

// SyncRates refreshes the rates of all active non-base currencies from the rates provider.
func (proc *Processor) SyncRates(ctx context.Context) (*modeldto.SyncResult, error) {
	currencies, err := proc.storage.ListCurrencies(ctx, true)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*modelstorage.CurrencyStorageEntry, len(currencies))
	var codes []string
	for i := range currencies {
		if currencies[i].Code == proc.baseCurrency() {
			continue
		}
		byCode[currencies[i].Code] = &currencies[i]
		codes = append(codes, currencies[i].Code)
	}
	result := &modeldto.SyncResult{Updated: []string{}, Failed: map[string]string{}}
	for _, res := range proc.syncer.Sync(ctx, codes) {
		if res.Err != nil {
			result.Failed[res.CurrencyCode] = res.Err.Error()
			continue
		}
		currency, ok := byCode[res.CurrencyCode]
		if !ok {
			continue
		}
		currency.RateToBase = res.Rate
		currency.UpdatedAt = proc.now()
		if err = proc.storage.UpdateCurrency(ctx, currency); err != nil {
			result.Failed[res.CurrencyCode] = err.Error()
			continue
		}
		result.Updated = append(result.Updated, res.CurrencyCode)
	}
	sort.Strings(result.Updated)
	proc.log.Info().Msgf("exchange rates synchronized: %d updated, %d failed", len(result.Updated), len(result.Failed))
	return result, nil
}
