package broker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clientErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/errors"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelqueue"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	rates    map[string]decimal.Decimal
}

func (f *fakeFetcher) GetRate(_ context.Context, code, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[code]++
	if f.failures[code] > 0 {
		f.failures[code]--
		return decimal.Zero, &clientErrors.RatesTooManyRequestsError{Code: code}
	}
	rate, ok := f.rates[code]
	if !ok {
		return decimal.Zero, errors.New("unknown currency")
	}
	return rate, nil
}

func newTestBroker(t *testing.T, ctx context.Context, fetcher RateFetcher, retries int) *Broker {
	t.Helper()
	log := zerolog.Nop()
	b, err := InitBroker(ctx, fetcher, &config.QueueConfig{WorkerNumber: 2, RetryNumber: retries, BaseCurrency: "USD"}, &log, &sync.WaitGroup{})
	require.NoError(t, err)
	b.backoff = time.Millisecond
	return b
}

func byCode(results []modelqueue.RateResult) map[string]modelqueue.RateResult {
	out := make(map[string]modelqueue.RateResult, len(results))
	for _, res := range results {
		out[res.CurrencyCode] = res
	}
	return out
}

func TestSyncRetriesAndAbandons(t *testing.T) {
	fetcher := &fakeFetcher{
		calls:    map[string]int{},
		failures: map[string]int{"EUR": 2, "GBP": 5},
		rates: map[string]decimal.Decimal{
			"EUR": decimal.RequireFromString("1.08"),
			"GBP": decimal.RequireFromString("1.27"),
			"JPY": decimal.RequireFromString("0.0067"),
		},
	}
	b := newTestBroker(t, context.Background(), fetcher, 3)

	results := b.Sync(context.Background(), []string{"EUR", "GBP", "JPY", "XXX"})
	require.Len(t, results, 4)
	got := byCode(results)

	require.NoError(t, got["EUR"].Err)
	assert.True(t, got["EUR"].Rate.Equal(decimal.RequireFromString("1.08")))
	require.NoError(t, got["JPY"].Err)
	assert.Error(t, got["GBP"].Err)
	assert.Error(t, got["XXX"].Err)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Equal(t, 3, fetcher.calls["EUR"])
	assert.Equal(t, 4, fetcher.calls["GBP"])
	assert.Equal(t, 4, fetcher.calls["XXX"])
	assert.Equal(t, 1, fetcher.calls["JPY"])
}

type blockingFetcher struct{}

func (blockingFetcher) GetRate(ctx context.Context, _, _ string) (decimal.Decimal, error) {
	<-ctx.Done()
	return decimal.Zero, ctx.Err()
}

func TestSyncStopsOnCancel(t *testing.T) {
	b := newTestBroker(t, context.Background(), blockingFetcher{}, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results := b.Sync(ctx, []string{"EUR", "GBP", "JPY"})
	require.Len(t, results, 3)
	codes := make([]string, 0, len(results))
	for _, res := range results {
		assert.Error(t, res.Err)
		codes = append(codes, res.CurrencyCode)
	}
	sort.Strings(codes)
	assert.Equal(t, []string{"EUR", "GBP", "JPY"}, codes)
}

func TestListenAndProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	log := zerolog.Nop()
	b, err := InitBroker(ctx, blockingFetcher{}, &config.QueueConfig{WorkerNumber: 1}, &log, wg)
	require.NoError(t, err)

	ticks := make(chan struct{}, 10)
	b.ListenAndProcess(5*time.Millisecond, func(context.Context) { ticks <- struct{}{} })
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("job was not run")
	}
	cancel()
	wg.Wait()
}

func TestInitBrokerRejectsBadArguments(t *testing.T) {
	log := zerolog.Nop()
	_, err := InitBroker(context.Background(), nil, &config.QueueConfig{WorkerNumber: 1}, &log, &sync.WaitGroup{})
	assert.Error(t, err)
	_, err = InitBroker(context.Background(), blockingFetcher{}, &config.QueueConfig{}, &log, &sync.WaitGroup{})
	assert.Error(t, err)
}
