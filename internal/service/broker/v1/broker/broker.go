// Package broker distributes exchange rate refresh jobs over a pool of workers.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	clientErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/errors"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/metrics"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelqueue"
)

const defaultBackoff = 500 * time.Millisecond

// RateFetcher retrieves a single exchange rate.
type RateFetcher interface {
	GetRate(ctx context.Context, code, base string) (decimal.Decimal, error)
}

// Broker defines attributes of a struct available to its methods.
type Broker struct {
	ctx     context.Context
	log     *zerolog.Logger
	fetcher RateFetcher
	cfg     *config.QueueConfig
	wg      *sync.WaitGroup
	backoff time.Duration
}

// GetRateWorker consumes refresh jobs from the shared queue.
type GetRateWorker struct {
	ID       int
	ctx      context.Context
	log      *zerolog.Logger
	fetcher  RateFetcher
	retries  int
	backoff  time.Duration
	queueIn  chan modelqueue.RateQueueEntry
	queueOut chan modelqueue.RateResult
	pending  *sync.WaitGroup
}

// InitBroker initializes a broker. Background loops stop once ctx is done.
func InitBroker(ctx context.Context, fetcher RateFetcher, cfg *config.QueueConfig, log *zerolog.Logger, wg *sync.WaitGroup) (*Broker, error) {
	if fetcher == nil {
		return nil, errors.New("nil rate fetcher was passed to broker initializer")
	}
	if cfg == nil || cfg.WorkerNumber <= 0 {
		return nil, errors.New("broker requires a positive number of workers")
	}
	return &Broker{
		ctx:     ctx,
		log:     log,
		fetcher: fetcher,
		cfg:     cfg,
		wg:      wg,
		backoff: defaultBackoff,
	}, nil
}

// Sync fetches rates of codes against the base currency and returns one result per code.
func (b *Broker) Sync(ctx context.Context, codes []string) []modelqueue.RateResult {
	if len(codes) == 0 {
		return nil
	}
	// every job is either in the queue or held by a worker, so the buffer never blocks
	queueIn := make(chan modelqueue.RateQueueEntry, len(codes))
	queueOut := make(chan modelqueue.RateResult, len(codes))
	pending := &sync.WaitGroup{}
	pending.Add(len(codes))
	for _, code := range codes {
		queueIn <- modelqueue.RateQueueEntry{CurrencyCode: code, BaseCode: b.cfg.BaseCurrency}
	}
	go func() {
		pending.Wait()
		close(queueIn)
	}()

	workers := b.cfg.WorkerNumber
	if workers > len(codes) {
		workers = len(codes)
	}
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		w := &GetRateWorker{
			ID:       i,
			ctx:      gCtx,
			log:      b.log,
			fetcher:  b.fetcher,
			retries:  b.cfg.RetryNumber,
			backoff:  b.backoff,
			queueIn:  queueIn,
			queueOut: queueOut,
			pending:  pending,
		}
		g.Go(w.processAsync)
	}
	if err := g.Wait(); err != nil {
		b.log.Error().Err(err).Msg("rate workers stopped")
	}
	close(queueOut)

	results := make([]modelqueue.RateResult, 0, len(codes))
	for res := range queueOut {
		if res.Err != nil {
			metrics.RatesSync.WithLabelValues("failed").Inc()
		} else {
			metrics.RatesSync.WithLabelValues("ok").Inc()
		}
		results = append(results, res)
	}
	// jobs abandoned on cancellation still get a result
	if len(results) < len(codes) {
		seen := make(map[string]bool, len(results))
		for _, res := range results {
			seen[res.CurrencyCode] = true
		}
		for _, code := range codes {
			if !seen[code] {
				pending.Done()
				metrics.RatesSync.WithLabelValues("failed").Inc()
				results = append(results, modelqueue.RateResult{CurrencyCode: code, Err: ctx.Err()})
			}
		}
	}
	return results
}

// ListenAndProcess runs job every interval until the broker context is done.
func (b *Broker) ListenAndProcess(interval time.Duration, job func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.log.Info().Msgf("started periodic rate synchronization every %s", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				b.log.Info().Msg("stopped periodic rate synchronization")
				return
			case <-ticker.C:
				job(b.ctx)
			}
		}
	}()
}

func (w *GetRateWorker) processAsync() error {
	for {
		var record modelqueue.RateQueueEntry
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case entry, ok := <-w.queueIn:
			if !ok {
				return nil
			}
			record = entry
		}
		if wait := time.Until(record.LastChecked.Add(record.RetryAfter)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-w.ctx.Done():
				timer.Stop()
				return w.ctx.Err()
			case <-timer.C:
			}
		}

		rate, err := w.fetcher.GetRate(w.ctx, record.CurrencyCode, record.BaseCode)
		if err == nil {
			w.log.Debug().Msgf("WID %v, currency %v: rate updated", w.ID, record.CurrencyCode)
			w.finish(modelqueue.RateResult{CurrencyCode: record.CurrencyCode, Rate: rate})
			continue
		}
		if w.ctx.Err() != nil {
			return w.ctx.Err()
		}
		if record.RetryCount >= w.retries {
			w.log.Warn().Err(err).Msgf("WID %v, currency %v: abandonment due to retry limit exceeding", w.ID, record.CurrencyCode)
			w.finish(modelqueue.RateResult{CurrencyCode: record.CurrencyCode, Err: err})
			continue
		}
		w.log.Warn().Err(err).Msgf("WID %v, currency %v: could not process, sending back to queue", w.ID, record.CurrencyCode)
		record.RetryCount++
		record.LastChecked = time.Now()
		record.RetryAfter = w.backoff * time.Duration(record.RetryCount)
		var throttled *clientErrors.RatesTooManyRequestsError
		if errors.As(err, &throttled) && throttled.RetryAfter > record.RetryAfter {
			record.RetryAfter = throttled.RetryAfter
		}
		w.queueIn <- record
	}
}

func (w *GetRateWorker) finish(res modelqueue.RateResult) {
	w.queueOut <- res
	w.pending.Done()
}
