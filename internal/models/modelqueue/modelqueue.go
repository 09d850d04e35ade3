// Package modelqueue provides types for queueing pieces of data.

package modelqueue

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateQueueEntry is a single currency rate refresh job.
type RateQueueEntry struct {
	CurrencyCode string
	BaseCode     string
	RetryCount   int
	LastChecked  time.Time
	RetryAfter   time.Duration
}

// RateResult is the outcome of a rate refresh job.
type RateResult struct {
	CurrencyCode string
	Rate         decimal.Decimal
	Err          error
}
