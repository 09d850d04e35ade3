package storage

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

type result[T any] struct {
	value T
	err   error
}

// Run executes fn in its own goroutine and stops waiting for it once ctx is done.
func Run[T any](ctx context.Context, log *zerolog.Logger, op string, fn func() (T, error)) (T, error) {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{value: v, err: err}
	}()
	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msgf("%s failed", op)
		var zero T
		return zero, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case res := <-ch:
		if res.err != nil {
			var notFoundError *storageErrors.NotFoundError
			var fundsError *storageErrors.InsufficientFundsError
			if errors.As(res.err, &notFoundError) || errors.As(res.err, &fundsError) {
				log.Debug().Err(res.err).Msgf("%s failed", op)
			} else {
				log.Error().Err(res.err).Msgf("%s failed", op)
			}
			return res.value, res.err
		}
		log.Debug().Msgf("%s done", op)
		return res.value, nil
	}
}
