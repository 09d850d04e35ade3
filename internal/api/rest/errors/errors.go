// Package errors provides custom error types of the REST layer and the rates client.
package errors

import (
	"fmt"
	"time"
)

type (
	HandlersFoundNilArgument struct {
		Msg string
	}
	RatesTooManyRequestsError struct {
		Code       string
		RetryAfter time.Duration
	}
	RatesUnexpectedStatusError struct {
		Code   string
		Status int
	}
	RatesMalformedResponseError struct {
		Code string
		Err  error
	}
)

func (e *HandlersFoundNilArgument) Error() string {
	return e.Msg
}

func (e *RatesTooManyRequestsError) Error() string {
	return fmt.Sprintf("%s: rates provider is throttling, retry after %s", e.Code, e.RetryAfter)
}

func (e *RatesUnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: rates provider answered %d", e.Code, e.Status)
}

func (e *RatesMalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed rates provider response: %v", e.Code, e.Err)
}

func (e *RatesMalformedResponseError) Unwrap() error { return e.Err }
