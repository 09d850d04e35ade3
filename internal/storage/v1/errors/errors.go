// Package errors provides custom error types of the storage layer.
package errors

import (
	"fmt"
)

type (
	StatementError struct {
		Err error
	}
	AlreadyExistsError struct {
		Err error
		ID  string
	}
	NotFoundError struct {
		Err error
		ID  string
	}
	InsufficientFundsError struct {
		UserID       string
		CurrencyCode string
	}
	ExecutionError struct {
		Err error
	}
	ScanningError struct {
		Err error
	}
	ContextTimeoutExceededError struct {
		Err error
	}
)

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: could not compile", e.Err.Error())
}

func (e *StatementError) Unwrap() error { return e.Err }

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: already exists", e.ID)
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "not found"
	}
	return fmt.Sprintf("%s: not found", e.ID)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s balance", e.CurrencyCode)
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: could not execute", e.Err.Error())
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ScanningError) Error() string {
	return fmt.Sprintf("%s: could not scan", e.Err.Error())
}

func (e *ScanningError) Unwrap() error { return e.Err }

func (e *ContextTimeoutExceededError) Error() string {
	return fmt.Sprintf("%s: context timeout exceeded", e.Err.Error())
}

func (e *ContextTimeoutExceededError) Unwrap() error { return e.Err }
