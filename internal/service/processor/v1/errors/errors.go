// Package errors provides custom error types of the service layer.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	ValidationError struct {
		Msg    string
		Fields map[string]string
	}
	UnauthorizedError struct {
		Msg string
	}
	ForbiddenError struct {
		Msg string
	}
	PasswordChangeRequiredError struct{}
	InactiveUserError           struct{}
	RegistrationClosedError     struct{}
	UnsupportedCurrencyError    struct {
		Code string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Msg, strings.Join(parts, "; "))
}

func (e *UnauthorizedError) Error() string {
	return e.Msg
}

func (e *ForbiddenError) Error() string {
	return e.Msg
}

func (e *PasswordChangeRequiredError) Error() string {
	return "password change required"
}

func (e *InactiveUserError) Error() string {
	return "user is inactive"
}

func (e *RegistrationClosedError) Error() string {
	return "registration is disabled"
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("currency %s is not supported", e.Code)
}

// Invalid is a shorthand for a single-field validation error.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Msg: "validation failed", Fields: map[string]string{field: msg}}
}
