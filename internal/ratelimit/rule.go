// Package ratelimit implements sliding-window request limiting backed by Redis or process memory.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rule limits a named class of requests to Limit hits per Window.
type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
	unit   string
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRule parses rules written as "N/unit", e.g. "5/minute" or "1000/hours".
func ParseRule(name, s string) (Rule, error) {
	count, unit, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		return Rule{}, fmt.Errorf("rate limit rule %s: %q is not of the form N/unit", name, s)
	}
	limit, err := strconv.ParseInt(strings.TrimSpace(count), 10, 64)
	if err != nil || limit <= 0 {
		return Rule{}, fmt.Errorf("rate limit rule %s: %q is not a positive number", name, count)
	}
	unit = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")
	window, ok := units[unit]
	if !ok {
		return Rule{}, fmt.Errorf("rate limit rule %s: unknown unit %q", name, unit)
	}
	return Rule{Name: name, Limit: limit, Window: window, unit: unit}, nil
}

// String renders the rule the way rejections report it.
func (r Rule) String() string {
	return fmt.Sprintf("%d per 1 %s", r.Limit, r.unit)
}

// Rules are the rules applied by the HTTP layer.
type Rules struct {
	Default Rule
	Auth    Rule
	Write   Rule
}

// ParseRules builds the rule set from its textual form.
func ParseRules(defaultRule, authRule, writeRule string) (*Rules, error) {
	parsedDefault, err := ParseRule("default", defaultRule)
	if err != nil {
		return nil, err
	}
	parsedAuth, err := ParseRule("auth", authRule)
	if err != nil {
		return nil, err
	}
	parsedWrite, err := ParseRule("write", writeRule)
	if err != nil {
		return nil, err
	}
	return &Rules{Default: parsedDefault, Auth: parsedAuth, Write: parsedWrite}, nil
}
