// Package client implements a client for querying exchange rates from the rates provider.
package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	clientErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/errors"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
)

const defaultRetryAfter = time.Second

// RateResponse is the body served by the rates provider.
type RateResponse struct {
	Code string          `json:"code"`
	Base string          `json:"base"`
	Rate decimal.Decimal `json:"rate"`
}

// Client defines attributes of a struct available to its methods.
type Client struct {
	client       *resty.Client
	serverConfig *config.ServerConfig
	log          *zerolog.Logger
}

// InitClient initializes a resty client.
func InitClient(serverConfig *config.ServerConfig, log *zerolog.Logger) *Client {
	ratesClient := resty.New().
		SetBaseURL(strings.TrimRight(serverConfig.RatesAddress, "/")).
		SetTimeout(serverConfig.RequestTimeout).
		SetHeader("Accept", "application/json")
	log.Info().Msg("rates provider client initialized")
	return &Client{client: ratesClient, serverConfig: serverConfig, log: log}
}

// GetRate retrieves the number of base units one unit of code is worth.
func (c *Client) GetRate(ctx context.Context, code, base string) (decimal.Decimal, error) {
	c.log.Debug().Msgf("sending rate request for %s/%s", code, base)
	var body RateResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"code": code}).
		SetQueryParam("base", base).
		SetResult(&body).
		Get("/api/rates/{code}")
	if err != nil {
		c.log.Error().Err(err).Msgf("rate retrieval failed for %s", code)
		return decimal.Zero, err
	}
	switch response.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return decimal.Zero, &clientErrors.RatesTooManyRequestsError{Code: code, RetryAfter: retryAfter(response.Header().Get("Retry-After"))}
	default:
		return decimal.Zero, &clientErrors.RatesUnexpectedStatusError{Code: code, Status: response.StatusCode()}
	}
	if !body.Rate.IsPositive() {
		return decimal.Zero, &clientErrors.RatesMalformedResponseError{Code: code, Err: errors.New("rate must be positive")}
	}
	if body.Code != "" && !strings.EqualFold(body.Code, code) {
		return decimal.Zero, &clientErrors.RatesMalformedResponseError{Code: code, Err: errors.New("unexpected currency " + body.Code)}
	}
	return body.Rate, nil
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
