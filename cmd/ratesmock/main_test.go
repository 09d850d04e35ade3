package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/client"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
)

func TestProviderServesRatesToClient(t *testing.T) {
	log := zerolog.Nop()
	srv := httptest.NewServer(InitServer(&ServerConfig{}, newProvider(0, 0, 1, &log)).Handler)
	defer srv.Close()
	ratesClient := client.InitClient(&config.ServerConfig{RatesAddress: srv.URL, RequestTimeout: time.Second}, &log)

	rate, err := ratesClient.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.True(t, rate.GreaterThanOrEqual(decimal.RequireFromString("1.0692")), rate.String())
	assert.True(t, rate.LessThanOrEqual(decimal.RequireFromString("1.0908")), rate.String())

	rate, err = ratesClient.GetRate(context.Background(), "USD", "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	_, err = ratesClient.GetRate(context.Background(), "XXX", "USD")
	assert.Error(t, err)
}

func TestProviderFailsOnPurpose(t *testing.T) {
	log := zerolog.Nop()
	throttled := httptest.NewServer(InitServer(&ServerConfig{}, newProvider(100, 0, 1, &log)).Handler)
	defer throttled.Close()
	resp, err := http.Get(throttled.URL + "/api/rates/EUR")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	failing := httptest.NewServer(InitServer(&ServerConfig{}, newProvider(0, 100, 1, &log)).Handler)
	defer failing.Close()
	resp, err = http.Get(failing.URL + "/api/rates/EUR")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
