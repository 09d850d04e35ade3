package main

import (
	"flag"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/client"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/response"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/logger"
)

// rates in US dollars
var usdRates = map[string]string{
	"USD": "1",
	"EUR": "1.08",
	"GBP": "1.27",
	"JPY": "0.0067",
	"CHF": "1.12",
	"CAD": "0.73",
	"AUD": "0.66",
	"BTC": "65000",
	"ETH": "3400",
}

type ServerConfig struct {
	ServerAddress string `env:"RUN_ADDRESS"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

func NewServerConfig() (*ServerConfig, error) {
	cfg := ServerConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (c *ServerConfig) ParseFlags() {
	a := flag.String("a", ":7070", "Server address")
	flag.Parse()
	if isFlagPassed("a") || c.ServerAddress == "" {
		c.ServerAddress = *a
	}
}

// provider answers rate requests, failing on purpose now and then.
type provider struct {
	mu sync.Mutex
	// percentages of requests answered with 429 and 500
	throttlePercent int
	failPercent     int
	rnd             *rand.Rand
	rates           map[string]decimal.Decimal
	log             *zerolog.Logger
}

func newProvider(throttlePercent, failPercent int, seed int64, log *zerolog.Logger) *provider {
	rates := make(map[string]decimal.Decimal, len(usdRates))
	for code, rate := range usdRates {
		rates[code] = decimal.RequireFromString(rate)
	}
	return &provider{
		throttlePercent: throttlePercent,
		failPercent:     failPercent,
		rnd:             rand.New(rand.NewSource(seed)),
		rates:           rates,
		log:             log,
	}
}

func (p *provider) roll() (int, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(100), p.rnd.Float64()
}

func (p *provider) HandleGetRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chance, jitter := p.roll()
		if chance < p.throttlePercent {
			p.log.Info().Msg("responding with error 429")
			w.Header().Set("Retry-After", "1")
			response.Error(w, http.StatusTooManyRequests, "no more than N requests per minute allowed", nil)
			return
		}
		if chance < p.throttlePercent+p.failPercent {
			p.log.Info().Msg("responding with error 500")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		code := strings.ToUpper(chi.URLParam(r, "code"))
		base := strings.ToUpper(r.URL.Query().Get("base"))
		if base == "" {
			base = "USD"
		}
		rate, ok := p.rates[code]
		baseRate, baseOK := p.rates[base]
		if !ok || !baseOK {
			p.log.Info().Msgf("responding with error 404 for %s/%s", code, base)
			response.Error(w, http.StatusNotFound, "unknown currency", nil)
			return
		}
		value := rate.DivRound(baseRate, 18)
		if code != base {
			// ±1 %
			value = value.Mul(decimal.NewFromFloat(0.99 + 0.02*jitter)).Round(10)
		}
		p.log.Info().Msgf("responding with status 200 for %s/%s", code, base)
		if err := response.JSON(w, http.StatusOK, client.RateResponse{Code: code, Base: base, Rate: value}); err != nil {
			p.log.Error().Err(err).Msg("writing response failed")
		}
	}
}

func InitServer(cfg *ServerConfig, p *provider) *http.Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	r.Get("/api/rates/{code}", p.HandleGetRate())
	return &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

func main() {
	cfg, err := NewServerConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("")
	}
	cfg.ParseFlags()
	log := logger.InitLog(cfg.LogLevel)
	server := InitServer(cfg, newProvider(10, 10, time.Now().UnixNano(), log))
	log.Info().Msgf("mock rates provider listening on %s", cfg.ServerAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("")
	}
}
