// Package inpsql implements the storage contract on top of PostgreSQL.
package inpsql

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"

	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

// Storage defines attributes of a struct available to its methods.
type Storage struct {
	DB  *sql.DB
	log *zerolog.Logger
	wg  *sync.WaitGroup
}

// InitStorage opens a connection pool, creates the schema and closes the pool once ctx is done.
func InitStorage(ctx context.Context, dsn string, log *zerolog.Logger, wg *sync.WaitGroup) (*Storage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	st := Storage{
		DB:  db,
		log: log,
		wg:  wg,
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	if err = st.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("PSQL DB connection was established")

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("closing PSQL DB connection failed")
			return
		}
		log.Info().Msg("PSQL DB connection was closed")
	}()
	return &st, nil
}

// Ping checks the connection to the DB.
func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// classify maps driver errors onto storage errors.
func classify(err error, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &storageErrors.NotFoundError{Err: err, ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &storageErrors.AlreadyExistsError{Err: err, ID: id}
		case pgerrcode.ForeignKeyViolation:
			return &storageErrors.NotFoundError{Err: err, ID: id}
		}
	}
	return &storageErrors.ExecutionError{Err: err}
}

func (s *Storage) createTables(ctx context.Context) error {
	var queries []string
	query := `CREATE TABLE IF NOT EXISTS users (
		id                   TEXT        PRIMARY KEY,
		username             TEXT        NOT NULL UNIQUE,
		email                TEXT        NOT NULL UNIQUE,
		password_hash        TEXT        NOT NULL,
		role                 TEXT        NOT NULL CHECK (role IN ('admin', 'trader', 'viewer')),
		is_active            BOOLEAN     NOT NULL DEFAULT TRUE,
		must_change_password BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		last_login_at        TIMESTAMPTZ
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS currencies (
		code         TEXT           PRIMARY KEY,
		name         TEXT           NOT NULL,
		symbol       TEXT           NOT NULL,
		decimals     INTEGER        NOT NULL CHECK (decimals BETWEEN 0 AND 18),
		rate_to_base NUMERIC(38, 18) NOT NULL CHECK (rate_to_base > 0),
		is_active    BOOLEAN        NOT NULL DEFAULT TRUE,
		updated_at   TIMESTAMPTZ    NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS balances (
		id            BIGSERIAL       PRIMARY KEY,
		user_id       TEXT            NOT NULL REFERENCES users (id),
		currency_code TEXT            NOT NULL REFERENCES currencies (code),
		amount        NUMERIC(38, 18) NOT NULL DEFAULT 0 CHECK (amount >= 0),
		updated_at    TIMESTAMPTZ     NOT NULL,
		UNIQUE (user_id, currency_code)
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS transactions (
		id                   TEXT            PRIMARY KEY,
		user_id              TEXT            NOT NULL REFERENCES users (id),
		type                 TEXT            NOT NULL,
		currency_code        TEXT            NOT NULL REFERENCES currencies (code),
		amount               NUMERIC(38, 18) NOT NULL,
		counterparty_user_id TEXT            REFERENCES users (id),
		target_currency_code TEXT            REFERENCES currencies (code),
		target_amount        NUMERIC(38, 18),
		rate                 NUMERIC(38, 18),
		reference            TEXT            NOT NULL DEFAULT '',
		description          TEXT            NOT NULL DEFAULT '',
		created_by           TEXT            NOT NULL,
		created_at           TIMESTAMPTZ     NOT NULL
	);`
	queries = append(queries, query)
	queries = append(queries, `CREATE INDEX IF NOT EXISTS transactions_user_created_idx ON transactions (user_id, created_at DESC);`)
	queries = append(queries, `CREATE INDEX IF NOT EXISTS transactions_counterparty_idx ON transactions (counterparty_user_id);`)
	query = `CREATE TABLE IF NOT EXISTS api_keys (
		id           TEXT        PRIMARY KEY,
		user_id      TEXT        NOT NULL REFERENCES users (id),
		name         TEXT        NOT NULL,
		prefix       TEXT        NOT NULL,
		key_hash     TEXT        NOT NULL UNIQUE,
		created_at   TIMESTAMPTZ NOT NULL,
		last_used_at TIMESTAMPTZ,
		expires_at   TIMESTAMPTZ,
		revoked_at   TIMESTAMPTZ
	);`
	queries = append(queries, query)
	for _, subquery := range queries {
		_, err := s.DB.ExecContext(ctx, subquery)
		if err != nil {
			return &storageErrors.ExecutionError{Err: err}
		}
	}
	return nil
}
