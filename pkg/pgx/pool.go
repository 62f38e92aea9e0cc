package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool represents a named connection configuration.
type Pool struct {
	Config     *pgxpool.Config // Takes precedence over ConnString
	Name       string
	ConnString string // Used if Config is nil
	// MaxConns overrides the pool size when > 0.
	MaxConns int32
	// MaxElapsed bounds how long Connect keeps retrying an unreachable server.
	// Zero means a single attempt.
	MaxElapsed time.Duration
}

var ErrNoConnConfig = errors.New("either Config or ConnString must be provided")

func (p Pool) poolConfig() (*pgxpool.Config, error) {
	var cfg *pgxpool.Config
	switch {
	case p.Config != nil:
		cfg = p.Config.Copy()
	case p.ConnString != "":
		parsed, err := pgxpool.ParseConfig(p.ConnString)
		if err != nil {
			return nil, fmt.Errorf("parsing connection string: %w", err)
		}
		cfg = parsed
	default:
		return nil, ErrNoConnConfig
	}

	if p.MaxConns > 0 {
		cfg.MaxConns = p.MaxConns
	}
	return cfg, nil
}

// Connect creates a pool and pings it. While the server is unreachable the ping is retried
// with exponential backoff until MaxElapsed; configuration errors fail immediately.
// Once connected, the pool is handed out as is: individual queries are never retried.
func Connect(ctx context.Context, p Pool, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := p.poolConfig()
	if err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}

	var pool *pgxpool.Pool
	operation := func() error {
		candidate, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating pool: %w", err))
		}
		if err := candidate.Ping(ctx); err != nil {
			candidate.Close()
			return fmt.Errorf("ping connection: %w", err)
		}
		pool = candidate
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 500 * time.Millisecond
		eb.MaxInterval = 5 * time.Second
		eb.MaxElapsedTime = p.MaxElapsed
		b = eb
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn("postgres not reachable, retrying",
			zap.String("pool", p.Name),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}

	logger.Info("connected to postgres",
		zap.String("pool", p.Name),
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns))
	return pool, nil
}

// ServerTime asks the server for its clock. It doubles as a startup probe.
func ServerTime(ctx context.Context, conn Conn) (time.Time, error) {
	var now time.Time
	if err := conn.QueryRow(ctx, "SELECT now()").Scan(&now); err != nil {
		return time.Time{}, &DataAccessError{Op: "query", Err: err}
	}
	return now, nil
}
