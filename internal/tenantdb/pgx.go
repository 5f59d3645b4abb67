package tenantdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// NewPgxDial returns a DialFunc backed by pgxpool. Pool sizing comes
// from the tenant's connection record when set, otherwise from the
// router defaults.
func NewPgxDial(cfg RouterConfig) DialFunc {
	cfg = cfg.withDefaults()

	return func(ctx context.Context, info model.ConnectionInfo) (Pool, error) {
		maxConns := info.MaxConns
		if maxConns <= 0 {
			maxConns = cfg.MaxConns
		}
		minConns := info.MinConns
		if minConns < 0 || minConns > maxConns {
			minConns = cfg.MinConns
		}

		connString := fmt.Sprintf(
			"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
			info.Host, info.Port, info.Database, info.User, info.Password, maxConns, minConns,
		)

		poolConfig, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection config: %w", err)
		}
		poolConfig.MaxConnIdleTime = cfg.IdleTTL

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping tenant database: %w", err)
		}

		return &pgxPool{pool: pool}, nil
	}
}

type pgxPool struct {
	pool *pgxpool.Pool
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{conn: conn}, nil
}

func (p *pgxPool) Close() {
	p.pool.Close()
}

type pgxConn struct {
	conn *pgxpool.Conn
}

func (c *pgxConn) Release() {
	c.conn.Release()
}

func (c *pgxConn) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *pgxConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}
