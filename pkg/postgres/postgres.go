// Package postgres is the apply/status gateway: the only part of the tool
// that touches a live database. It bootstraps the migrafold tracking schema,
// executes consolidation groups transactionally, and reads back revision
// history. Everything upstream (parsing, graphing, validation, planning)
// is pure computation and never sees a connection.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type (
	// Rows is the minimal result-set surface the gateway reads.
	Rows interface {
		Next() bool
		Scan(dest ...any) error
		Err() error
		Close()
	}

	// Tx is a single database transaction.
	Tx interface {
		Exec(ctx context.Context, sql string, args ...any) error
		Commit(ctx context.Context) error
		Rollback(ctx context.Context) error
	}

	// Conn is the connection surface the gateway requires. *pgx.Conn is
	// adapted to it by Connect; tests substitute in-memory fakes.
	Conn interface {
		Exec(ctx context.Context, sql string, args ...any) error
		Query(ctx context.Context, sql string, args ...any) (Rows, error)
		Begin(ctx context.Context) (Tx, error)
		Close(ctx context.Context) error
	}
)

// Connect opens a PostgreSQL connection from a connection URL.
func Connect(ctx context.Context, url string) (Conn, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	return &pgxConn{conn: conn}, nil
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.conn.Exec(ctx, sql, args...)
	return err
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *pgxConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func (c *pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return err
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
