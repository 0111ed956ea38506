package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/fleetcore/dispatch/pkg/metrics"
	"github.com/fleetcore/dispatch/pkg/trm"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const metricsService = "dispatch-engine"

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// query go through TxorDB without the caller caring whether it is inside a
// trm transaction.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// TxorDB picks the ambient trm transaction if one is bound to ctx, otherwise
// falls back to the pool, and instruments either with query count/duration.
func TxorDB(ctx context.Context, db *pgxpool.Pool) Querier {
	tx, ok := ctx.Value(trm.TxKey).(pgx.Tx)
	if !ok {
		return &instrumentedQuerier{inner: db}
	}
	return &instrumentedQuerier{inner: tx}
}

// instrumentedQuerier reports every statement through pkg/metrics, labelled
// by the leading SQL keyword since individual queries don't carry names.
type instrumentedQuerier struct {
	inner Querier
}

func queryOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}

func (q *instrumentedQuerier) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := q.inner.Exec(ctx, query, args...)
	metrics.RecordDatabaseQuery(metricsService, queryOperation(query), err, time.Since(start))
	return tag, err
}

func (q *instrumentedQuerier) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := q.inner.Query(ctx, query, args...)
	metrics.RecordDatabaseQuery(metricsService, queryOperation(query), err, time.Since(start))
	return rows, err
}

func (q *instrumentedQuerier) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	start := time.Now()
	row := q.inner.QueryRow(ctx, query, args...)
	metrics.RecordDatabaseQuery(metricsService, queryOperation(query), nil, time.Since(start))
	return row
}
