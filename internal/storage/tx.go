package storage

import (
	"context"
	"database/sql"
)

// querier is the subset of *sql.DB, *sql.Conn and *sql.Tx the SQL stores use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{ db *sql.DB }

// withTx returns a ctx under which Get, Set and Update on db run inside q.
func withTx(ctx context.Context, db *sql.DB, q querier) context.Context {
	return context.WithValue(ctx, txKey{db}, q)
}

// queryFor returns the transaction ctx carries for db, or db itself.
func queryFor(ctx context.Context, db *sql.DB) (querier, bool) {
	if q, ok := ctx.Value(txKey{db}).(querier); ok {
		return q, true
	}
	return db, false
}

// readModifyWrite applies fn to key inside the transaction already carried by ctx.
func readModifyWrite(ctx context.Context, store BlobStore, key string, fn UpdateFunc) error {
	current, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(ctx, current)
	if err != nil || next == nil {
		return err
	}
	return store.Set(ctx, key, next)
}
