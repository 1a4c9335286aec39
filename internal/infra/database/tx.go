package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx binds an open transaction to the context so downstream stores and
// the settlement-asset ledger join it instead of the base connection.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction carried in ctx, or fallback when the call
// is not running inside one.
func TxFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return fallback
}
