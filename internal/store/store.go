// Package store describes the record store capabilities the service is built on.
// Backends live in internal/db, internal/postgrest and internal/memstore.
package store

import (
	"context"

	"github.com/wellywell/redeemy/internal/types"
)

type RecordStore interface {
	FindByCode(ctx context.Context, code string) (*types.OrderRecord, error)
	FindByID(ctx context.Context, id string) (*types.OrderRecord, error)
	ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error)
	InsertOrder(ctx context.Context, order types.NewOrder) (*types.OrderRecord, error)
	UpdateByCode(ctx context.Context, code string, patch types.OrderPatch) (*types.OrderRecord, error)
	UpdateByID(ctx context.Context, id string, patch types.OrderPatch) (*types.OrderRecord, error)
	DeleteOrders(ctx context.Context, ids []string) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, username string, password string) error
	GetUserHashedPassword(ctx context.Context, username string) (string, error)
}
