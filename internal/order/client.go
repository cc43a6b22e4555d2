package order

import (
	"context"

	"main/internal/model"
	"main/internal/order/delegator/standx"
)

// Client is the trading surface the loops depend on. The standx delegator is
// the production implementation; tests swap in fakes.
type Client interface {
	NewOrder(ctx context.Context, in standx.PlaceOrderInput) (standx.ResponseOrderAction, error)
	CancelOrder(ctx context.Context, orderID int64, clOrdID string) (standx.ResponseOrderAction, error)
	QueryOpenOrders(ctx context.Context, symbol string, limit int) ([]model.Order, error)
	QueryPositions(ctx context.Context, symbol string) ([]model.Position, error)
	QueryBalance(ctx context.Context) (model.Balance, error)
	QuerySymbolPrice(ctx context.Context, symbol string) (standx.ResponseSymbolPrice, error)
}

var _ Client = (*standx.Delegator)(nil)
