package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type orderSubmitter interface {
	CreateOrder(ctx context.Context, payload backend.OrderPayload) (*backend.Order, error)
}

// CartStore is the part of cart.Store checkout needs.
type CartStore interface {
	Refresh(ctx context.Context) cart.Cart
	Clear(ctx context.Context) cart.Cart
}

// Result is a submitted order together with the summary of the cart it came from.
type Result struct {
	Order   *backend.Order `json:"order"`
	Summary OrderSummary   `json:"summary"`
}

// Service submits carts as orders.
type Service struct {
	orders orderSubmitter
	logg   *logger.Logger
}

func NewService(orders orderSubmitter, logg *logger.Logger) (*Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{orders: orders, logg: logg}, nil
}

// Submit posts the current cart as an order and clears the cart only once the backend
// has accepted it. On any failure the cart is left untouched.
func (s *Service) Submit(ctx context.Context, store CartStore, form Form) (*Result, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store required")
	}
	snapshot := store.Refresh(ctx)
	if snapshot.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	payload, err := BuildPayload(snapshot, form)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, payload)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "customer_id", payload.CustomerID), "order submission failed", err)
		return nil, err
	}

	store.Clear(ctx)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"item_count":   snapshot.ItemCount,
	}), "order submitted")

	return &Result{Order: order, Summary: Summary(snapshot)}, nil
}
