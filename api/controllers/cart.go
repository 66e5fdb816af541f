package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const sseHeartbeat = 15 * time.Second

// sseRefresh is how often a stream re-reads storage to pick up writes made by other
// replicas.
var sseRefresh = 5 * time.Second

// CartSessions hands out the single Store of a cart session.
type CartSessions interface {
	Open(ctx context.Context, sessionID string) (*cart.Store, error)
}

// ItemResolver turns a product id into something the cart can hold.
type ItemResolver interface {
	Item(ctx context.Context, id string) (cart.CatalogItem, error)
}

type addItemRequest struct {
	ProductID string            `json:"product_id"`
	Item      *cart.CatalogItem `json:"item"`
}

// AddItemOptions tune CartAddItem.
type AddItemOptions struct {
	// AllowClientItems accepts the full-item body form. Ids the catalog knows are still
	// priced from the catalog; only unknown ids keep the client's fields.
	AllowClientItems bool
}

type badgeResponse struct {
	ItemCount   int     `json:"itemCount"`
	TotalAmount float64 `json:"totalAmount"`
}

func openCart(r *http.Request, sessions CartSessions) (*cart.Store, error) {
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart sessions unavailable")
	}
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session missing")
	}
	return sessions.Open(r.Context(), sessionID)
}

// CartFetch returns the full cart of the caller's session.
func CartFetch(sessions CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.Refresh(r.Context()))
	}
}

// CartBadge returns the header badge view: item count and grand total.
func CartBadge(sessions CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot := store.Refresh(r.Context())
		responses.WriteSuccess(w, badgeResponse{ItemCount: snapshot.ItemCount, TotalAmount: snapshot.TotalAmount})
	}
}

// CartSummary returns the order summary the checkout page renders.
func CartSummary(sessions CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkout.Summary(store.Refresh(r.Context())))
	}
}

// CartAddItem adds one unit of a product. The body names either a catalog product id,
// resolved through the catalog, or, when opts allow it, a complete catalog item.
func CartAddItem(sessions CartSessions, items ItemResolver, opts AddItemOptions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID := strings.TrimSpace(req.ProductID)
		var item cart.CatalogItem
		switch {
		case productID != "" && req.Item != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "send either product_id or item, not both"))
			return
		case req.Item != nil:
			if !opts.AllowClientItems {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"item": "not accepted; send product_id"}))
				return
			}
			resolved, err := clientItem(r.Context(), items, *req.Item)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			item = resolved
		case productID != "":
			if items == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
				return
			}
			resolved, err := items.Item(r.Context(), productID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			item = resolved
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"product_id": "is required"}))
			return
		}

		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.AddItem(r.Context(), item))
	}
}

// clientItem prefers the catalog's version of item so a client cannot reprice a real
// product. Ids the catalog does not know keep the submitted fields.
func clientItem(ctx context.Context, items ItemResolver, item cart.CatalogItem) (cart.CatalogItem, error) {
	if items == nil {
		return item, nil
	}
	resolved, err := items.Item(ctx, item.ID)
	switch {
	case err == nil:
		return resolved, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return item, nil
	default:
		return cart.CatalogItem{}, err
	}
}

// CartRemoveItem drops the whole line for the product id in the path. Unknown ids are a no-op.
func CartRemoveItem(sessions CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r)
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product id is required"))
			return
		}
		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.RemoveItem(r.Context(), id))
	}
}

func CartClear(sessions CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.Clear(r.Context()))
	}
}

// CartEvents streams the cart as server-sent events: the current snapshot first, then
// one "cart" event per change, whether made here or picked up from storage. A slow
// reader skips to the latest snapshot.
func CartEvents(sessions CartSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}
		store, err := openCart(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store.Refresh(r.Context())

		updates := make(chan cart.Cart, 1)
		unsubscribe := store.Subscribe(func(c cart.Cart) {
			for {
				select {
				case updates <- c:
					return
				default:
				}
				select {
				case <-updates:
				default:
				}
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if err := writeCartEvent(w, store.Snapshot()); err != nil {
			return
		}
		flusher.Flush()

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()
		refresh := time.NewTicker(sseRefresh)
		defer refresh.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case c := <-updates:
				if err := writeCartEvent(w, c); err != nil {
					if logg != nil {
						logg.Warn(logg.WithField(r.Context(), "reason", err.Error()), "cart stream closed")
					}
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
			case <-refresh.C:
				store.Refresh(r.Context())
				continue
			}
			flusher.Flush()
		}
	}
}

func writeCartEvent(w http.ResponseWriter, c cart.Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: cart\ndata: %s\n\n", payload)
	return err
}
