// Package catalog resolves backend products into cart catalog items.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	cacheScope = "product"

	// productFetchTimeout bounds a shared backend lookup once it no longer follows
	// the caller that started it.
	productFetchTimeout = 10 * time.Second
)

type productSource interface {
	ListProducts(ctx context.Context, params backend.ProductSearchParams) (*backend.ProductsPage, error)
	GetProduct(ctx context.Context, id string) (*backend.Product, error)
}

// Cache is the read-through cache used for single product lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope, id string) string
}

// Service lists products and resolves them into sellable catalog items.
type Service struct {
	source productSource
	cache  Cache
	ttl    time.Duration
	logg   *logger.Logger
	group  singleflight.Group
}

// ServiceParams configures a Service. Cache is optional.
type ServiceParams struct {
	Source   productSource
	Cache    Cache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("product source required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{source: p.Source, cache: p.Cache, ttl: p.CacheTTL, logg: logg}, nil
}

// List returns a page of products visible in the storefront. Unpublished and deleted
// products are dropped from the page; the pagination block is passed through.
func (s *Service) List(ctx context.Context, params backend.ProductSearchParams) (*backend.ProductsPage, error) {
	page, err := s.source.ListProducts(ctx, params)
	if err != nil {
		return nil, err
	}
	visible := make([]backend.Product, 0, len(page.Data))
	for _, p := range page.Data {
		if p.IsDeleted || p.Status != backend.StatusPublished {
			continue
		}
		if params.InStock != nil && *params.InStock && p.StockAmount <= 0 {
			continue
		}
		visible = append(visible, p)
	}
	page.Data = visible
	return page, nil
}

// Product returns a single product, consulting the cache first when configured.
func (s *Service) Product(ctx context.Context, id string) (*backend.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if cached, ok := s.fromCache(ctx, id); ok {
		return cached, nil
	}
	// Concurrent misses for the same id share one backend call, so the call must
	// survive the first caller going away.
	v, err, _ := s.group.Do(id, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), productFetchTimeout)
		defer cancel()
		product, err := s.source.GetProduct(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		s.toCache(fetchCtx, product)
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	product := *v.(*backend.Product)
	product.Images = append([]string(nil), product.Images...)
	return &product, nil
}

// Item resolves id into a CatalogItem that can be added to the cart.
func (s *Service) Item(ctx context.Context, id string) (cart.CatalogItem, error) {
	product, err := s.Product(ctx, id)
	if err != nil {
		return cart.CatalogItem{}, err
	}
	return ToCatalogItem(*product)
}

// ToCatalogItem converts a product, refusing anything a shopper could not buy.
func ToCatalogItem(p backend.Product) (cart.CatalogItem, error) {
	switch {
	case p.IsDeleted:
		return cart.CatalogItem{}, unavailable(p.ID, "product has been removed")
	case p.Status != backend.StatusPublished:
		return cart.CatalogItem{}, unavailable(p.ID, "product is not published")
	case p.StockAmount <= 0:
		return cart.CatalogItem{}, unavailable(p.ID, "product is out of stock")
	case p.BasePrice < 0 || p.TaxRate < 0 || p.TaxRate > 100:
		return cart.CatalogItem{}, unavailable(p.ID, "product has invalid pricing")
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return cart.CatalogItem{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Images:      append([]string(nil), images...),
		BasePrice:   p.BasePrice,
		TaxRate:     p.TaxRate,
	}, nil
}

func unavailable(id, reason string) error {
	return pkgerrors.New(pkgerrors.CodeUnavailable, reason).WithDetails(map[string]any{"product_id": id})
}

func (s *Service) fromCache(ctx context.Context, id string) (*backend.Product, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.CacheKey(cacheScope, id))
	if err != nil || raw == "" {
		return nil, false
	}
	var product backend.Product
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "product_id", id), "discarding unreadable cached product")
		return nil, false
	}
	return &product, true
}

func (s *Service) toCache(ctx context.Context, product *backend.Product) {
	if s.cache == nil || s.ttl <= 0 || product == nil || product.ID == "" {
		return
	}
	raw, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey(cacheScope, product.ID), string(raw), s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "product_id", product.ID), "product cache write failed")
	}
}
