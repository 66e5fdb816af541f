package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/backend"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultProductPage  = 1
	defaultProductLimit = 20
	maxProductLimit     = 100
	maxProductIDLen     = 64
)

// ProductCatalog is the read side of the storefront catalog.
type ProductCatalog interface {
	List(ctx context.Context, params backend.ProductSearchParams) (*backend.ProductsPage, error)
	Product(ctx context.Context, id string) (*backend.Product, error)
}

// ProductList serves the public product listing with search, price and stock filters.
func ProductList(catalog ProductCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		params, err := productSearchParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := catalog.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func ProductDetail(catalog ProductCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		product, err := catalog.Product(r.Context(), pathID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func productSearchParams(r *http.Request) (backend.ProductSearchParams, error) {
	page, err := validators.ParseQueryInt(r, "page", defaultProductPage, 1, 10000)
	if err != nil {
		return backend.ProductSearchParams{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", defaultProductLimit, 1, maxProductLimit)
	if err != nil {
		return backend.ProductSearchParams{}, err
	}
	minPrice, err := validators.ParseQueryFloat(r, "minPrice", 0)
	if err != nil {
		return backend.ProductSearchParams{}, err
	}
	maxPrice, err := validators.ParseQueryFloat(r, "maxPrice", 0)
	if err != nil {
		return backend.ProductSearchParams{}, err
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return backend.ProductSearchParams{}, pkgerrors.New(pkgerrors.CodeValidation, "minPrice must not exceed maxPrice")
	}
	inStock, err := validators.ParseQueryBool(r, "inStock")
	if err != nil {
		return backend.ProductSearchParams{}, err
	}

	q := r.URL.Query()
	return backend.ProductSearchParams{
		Search:   validators.SanitizeString(q.Get("search"), 120),
		Name:     validators.SanitizeString(q.Get("name"), 120),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		InStock:  inStock,
		Page:     page,
		Limit:    limit,
	}, nil
}

func pathID(r *http.Request) string {
	return validators.SanitizeString(chi.URLParam(r, "productId"), maxProductIDLen)
}
