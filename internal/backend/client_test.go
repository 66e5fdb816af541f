package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func TestListProductsBuildsQuery(t *testing.T) {
	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return jsonResponse(http.StatusOK, `{"success":true,"message":"ok","data":{"data":[{"_id":"p1","name":"Lamp","basePrice":10,"taxRate":10,"status":"published","stockAmount":3}],"pagination":{"page":2,"limit":5,"total":6,"totalPages":2}}}`), nil
	})

	client, err := NewClient("http://backend.test/", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	minPrice := 1.5
	inStock := true
	page, err := client.ListProducts(context.Background(), ProductSearchParams{
		Search:   "lamp",
		MinPrice: &minPrice,
		InStock:  &inStock,
		Page:     2,
		Limit:    5,
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	const expected = "http://backend.test/api/v1/products?inStock=true&limit=5&minPrice=1.5&page=2&search=lamp"
	if capturedURL != expected {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if len(page.Data) != 1 || page.Data[0].ID != "p1" || page.Data[0].TaxRate != 10 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}
}

func TestGetProductEscapesID(t *testing.T) {
	var capturedPath string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedPath = req.URL.EscapedPath()
		return jsonResponse(http.StatusOK, `{"success":true,"data":{"_id":"a/b","name":"Odd"}}`), nil
	})
	client, _ := NewClient("http://backend.test", WithHTTPClient(&http.Client{Transport: rt}))

	product, err := client.GetProduct(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if capturedPath != "/api/v1/products/a%2Fb" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if product.Name != "Odd" {
		t.Fatalf("unexpected product %+v", product)
	}

	if _, err := client.GetProduct(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrderSendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			t.Errorf("missing bearer token")
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		items := payload["items"].([]any)
		first := items[0].(map[string]any)
		if first["taxRate"] != 0.1 || first["productId"] != "A" {
			t.Errorf("unexpected item %v", first)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"success":true,"message":"Order created","data":{"_id":"o1","orderNumber":"ORD-1","totalAmount":22,"status":"pending","items":[{"productId":"A","quantity":2,"subtotal":20}]}}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithAPIToken("svc-token"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	order, err := client.CreateOrder(context.Background(), OrderPayload{
		CustomerID:    "c1",
		Items:         []OrderItem{{ProductID: "A", ProductName: "Lamp", Quantity: 2, UnitPrice: 10, TaxRate: 0.1}},
		PaymentMethod: PaymentMethodInvoice,
		Address:       "1 Main St",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.OrderNumber != "ORD-1" || order.TotalAmount != 22 || len(order.Items) != 1 || order.Items[0].Subtotal != 20 {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    pkgerrors.Code
		message string
		details map[string][]string
	}{
		{
			name:    "flat errors wrapped under general",
			status:  http.StatusBadRequest,
			body:    `{"success":false,"message":"Validation failed","errors":["quantity too high","address missing"]}`,
			code:    pkgerrors.CodeValidation,
			message: "Validation failed",
			details: map[string][]string{"general": {"quantity too high", "address missing"}},
		},
		{
			name:    "keyed errors kept",
			status:  http.StatusUnprocessableEntity,
			body:    `{"message":"Bad order","errors":{"address":["required"]}}`,
			code:    pkgerrors.CodeValidation,
			message: "Bad order",
			details: map[string][]string{"address": {"required"}},
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    `{"success":false,"message":"Product not found"}`,
			code:    pkgerrors.CodeNotFound,
			message: "Product not found",
		},
		{
			name:    "error field used when message empty",
			status:  http.StatusUnauthorized,
			body:    `{"success":false,"error":"token expired"}`,
			code:    pkgerrors.CodeUnauthorized,
			message: "token expired",
		},
		{
			name:    "server error with html body",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			code:    pkgerrors.CodeDependency,
			message: defaultFailureMessage,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			client, _ := NewClient("http://backend.test", WithHTTPClient(&http.Client{Transport: rt}))

			_, err := client.GetProduct(context.Background(), "p1")
			typed := pkgerrors.As(err)
			if typed == nil {
				t.Fatalf("expected typed error, got %v", err)
			}
			if typed.Code() != tc.code || typed.Message() != tc.message {
				t.Fatalf("unexpected error code=%s message=%q", typed.Code(), typed.Message())
			}
			if tc.details == nil {
				if typed.Details() != nil {
					t.Fatalf("expected no details, got %v", typed.Details())
				}
				return
			}
			got, ok := typed.Details().(map[string][]string)
			if !ok {
				t.Fatalf("unexpected details type %T", typed.Details())
			}
			for key, want := range tc.details {
				if strings.Join(got[key], "|") != strings.Join(want, "|") {
					t.Fatalf("details[%s] = %v, want %v", key, got[key], want)
				}
			}
		})
	}
}

func TestTransportFailureIsDependencyError(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})
	client, _ := NewClient("http://backend.test", WithHTTPClient(&http.Client{Transport: rt}))

	if _, err := client.ListProducts(context.Background(), ProductSearchParams{}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if err := client.Ping(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected ping dependency error, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
