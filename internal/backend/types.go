package backend

import "time"

// Product statuses reported by the backend.
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

// PaymentMethodInvoice is the only payment method the backend accepts.
const PaymentMethodInvoice = "invoice"

// Product mirrors the backend product resource.
type Product struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	BasePrice   float64   `json:"basePrice"`
	TaxRate     float64   `json:"taxRate"`
	Status      string    `json:"status"`
	StockAmount int       `json:"stockAmount"`
	IsDeleted   bool      `json:"isDeleted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Pagination is the page metadata attached to product listings.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ProductsPage is one page of the public product listing.
type ProductsPage struct {
	Data       []Product  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ProductSearchParams filters the public product listing. Zero values are omitted.
type ProductSearchParams struct {
	Search   string
	Name     string
	MinPrice *float64
	MaxPrice *float64
	InStock  *bool
	Page     int
	Limit    int
}

// OrderItem is one order line as sent to the backend. TaxRate is a fraction in [0, 1].
type OrderItem struct {
	ProductID   string  `json:"productId" validate:"required"`
	ProductName string  `json:"productName" validate:"required"`
	Quantity    int     `json:"quantity" validate:"min=1"`
	UnitPrice   float64 `json:"unitPrice" validate:"min=0"`
	TaxRate     float64 `json:"taxRate" validate:"min=0,max=1"`
}

// OrderPayload is the body of POST /api/v1/orders.
type OrderPayload struct {
	CustomerID     string      `json:"customerId" validate:"required"`
	Items          []OrderItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  string      `json:"paymentMethod" validate:"required,oneof=invoice"`
	DiscountAmount float64     `json:"discountAmount" validate:"min=0"`
	Address        string      `json:"address" validate:"required"`
}

// OrderLine is an order line as returned by the backend, including its subtotal.
type OrderLine struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TaxRate     float64 `json:"taxRate"`
	Subtotal    float64 `json:"subtotal"`
}

// Order is the backend's authoritative record of a submitted order.
type Order struct {
	ID             string      `json:"_id"`
	OrderNumber    string      `json:"orderNumber"`
	CustomerID     string      `json:"customerId"`
	Items          []OrderLine `json:"items"`
	Subtotal       float64     `json:"subtotal"`
	TaxAmount      float64     `json:"taxAmount"`
	DiscountAmount float64     `json:"discountAmount"`
	TotalAmount    float64     `json:"totalAmount"`
	Status         string      `json:"status"`
	PaymentMethod  string      `json:"paymentMethod"`
	CreatedAt      time.Time   `json:"createdAt"`
}
