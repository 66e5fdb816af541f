package checkout

import (
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/money"
)

// SummaryLine is one rendered order line.
type SummaryLine struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"productName"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	TaxRate   float64 `json:"taxRate"`
	Subtotal  float64 `json:"subtotal"`
}

// OrderSummary is the invoice view of a cart. Totals are the cart's own derived fields.
type OrderSummary struct {
	Lines       []SummaryLine `json:"lines"`
	ItemCount   int           `json:"itemCount"`
	Subtotal    float64       `json:"subtotal"`
	TaxAmount   float64       `json:"taxAmount"`
	TotalAmount float64       `json:"totalAmount"`
}

// Summary builds the order summary for snapshot. Line subtotals are pre-tax and
// rounded for display only.
func Summary(snapshot cart.Cart) OrderSummary {
	lines := make([]SummaryLine, 0, len(snapshot.Items))
	for _, l := range snapshot.Items {
		lines = append(lines, SummaryLine{
			ProductID: l.ID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.BasePrice,
			TaxRate:   l.TaxRate,
			Subtotal:  money.Round2(l.LineTotal()),
		})
	}
	return OrderSummary{
		Lines:       lines,
		ItemCount:   snapshot.ItemCount,
		Subtotal:    snapshot.Subtotal,
		TaxAmount:   snapshot.TaxAmount,
		TotalAmount: snapshot.TotalAmount,
	}
}
