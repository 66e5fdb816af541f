// Package cart holds the storefront cart state: its data model, pricing, the persisted
// snapshot codec and the per-session Store that every reader subscribes to.
package cart

// CatalogItem is a purchasable product as supplied by the catalog collaborator.
// TaxRate is a percentage in [0, 100].
type CatalogItem struct {
	ID          string   `json:"_id" validate:"required"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	BasePrice   float64  `json:"basePrice" validate:"min=0"`
	TaxRate     float64  `json:"taxRate" validate:"min=0,max=100"`
}

// Line is a CatalogItem held in the cart with a quantity of at least one.
type Line struct {
	CatalogItem
	Quantity int `json:"quantity" validate:"min=1"`
}

// LineTotal returns the unrounded pre-tax amount for the line.
func (l Line) LineTotal() float64 {
	return l.BasePrice * float64(l.Quantity)
}

// Cart is the full client-side cart. Items keep insertion order and hold at most one
// line per catalog id. The derived fields are always recomputed together.
type Cart struct {
	Items       []Line  `json:"items"`
	ItemCount   int     `json:"itemCount"`
	Subtotal    float64 `json:"subtotal"`
	TaxAmount   float64 `json:"taxAmount"`
	TotalAmount float64 `json:"totalAmount"`
}

// Empty returns a cart with no lines and zeroed totals.
func Empty() Cart {
	return Cart{Items: []Line{}}
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Line returns the line for id, if present.
func (c Cart) Line(id string) (Line, bool) {
	for _, l := range c.Items {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// Clone returns a deep copy so callers can never alias store state.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]Line, len(c.Items))
	for i, l := range c.Items {
		out.Items[i] = l
		if l.Images != nil {
			out.Items[i].Images = append([]string(nil), l.Images...)
		}
	}
	return out
}
