package cart

import "github.com/angelmondragon/storefront/pkg/money"

// Totals are the derived fields of a cart.
type Totals struct {
	ItemCount   int
	Subtotal    float64
	TaxAmount   float64
	TotalAmount float64
}

// Recompute derives the cart totals from lines. Sums accumulate at full precision and
// are rounded once at the end; the total is the sum of the rounded parts.
func Recompute(lines []Line) Totals {
	var (
		count    int
		subtotal float64
		tax      float64
	)
	for _, l := range lines {
		count += l.Quantity
		subtotal += l.BasePrice * float64(l.Quantity)
		tax += l.BasePrice * (l.TaxRate / 100) * float64(l.Quantity)
	}

	roundedSubtotal := money.Round2(subtotal)
	roundedTax := money.Round2(tax)
	return Totals{
		ItemCount:   count,
		Subtotal:    roundedSubtotal,
		TaxAmount:   roundedTax,
		TotalAmount: money.Round2(roundedSubtotal + roundedTax),
	}
}

// withLines builds a cart from lines and their recomputed totals.
func withLines(lines []Line) Cart {
	t := Recompute(lines)
	return Cart{
		Items:       lines,
		ItemCount:   t.ItemCount,
		Subtotal:    t.Subtotal,
		TaxAmount:   t.TaxAmount,
		TotalAmount: t.TotalAmount,
	}
}

// totalsOf extracts the derived fields already stored on c.
func totalsOf(c Cart) Totals {
	return Totals{
		ItemCount:   c.ItemCount,
		Subtotal:    c.Subtotal,
		TaxAmount:   c.TaxAmount,
		TotalAmount: c.TotalAmount,
	}
}

func addLine(lines []Line, item CatalogItem) []Line {
	out := make([]Line, 0, len(lines)+1)
	found := false
	for _, l := range lines {
		if l.ID == item.ID {
			l.Quantity++
			found = true
		}
		out = append(out, l)
	}
	if !found {
		if item.Images != nil {
			item.Images = append([]string(nil), item.Images...)
		}
		out = append(out, Line{CatalogItem: item, Quantity: 1})
	}
	return out
}

func removeLine(lines []Line, id string) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}
