package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderProducts(w io.Writer, page *backend.ProductsPage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tTAX %\tSTOCK")
	for _, p := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%g\t%d\n", p.ID, p.Name, p.BasePrice, p.TaxRate, p.StockAmount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	pg := page.Pagination
	if pg.TotalPages > 0 {
		_, err := fmt.Fprintf(w, "page %d of %d (%d products)\n", pg.Page, pg.TotalPages, pg.Total)
		return err
	}
	return nil
}

func renderProduct(w io.Writer, p *backend.Product) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", p.ID)
	fmt.Fprintf(tw, "Name\t%s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(tw, "Description\t%s\n", p.Description)
	}
	fmt.Fprintf(tw, "Price\t%.2f\n", p.BasePrice)
	fmt.Fprintf(tw, "Tax rate\t%g%%\n", p.TaxRate)
	fmt.Fprintf(tw, "Stock\t%d\n", p.StockAmount)
	fmt.Fprintf(tw, "Status\t%s\n", p.Status)
	return tw.Flush()
}

func renderCart(w io.Writer, c cart.Cart) error {
	if c.IsEmpty() {
		_, err := fmt.Fprintln(w, "cart is empty")
		return err
	}
	return renderSummary(w, checkout.Summary(c))
}

func renderSummary(w io.Writer, s checkout.OrderSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tPRODUCT\tQTY\tUNIT\tTAX %\tSUBTOTAL\t")
	for _, l := range s.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%g\t%.2f\t\n", l.ProductID, l.Name, l.Quantity, l.UnitPrice, l.TaxRate, l.Subtotal)
	}
	fmt.Fprintln(tw, strings.Repeat("\t", 6))
	fmt.Fprintf(tw, "\t\t%d\t\tSubtotal\t%.2f\t\n", s.ItemCount, s.Subtotal)
	fmt.Fprintf(tw, "\t\t\t\tTax\t%.2f\t\n", s.TaxAmount)
	fmt.Fprintf(tw, "\t\t\t\tTotal\t%.2f\t\n", s.TotalAmount)
	return tw.Flush()
}

// badgeLine is the one-line cart indicator printed after each mutation.
func badgeLine(c cart.Cart) string {
	noun := "items"
	if c.ItemCount == 1 {
		noun = "item"
	}
	return fmt.Sprintf("cart: %d %s, total %.2f", c.ItemCount, noun, c.TotalAmount)
}
