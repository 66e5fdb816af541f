// Command storefront is a terminal client for the storefront: it browses the product
// catalog, keeps a cart per local profile in a sqlite file and submits it as an order.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
