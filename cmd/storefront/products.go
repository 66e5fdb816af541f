package main

import (
	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/backend"
)

func newProductsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the product catalog",
	}
	cmd.AddCommand(newProductsListCmd(opts), newProductsShowCmd(opts))
	return cmd
}

func newProductsListCmd(opts *cliOptions) *cobra.Command {
	var (
		params   backend.ProductSearchParams
		minPrice float64
		maxPrice float64
		inStock  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("min-price") {
				params.MinPrice = &minPrice
			}
			if flags.Changed("max-price") {
				params.MaxPrice = &maxPrice
			}
			if flags.Changed("in-stock") {
				params.InStock = &inStock
			}

			svc, err := opts.catalog()
			if err != nil {
				return err
			}
			page, err := svc.List(cmd.Context(), params)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			return renderProducts(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringVarP(&params.Search, "search", "s", "", "free-text search")
	cmd.Flags().IntVar(&params.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&params.Limit, "limit", 20, "products per page")
	cmd.Flags().Float64Var(&minPrice, "min-price", 0, "minimum base price")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum base price")
	cmd.Flags().BoolVar(&inStock, "in-stock", false, "only products with stock")
	return cmd
}

func newProductsShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <product-id>",
		Short: "Show a single product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.catalog()
			if err != nil {
				return err
			}
			product, err := svc.Product(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), product)
			}
			return renderProduct(cmd.OutOrStdout(), product)
		},
	}
}
