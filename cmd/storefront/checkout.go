package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
)

func newCheckoutCmd(opts *cliOptions) *cobra.Command {
	var form checkout.Form
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Submit the cart as an invoice order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.backendClient()
			if err != nil {
				return err
			}
			svc, err := checkout.NewService(client, opts.logger())
			if err != nil {
				return err
			}
			return withCart(cmd.Context(), opts, func(store *cart.Store) error {
				result, err := svc.Submit(cmd.Context(), store, form)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.asJSON {
					return writeJSON(out, result)
				}
				fmt.Fprintf(out, "order %s placed (id %s)\n", result.Order.OrderNumber, result.Order.ID)
				return renderSummary(out, result.Summary)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&form.CustomerID, "customer", "", "customer id (required)")
	flags.StringVar(&form.Address, "address", "", "delivery address (required)")
	flags.StringVar(&form.PaymentMethod, "payment-method", "invoice", "payment method")
	flags.Float64Var(&form.DiscountAmount, "discount", 0, "discount amount")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
