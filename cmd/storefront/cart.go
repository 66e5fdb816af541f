package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/cart"
)

func newCartCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the profile's cart",
	}
	cmd.AddCommand(
		newCartShowCmd(opts),
		newCartAddCmd(opts),
		newCartRemoveCmd(opts),
		newCartClearCmd(opts),
	)
	return cmd
}

func newCartShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show cart lines and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCart(cmd.Context(), opts, func(store *cart.Store) error {
				return printCart(cmd.OutOrStdout(), opts, store.Snapshot())
			})
		},
	}
}

func newCartAddCmd(opts *cliOptions) *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quantity < 1 {
				return fmt.Errorf("--qty must be at least 1")
			}
			svc, err := opts.catalog()
			if err != nil {
				return err
			}
			item, err := svc.Item(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return withCart(cmd.Context(), opts, func(store *cart.Store) error {
				return mutate(cmd, opts, store, func(ctx context.Context) cart.Cart {
					var c cart.Cart
					for i := 0; i < quantity; i++ {
						c = store.AddItem(ctx, item)
					}
					return c
				})
			})
		},
	}
	cmd.Flags().IntVarP(&quantity, "qty", "q", 1, "units to add")
	return cmd
}

func newCartRemoveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product line, whatever its quantity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd.Context(), opts, func(store *cart.Store) error {
				return mutate(cmd, opts, store, func(ctx context.Context) cart.Cart {
					return store.RemoveItem(ctx, args[0])
				})
			})
		},
	}
}

func newCartClearCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCart(cmd.Context(), opts, func(store *cart.Store) error {
				return mutate(cmd, opts, store, store.Clear)
			})
		},
	}
}

func withCart(ctx context.Context, opts *cliOptions, fn func(*cart.Store) error) error {
	store, closeDB, err := opts.openCart(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(store)
}

// mutate applies fn with a subscriber that prints the badge line to stderr after
// every change, then prints the resulting cart.
func mutate(cmd *cobra.Command, opts *cliOptions, store *cart.Store, fn func(context.Context) cart.Cart) error {
	stderr := cmd.ErrOrStderr()
	unsubscribe := store.Subscribe(func(c cart.Cart) {
		fmt.Fprintln(stderr, badgeLine(c))
	})
	defer unsubscribe()

	return printCart(cmd.OutOrStdout(), opts, fn(cmd.Context()))
}

func printCart(w io.Writer, opts *cliOptions, c cart.Cart) error {
	if opts.asJSON {
		return writeJSON(w, c)
	}
	return renderCart(w, c)
}
