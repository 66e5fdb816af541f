package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/snapshots"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/env"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/migrate"
)

const defaultProfile = "default"

type cliOptions struct {
	profile    string
	dbPath     string
	backendURL string
	apiToken   string
	timeout    time.Duration
	verbose    bool
	asJSON     bool

	logg *logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Browse products, manage a local cart and place orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.profile, "profile", env.Get("STOREFRONT_CLI_PROFILE", defaultProfile), "cart profile; each profile keeps its own cart")
	flags.StringVar(&opts.dbPath, "db", env.Get("STOREFRONT_CLI_DB", filepath.Join(".", "storefront-cart.db")), "sqlite file holding local carts")
	flags.StringVar(&opts.backendURL, "backend", env.Get(config.EnvBackendBaseURL, "http://localhost:3000"), "backend base URL")
	flags.StringVar(&opts.apiToken, "token", env.Get("STOREFRONT_BACKEND_API_TOKEN", ""), "backend API token")
	flags.DurationVar(&opts.timeout, "timeout", env.Duration("STOREFRONT_CLI_TIMEOUT", 10*time.Second), "backend request timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", env.Bool("STOREFRONT_CLI_VERBOSE", false), "log backend requests to stderr")
	flags.BoolVar(&opts.asJSON, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newProductsCmd(opts),
		newCartCmd(opts),
		newCheckoutCmd(opts),
	)
	return root
}

func (o *cliOptions) logger() *logger.Logger {
	if o.logg == nil {
		o.logg = logger.Nop()
		if o.verbose {
			o.logg = logger.New(logger.Options{ServiceName: "storefront-cli", Level: logger.ParseLevel("debug"), Output: os.Stderr})
		}
	}
	return o.logg
}

func (o *cliOptions) backendClient() (*backend.Client, error) {
	return backend.NewClient(o.backendURL,
		backend.WithTimeout(o.timeout),
		backend.WithAPIToken(o.apiToken),
		backend.WithLogger(o.logger()),
	)
}

func (o *cliOptions) catalog() (*catalog.Service, error) {
	client, err := o.backendClient()
	if err != nil {
		return nil, err
	}
	return catalog.NewService(catalog.ServiceParams{Source: client, Logger: o.logger()})
}

// openCart opens the sqlite file, applies migrations and returns the profile's cart.
// The returned func closes the database.
func (o *cliOptions) openCart(ctx context.Context) (*cart.Store, func() error, error) {
	client, err := db.New(ctx, config.DBConfig{SQLitePath: o.dbPath}, true, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open local cart db: %w", err)
	}
	if err := migrate.Up(ctx, nil, client); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("prepare local cart db: %w", err)
	}
	repo, err := snapshots.NewRepository(client.DB())
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	registry := cart.NewRegistry(cart.RegistryParams{Storage: repo, Logger: o.logger()})
	store, err := registry.Open(ctx, o.profile)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}
