package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"drip-admin-console/internal/client"
	"drip-admin-console/internal/config"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/notify"
	"drip-admin-console/internal/slice"
	"drip-admin-console/internal/storage"
	"drip-admin-console/internal/store"
	"drip-admin-console/internal/utils"

	"github.com/spf13/cobra"
)

// app is everything a command needs, built once before any command runs
type app struct {
	cfg      *config.Config
	registry *entities.Registry
	session  storage.SessionStorage
	client   *client.AdminClient
	store    *store.Store
	out      io.Writer
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	utils.SetupLoggingTo(os.Stderr, cfg.LogLevel)

	registry := entities.DefaultRegistry()
	if cfg.EntitiesFile != "" {
		if err := registry.LoadOverrides(cfg.EntitiesFile); err != nil {
			return nil, fmt.Errorf("failed to load entity overrides: %w", err)
		}
	}

	session, err := storage.NewFileSessionStorage(cfg.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	gateway := client.NewAdminClient(cfg.APIBaseURL, session, client.WithTimeout(cfg.RequestTimeout))

	var opts []slice.Option
	opts = append(opts, slice.WithNotifier(notify.LogNotifier{}))
	if cfg.StaleResponseGuard {
		opts = append(opts, slice.WithStaleResponseGuard())
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		session:  session,
		client:   gateway,
		store:    store.New(registry, gateway, opts...),
		out:      out,
	}, nil
}

func newRootCmd() *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:   "dripctl",
		Short: "Manage the Drip Studios catalogue from the terminal",
		Long: `dripctl talks to the Drip Studios admin API.

Log in once with a bearer token, then list, create, update, delete,
toggle and reorder records of any entity:

  dripctl login --token <jwt>
  dripctl list product --page 2 --items 20
  dripctl create tag --field name=summer
  dripctl reorder category 0 3
  dripctl export contacts --out contacts.xlsx`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd.OutOrStdout())
			return err
		},
	}

	current := func() *app { return a }
	root.AddCommand(
		newLoginCmd(current),
		newLogoutCmd(current),
		newEntitiesCmd(current),
		newListCmd(current),
		newCreateCmd(current),
		newUpdateCmd(current),
		newDeleteCmd(current),
		newToggleCmd(current),
		newReorderCmd(current),
		newExportCmd(current),
	)
	return root
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		if client.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, styles.Error.Render("session expired or missing, run: dripctl login --token <token>"))
		} else if !errors.Is(err, errAlreadyReported) {
			fmt.Fprintln(os.Stderr, styles.Error.Render("error: "+err.Error()))
		}
		os.Exit(1)
	}
}
