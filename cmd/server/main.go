package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"fieldsync/internal/api"
	"fieldsync/internal/catalog"
	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/pg"
	"fieldsync/internal/plugin"
	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Idempotent custom field installer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = c
			logging.Setup(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
	}
	config.BindFlags(root.PersistentFlags())

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	root.RunE = serve.RunE
	root.AddCommand(serve)

	for _, hook := range []string{plugin.HookInstall, plugin.HookActivate, plugin.HookDeactivate, plugin.HookUpdate} {
		root.AddCommand(hookCmd(hook, &cfg))
	}

	uninstall := hookCmd(plugin.HookUninstall, &cfg)
	uninstall.Flags().Bool("keep-user-data", false, "Leave custom fields in place")
	root.AddCommand(uninstall)

	root.AddCommand(migrateCmd(&cfg), lintCmd(&cfg))
	return root
}

func runServe(ctx context.Context, cfg config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	log := logging.Package("main")
	log.Info().Str("addr", cfg.Addr()).Msg("starting fieldsync")
	return api.RunServer(ctx, cfg.Addr(), a.storage())
}

func hookCmd(hook string, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   hook,
		Short: fmt.Sprintf("Run the %s lifecycle hook", hook),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// флаг есть только у uninstall
			keep, _ := cmd.Flags().GetBool("keep-user-data")
			rep, err := a.plugin.Run(cmd.Context(), hook, keep)
			if rep != nil {
				_ = printJSON(cmd.OutOrStdout(), rep)
			}
			return err
		},
	}
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables for the custom field collections (postgres)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entities, err := loadSchema(*cfg)
			if err != nil {
				return err
			}
			if dry, _ := cmd.Flags().GetBool("print"); dry {
				ddl, err := pg.GenerateDDL(entities)
				if err != nil {
					return err
				}
				return printDDL(cmd.OutOrStdout(), ddl)
			}
			if cfg.Driver != config.DriverPostgres {
				return errors.Newf("migrate needs driver=postgres (got %q)", cfg.Driver)
			}
			db, err := pg.Open(cmd.Context(), cfg.DBURL)
			if err != nil {
				return err
			}
			defer db.Close()
			st, err := pg.NewStore(db, entities)
			if err != nil {
				return err
			}
			return st.Migrate(cmd.Context(), logging.Package("pg"))
		},
	}
	cmd.Flags().Bool("print", false, "Print DDL instead of applying it")
	return cmd
}

func lintCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate the catalog and the collection schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entities, err := loadSchema(*cfg)
			if err != nil {
				return err
			}
			cat, err := catalog.LoadPath(cfg.CatalogPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			issues := cat.Validate()
			for _, is := range issues {
				fmt.Fprintf(out, "catalog: %s [%s]\n", is, is.Code)
			}
			schema := api.NewStorage(entities, repo.Set{}, nil).SchemaLint()
			for _, is := range schema {
				fmt.Fprintf(out, "schema: %s.%s: %s [%s]\n", is.Entity, is.Field, is.Message, is.Code)
			}
			if n := len(issues) + len(schema); n > 0 {
				return errors.Newf("%d issue(s) found", n)
			}
			fmt.Fprintf(out, "ok: %d set(s), %d entities\n", cat.Len(), len(entities))
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDDL(w io.Writer, ddl map[string]string) error {
	for _, key := range pg.SortedKeys(ddl) {
		if _, err := fmt.Fprintf(w, "-- %s\n%s\n\n", key, ddl[key]); err != nil {
			return err
		}
	}
	return nil
}
