package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"db_sheets_sync/internal/app"
	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/pipeline"
	"db_sheets_sync/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errSyncFailed = errors.New("sync failed")

var (
	pretty   bool
	showRows int
)

func main() {
	setupEnvironment()
	log.Debug().Msg("Starting application")

	rootCmd := &cobra.Command{
		Use:           "db-sheets-sync",
		Short:         "Publish database tables to spreadsheet tabs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP sync trigger",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}

	runCmd := &cobra.Command{
		Use:   "run [target]",
		Short: "Run one sync pass over every target, or only the named one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runOnce,
	}
	runCmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")

	targetsCmd := &cobra.Command{
		Use:   "targets",
		Short: "List the configured targets",
		Args:  cobra.NoArgs,
		RunE:  listTargets,
	}

	showCmd := &cobra.Command{
		Use:   "show <target>",
		Short: "Print the leading rows of a target's sheet",
		Args:  cobra.ExactArgs(1),
		RunE:  show,
	}
	showCmd.Flags().IntVarP(&showRows, "rows", "n", 10, "Number of rows to print")
	showCmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")

	rootCmd.AddCommand(serveCmd, runCmd, targetsCmd, showCmd)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSyncFailed) {
			log.Error().Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Debug().
		Str("driver", cfg.Database.Driver).
		Str("destination", cfg.Destination.Kind).
		Int("targets", len(cfg.Targets)).
		Msg("Configuration loaded")
	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(app.NewService(cfg))
	return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := app.NewService(cfg)

	var resp server.SyncResponse
	if len(args) == 1 {
		outcome, err := svc.SyncTarget(ctx, args[0])
		if err != nil {
			return err
		}
		resp = server.OutcomeResponse(outcome)
	} else {
		summary, err := svc.SyncAll(ctx)
		if err != nil {
			return err
		}
		resp = server.SummaryResponse(summary)
	}

	if err := printJSON(cmd, resp); err != nil {
		return err
	}
	if resp.Status == string(pipeline.StatusFailure) {
		return errSyncFailed
	}
	return nil
}

func listTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, t := range cfg.Targets {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-30s %-20s %s\n", t.Name, t.Table, t.Sheet, t.Theme)
	}
	return nil
}

func show(cmd *cobra.Command, args []string) error {
	if showRows < 1 {
		return fmt.Errorf("--rows must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rows, err := app.NewService(cfg).Show(cmd.Context(), args[0], showRows)
	if err != nil {
		return err
	}
	return printJSON(cmd, rows)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
