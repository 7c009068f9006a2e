// Command partnerctl is the operator CLI: local stack orchestration, schema
// migrations, staff tokens and the review dialog.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/PartnerGate/internal/config"
	"github.com/dharsanguruparan/PartnerGate/internal/database"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/server"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "partnerctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partnerctl",
		Short: "PartnerGate operator CLI",
		Long: `partnerctl runs the docker stack and tests during development, applies database
migrations, mints staff tokens for the review API and records staff review decisions.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newBuildCmd(),
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newTestCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newReviewCmd(),
	)
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			db := database.OpenDB(pool)
			defer db.Close()
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token <staff-id>",
		Short: "Mint a staff bearer token for the review API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if os.Getenv("PARTNER_STAFF_JWT_SECRET") == "" {
				return fmt.Errorf("PARTNER_STAFF_JWT_SECRET must be set so the api accepts the token")
			}
			token, err := issuerFor(cfg).GenerateToken(args[0], email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Staff email recorded in the token")
	return cmd
}

// buildStack wires the services for commands that act on stored data.
func buildStack(ctx context.Context) (*server.Stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return server.Build(ctx, cfg, logging.NewJSON(os.Stderr, level))
}
