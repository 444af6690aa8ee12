package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"clubhub/internal/app"
	"clubhub/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "clubctl",
	Short: "Operator tooling for the club attendance service",
	Long: `clubctl runs one-off maintenance against the configured store.
It reads the same environment variables (and .env file) as the API.`,
	SilenceUsage: true,
}

var (
	adminName     string
	adminPassword string
	exportOut     string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin [email]",
	Short: "Create an admin account, or promote an existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("CLUBCTL_ADMIN_PASSWORD")
		}
		if password == "" {
			return errors.New("password required: use --password or CLUBCTL_ADMIN_PASSWORD")
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			u, err := a.Users.CreateAdmin(ctx, adminName, args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin ready: %s (%s)\n", u.Email, u.ID)
			return nil
		})
	},
}

var ensureIndexesCmd = &cobra.Command{
	Use:   "ensure-indexes",
	Short: "Create mongo indexes or apply the postgres schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		s, err := app.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())
		fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", cfg.StoreBackend)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [sessionId]",
	Short: "Write the attendance CSV of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			e, err := a.Attendance.ExportSession(ctx, args[0])
			if err != nil {
				return err
			}
			if exportOut == "" {
				return e.Write(cmd.OutOrStdout())
			}
			path := exportOut
			if path == "." {
				path = e.Filename
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := e.Write(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(e.Rows), path)
			return nil
		})
	},
}

// withApp builds the services without redis; these commands neither publish
// events nor read the analytics cache.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg := config.Load()
	cfg.QueueBackend = "memory"
	cfg.RateLimitBackend = "memory"
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "display name")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password (or CLUBCTL_ADMIN_PASSWORD)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", `output file; "." uses the default filename`)

	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(ensureIndexesCmd)
	rootCmd.AddCommand(exportCmd)
}
