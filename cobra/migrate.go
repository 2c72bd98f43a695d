package cobra

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/b87/testdb-kit/database"
)

func init() {
	DBCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(statusCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect the migrations of a test database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show migration status of a test database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		config := newConfig(cmd)
		db, err := database.Connect(ctx, config, config.URL(args[0]))
		if err != nil {
			return err
		}
		defer db.Close()

		status, err := db.Migrator(config.MigrationSource()).Status(ctx)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			handleSuccess(cmd, "Migration status retrieved successfully", map[string]interface{}{
				"database":        args[0],
				"current_version": status.Current,
				"latest_version":  status.Latest,
				"applied_count":   status.Applied,
				"pending_count":   status.Pending,
				"migrations":      status.Migrations,
			})
			return nil
		}

		cmd.Printf("Database: %s\n", args[0])
		cmd.Printf("Current Version: %d\n", status.Current)
		cmd.Printf("Latest Version: %d\n", status.Latest)
		cmd.Printf("Applied: %d, Pending: %d\n", status.Applied, status.Pending)
		for _, m := range status.Migrations {
			state := "pending"
			if m.IsApplied {
				state = "applied " + m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("  %5d  %-40s %s\n", m.Version, m.Source, state)
		}
		return nil
	},
}
