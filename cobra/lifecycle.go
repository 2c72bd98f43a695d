package cobra

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/b87/testdb-kit/testdb"
)

var keep = new(bool)

func init() {
	DBCmd.AddCommand(createCmd)
	DBCmd.AddCommand(dropCmd)
	DBCmd.AddCommand(listCmd)
	DBCmd.AddCommand(pruneCmd)

	createCmd.Flags().BoolVar(keep, "keep", false, "Keep the database when migrating it fails")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and migrate a test database",
	Long: `Create a uniquely named test database, apply the migrations to it and
print its URL. The database outlives the command; remove it with drop or prune.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		config := newConfig(cmd)
		config.KeepOnFailure = *keep

		tdb, err := testdb.New(ctx, config)
		if err != nil {
			return err
		}

		handleSuccess(cmd, tdb.URL(), map[string]interface{}{
			"name":      tdb.Name(),
			"url":       tdb.URL(),
			"admin_url": tdb.AdminURL(),
		})
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop [name]",
	Short: "Drop a test database, terminating its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		name := args[0]
		if err := testdb.Drop(ctx, newConfig(cmd), name); err != nil {
			return err
		}

		handleSuccess(cmd, fmt.Sprintf("Database '%s' dropped", name), map[string]interface{}{
			"name": name,
		})
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the test databases on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		names, err := testdb.List(ctx, newConfig(cmd))
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			handleSuccess(cmd, fmt.Sprintf("%d test databases", len(names)), map[string]interface{}{
				"databases": nonNil(names),
			})
			return nil
		}
		for _, name := range names {
			cmd.Println(name)
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop every test database on the server",
	Long: `Drop every database whose name starts with the prefix. Failures do not
stop the prune; they are reported together once every database was tried.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		dropped, err := testdb.Prune(ctx, newConfig(cmd))

		handleSuccess(cmd, fmt.Sprintf("%d test databases dropped", len(dropped)), map[string]interface{}{
			"dropped": nonNil(dropped),
		})
		return err
	},
}

// nonNil keeps empty lists as [] rather than null in JSON output
func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
