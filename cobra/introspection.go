package cobra

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/b87/testdb-kit/database"
)

func init() {
	DBCmd.AddCommand(tablesCmd)
}

var tablesCmd = &cobra.Command{
	Use:   "tables [name]",
	Short: "Show the tables of a test database",
	Long: `Show the tables and columns of a test database, typically one kept by
create --keep after its migrations failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		config := newConfig(cmd)
		db, err := database.Connect(ctx, config, config.URL(args[0]))
		if err != nil {
			return err
		}
		defer db.Close()

		tables, err := db.Introspection().GetTables(ctx)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			if tables == nil {
				tables = []database.TableInfo{}
			}
			handleSuccess(cmd, "Tables retrieved successfully", map[string]interface{}{
				"database": args[0],
				"tables":   tables,
			})
			return nil
		}

		cmd.Printf("Tables in %s: %d\n", args[0], len(tables))
		for _, table := range tables {
			cmd.Printf("\n%s.%s\n", table.Schema, table.Name)
			for _, col := range table.Columns {
				nullable := "NOT NULL"
				if col.IsNullable {
					nullable = "NULL"
				}
				cmd.Printf("  %-30s %-20s %s\n", col.Name, col.DataType, nullable)
			}
		}
		return nil
	},
}
