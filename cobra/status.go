package cobra

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/b87/testdb-kit/database"
)

func init() {
	DBCmd.AddCommand(serverStatusCmd)
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server and the test databases it holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		config := newConfig(cmd)
		status, err := getServerStatus(ctx, config.WithDefaults())
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			handleSuccess(cmd, "Server status retrieved successfully", map[string]interface{}{
				"status": status,
			})
			return nil
		}
		displayStatus(cmd, status)
		return nil
	},
}

// ServerStatus describes the server test databases are created on
type ServerStatus struct {
	Host      string           `json:"host"`
	Port      int              `json:"port"`
	User      string           `json:"user"`
	Version   string           `json:"version"`
	Prefix    string           `json:"prefix"`
	Databases []DatabaseStatus `json:"databases"`
}

// DatabaseStatus describes one test database on the server
type DatabaseStatus struct {
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`
}

func getServerStatus(ctx context.Context, config database.Config) (*ServerStatus, error) {
	admin, err := database.Connect(ctx, config, config.AdminURL())
	if err != nil {
		return nil, err
	}
	defer admin.Close()

	status := &ServerStatus{
		Host:      config.Host,
		Port:      config.Port,
		User:      config.User,
		Prefix:    config.Prefix,
		Databases: []DatabaseStatus{},
	}

	if err := admin.DB().GetContext(ctx, &status.Version, "SHOW server_version"); err != nil {
		return nil, database.WrapError(err, database.ErrCodeQueryFailed, "status", "failed to get server version")
	}

	introspection := admin.Introspection()
	names, err := introspection.ListDatabases(ctx, config.Prefix)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		sessions, err := introspection.CountSessions(ctx, name)
		if err != nil {
			return nil, err
		}
		status.Databases = append(status.Databases, DatabaseStatus{Name: name, Sessions: sessions})
	}

	return status, nil
}

func displayStatus(cmd *cobra.Command, status *ServerStatus) {
	cmd.Println("=== Server Status ===")
	cmd.Printf("  Host: %s\n", fmt.Sprintf("%s:%d", status.Host, status.Port))
	cmd.Printf("  User: %s\n", status.User)
	cmd.Printf("  Version: %s\n", status.Version)

	cmd.Printf("\nTest databases (%s*): %d\n", status.Prefix, len(status.Databases))
	for _, db := range status.Databases {
		cmd.Printf("  %s  sessions: %d\n", db.Name, db.Sessions)
	}
}
