package cobra

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/b87/testdb-kit/database"
)

// commandTimeout bounds every command
const commandTimeout = 30 * time.Second

var (
	host       *string
	port       *int
	user       *string
	password   *string
	migrations *string
	prefix     *string
)

// newConfig builds the connection settings from the persistent flags. The
// logger writes to stderr, at DEBUG with --verbose and WARN otherwise.
func newConfig(cmd *cobra.Command) database.Config {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	return database.Config{
		Host:          *host,
		Port:          *port,
		User:          *user,
		Password:      *password,
		MigrationsDir: *migrations,
		Prefix:        *prefix,
		Logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: level,
		})),
	}
}

// DBCmd is the root command for the testdb-kit CLI
var DBCmd = &cobra.Command{
	Use:           "db",
	Short:         "Manage ephemeral PostgreSQL test databases",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// envOrDefault returns the environment variable value or the default if not set
func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func init() {
	// Get default values from environment variables
	defaultHost := envOrDefault("POSTGRES_HOST", "localhost")
	defaultPort, _ := strconv.Atoi(envOrDefault("POSTGRES_PORT", "5432"))
	defaultUser := envOrDefault("POSTGRES_USER", "postgres")
	defaultPassword := envOrDefault("POSTGRES_PASSWORD", "")
	defaultMigrations := envOrDefault("MIGRATIONS_DIR", "")
	defaultPrefix := envOrDefault("TESTDB_PREFIX", database.DefaultPrefix)

	flags := DBCmd.PersistentFlags()
	host = flags.String("host", defaultHost, "postgres host")
	port = flags.Int("port", defaultPort, "postgres port")
	user = flags.String("user", defaultUser, "postgres user")
	password = flags.String("password", defaultPassword, "postgres password")
	migrations = flags.String("migrations", defaultMigrations, "directory of goose migrations to apply")
	prefix = flags.String("prefix", defaultPrefix, "name prefix of test databases")
	flags.Bool("json", false, "Output results and errors in JSON format")
	flags.Bool("verbose", false, "Log every step and show verbose error information")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cmd, err := DBCmd.ExecuteC()
	if err != nil {
		handleError(cmd, err)
		os.Exit(1)
	}
}
