package cobra

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/b87/testdb-kit/database"
)

// ErrorOutput represents the structure of CLI error output
type ErrorOutput struct {
	Error       string                 `json:"error"`
	Code        string                 `json:"code,omitempty"`
	Operation   string                 `json:"operation,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	UserMessage string                 `json:"user_message,omitempty"`
	Suggestions []string               `json:"suggestions,omitempty"`
}

// handleError prints err in the format selected by the --json and --verbose
// flags of cmd
func handleError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	errorOutput := buildErrorOutput(err, cmd.Name())

	if jsonOutput {
		if jsonData, jsonErr := json.MarshalIndent(errorOutput, "", "  "); jsonErr == nil {
			cmd.PrintErrln(string(jsonData))
		} else {
			cmd.PrintErrf("Error: %v\n", err)
		}
	} else {
		printHumanError(cmd, errorOutput, verbose)
	}
}

// buildErrorOutput creates structured error output from an error
func buildErrorOutput(err error, operation string) ErrorOutput {
	output := ErrorOutput{
		Error:     err.Error(),
		Operation: operation,
	}

	// Extract structured information if it's a DBError
	var dbErr *database.DBError
	if errors.As(err, &dbErr) {
		output.Code = string(dbErr.Code)
		output.Context = dbErr.Context
		output.UserMessage = dbErr.UserMessage
		output.Suggestions = getSuggestions(dbErr.Code)
	} else {
		output.Code = string(database.ErrCodeUnknown)
		output.UserMessage = err.Error()
	}

	return output
}

// printHumanError prints error in human-readable format
func printHumanError(cmd *cobra.Command, errorOutput ErrorOutput, verbose bool) {
	// Print user-friendly message first
	if errorOutput.UserMessage != "" {
		cmd.PrintErrf("Error: %s\n", errorOutput.UserMessage)
	} else {
		cmd.PrintErrf("Error: %s\n", errorOutput.Error)
	}

	// Show error code if available
	if errorOutput.Code != "" && errorOutput.Code != string(database.ErrCodeUnknown) {
		cmd.PrintErrf("Error Code: %s\n", errorOutput.Code)
	}

	// Show operation context if verbose
	if verbose && errorOutput.Operation != "" {
		cmd.PrintErrf("Operation: %s\n", errorOutput.Operation)
	}

	// Show context in verbose mode
	if verbose && len(errorOutput.Context) > 0 {
		cmd.PrintErrln("Context:")
		for key, value := range errorOutput.Context {
			cmd.PrintErrf("  %s: %v\n", key, value)
		}
	}

	// Show suggestions if available
	if len(errorOutput.Suggestions) > 0 {
		cmd.PrintErrln("\nSuggestions:")
		for _, suggestion := range errorOutput.Suggestions {
			cmd.PrintErrf("  • %s\n", suggestion)
		}
	}

	// Show technical details in verbose mode
	if verbose {
		cmd.PrintErrf("\nTechnical Details: %s\n", errorOutput.Error)
	}
}

// getSuggestions provides helpful suggestions based on error code
func getSuggestions(code database.ErrorCode) []string {
	switch code {
	case database.ErrCodeConnectionFailed:
		return []string{
			"Check if the database server is running",
			"Verify the host, port, user and password",
			"Ensure the user may connect without naming a database",
		}
	case database.ErrCodeCreateDatabaseFailed:
		return []string{
			"Check that the user has the CREATEDB privilege",
			"Verify the server has not reached its database limit",
		}
	case database.ErrCodeMigrationFailed:
		return []string{
			"Check the migration files for syntax errors",
			"Verify the migrations directory exists and holds goose files",
			"Run create with --keep to inspect the partially migrated database",
		}
	case database.ErrCodePoolCreationFailed:
		return []string{
			"Check the database max_connections setting",
			"Ensure the test database has not been dropped",
		}
	case database.ErrCodeTerminateSessionsFailed:
		return []string{
			"Check that the user may call pg_terminate_backend",
			"Connect as the owner of the test database or a superuser",
		}
	case database.ErrCodeDropDatabaseFailed:
		return []string{
			"Verify the database still exists with the list command",
			"Check that the user owns the database",
			"Drop it later with the drop or prune command",
		}
	case database.ErrCodeBridgeExecutionFailed:
		return []string{
			"Run again with --verbose to see the stack of the failed operation",
		}
	case database.ErrCodeInvalidConfig:
		return []string{
			"Review your database configuration settings",
			"Check environment variables for typos",
			"Use a prefix of lowercase letters, digits and underscores",
		}
	default:
		return []string{
			"Check the database server status",
			"Review configuration and network connectivity",
			"Enable verbose mode for more detailed error information",
		}
	}
}

// handleSuccess handles successful operation output
func handleSuccess(cmd *cobra.Command, message string, data map[string]interface{}) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if jsonOutput {
		output := map[string]interface{}{
			"success": true,
			"message": message,
		}
		if data != nil {
			output["data"] = data
		}

		if jsonData, err := json.MarshalIndent(output, "", "  "); err == nil {
			cmd.Println(string(jsonData))
		} else {
			cmd.Println(message)
		}
	} else {
		cmd.Println(message)
	}
}
