package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorCode represents different types of test database errors
type ErrorCode string

const (
	// Connection errors
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Lifecycle errors
	ErrCodeCreateDatabaseFailed    ErrorCode = "CREATE_DATABASE_FAILED"
	ErrCodeMigrationFailed         ErrorCode = "MIGRATION_FAILED"
	ErrCodePoolCreationFailed      ErrorCode = "POOL_CREATION_FAILED"
	ErrCodeTerminateSessionsFailed ErrorCode = "TERMINATE_SESSIONS_FAILED"
	ErrCodeDropDatabaseFailed      ErrorCode = "DROP_DATABASE_FAILED"
	ErrCodeBridgeExecutionFailed   ErrorCode = "BRIDGE_EXECUTION_FAILED"

	// Query errors
	ErrCodeQueryFailed ErrorCode = "QUERY_FAILED"

	// Generic errors
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// SQLSTATE reported when connecting to a database that does not exist.
const sqlStateInvalidCatalogName = "3D000"

// DBError represents a structured database error with context
type DBError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Operation   string                 `json:"operation,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Underlying  error                  `json:"-"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *DBError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Operation != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.Operation, e.Message)
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *DBError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is a DBError carrying the same code.
func (e *DBError) Is(target error) bool {
	var dbErr *DBError
	if errors.As(target, &dbErr) {
		return e.Code == dbErr.Code
	}
	return false
}

func (e *DBError) WithContext(key string, value interface{}) *DBError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DBError) WithOperation(operation string) *DBError {
	e.Operation = operation
	return e
}

func (e *DBError) WithUserMessage(message string) *DBError {
	e.UserMessage = message
	return e
}

// NewDBError creates a new DBError
func NewDBError(code ErrorCode, message string, underlying error) *DBError {
	return &DBError{
		Code:       code,
		Message:    message,
		Underlying: underlying,
	}
}

// NewConnectionError creates a connection-related error
func NewConnectionError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeConnectionFailed, message, underlying).
		WithUserMessage("Unable to connect to the database server. Please check your connection settings.")
}

// NewConfigError creates a configuration-related error
func NewConfigError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeInvalidConfig, message, underlying).
		WithUserMessage("Test database configuration is invalid. Please check your settings.")
}

// NewCreateDatabaseError creates an error for a failed CREATE DATABASE
func NewCreateDatabaseError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeCreateDatabaseFailed, message, underlying).
		WithUserMessage("Could not create the test database. Check that the user has the CREATEDB privilege.")
}

// NewMigrationError creates a migration-related error
func NewMigrationError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeMigrationFailed, message, underlying).
		WithUserMessage("Database migration failed. Please check the migration files and database state.")
}

// NewPoolCreationError creates an error for a pool that could not be established
func NewPoolCreationError(message string, underlying error) *DBError {
	return NewDBError(ErrCodePoolCreationFailed, message, underlying).
		WithUserMessage("Could not open a connection pool to the test database.")
}

// NewTerminateSessionsError creates an error for a failed backend termination
func NewTerminateSessionsError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeTerminateSessionsFailed, message, underlying).
		WithUserMessage("Could not terminate sessions on the test database. It was left on the server.")
}

// NewDropDatabaseError creates an error for a failed DROP DATABASE
func NewDropDatabaseError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeDropDatabaseFailed, message, underlying).
		WithUserMessage("Could not drop the test database. It was left on the server.")
}

// NewBridgeExecutionError creates an error for an isolated execution context
// that failed to run or join
func NewBridgeExecutionError(message string, underlying error) *DBError {
	return NewDBError(ErrCodeBridgeExecutionFailed, message, underlying).
		WithUserMessage("The test database operation crashed before completing.")
}

// WrapError wraps an existing error with additional context
func WrapError(err error, code ErrorCode, operation string, message string) *DBError {
	if err == nil {
		return nil
	}

	// If it's already a DBError, enhance it
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if operation != "" {
			dbErr.Operation = operation
		}
		if message != "" {
			dbErr.Message = message + ": " + dbErr.Message
		}
		return dbErr
	}

	return NewDBError(code, message, err).WithOperation(operation)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Code
	}

	return ErrCodeUnknown
}

// GetUserMessage extracts a user-friendly message from an error
func GetUserMessage(err error) string {
	if err == nil {
		return ""
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.UserMessage != "" {
			return dbErr.UserMessage
		}
		return dbErr.Message
	}

	return err.Error()
}

// IsDatabaseNotExist reports whether err is the server refusing a connection
// because the named database does not exist. Both lib/pq and pgx errors are
// recognised.
func IsDatabaseNotExist(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlStateInvalidCatalogName
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateInvalidCatalogName
	}

	return false
}
