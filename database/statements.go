package database

import (
	"fmt"

	"github.com/lib/pq"
)

// CreateDatabaseStatement returns CREATE DATABASE "<name>"
func CreateDatabaseStatement(name string) string {
	return fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(name))
}

// TerminateSessionsStatement returns a statement that terminates every other
// backend connected to the named database
func TerminateSessionsStatement(name string) string {
	return fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE pid <> pg_backend_pid() AND datname = %s",
		pq.QuoteLiteral(name),
	)
}

// DropDatabaseStatement returns DROP DATABASE "<name>"
func DropDatabaseStatement(name string) string {
	return fmt.Sprintf("DROP DATABASE %s", pq.QuoteIdentifier(name))
}
