// Package pgtest provides the PostgreSQL server used by integration tests.
//
// When POSTGRES_HOST is set the tests run against that server, configured
// from the POSTGRES_* variables. Otherwise an embedded PostgreSQL is started
// on a free local port for the lifetime of the test binary.
package pgtest

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/b87/testdb-kit/database"
)

const (
	embeddedUser     = "postgres"
	embeddedPassword = "postgres"
)

// Server is a PostgreSQL server tests may create databases on.
type Server struct {
	config   database.Config
	embedded *embeddedpostgres.EmbeddedPostgres
	runtime  string
}

// Start returns the configured server, or starts an embedded one when none
// is configured.
func Start() (*Server, error) {
	if os.Getenv("POSTGRES_HOST") != "" {
		config, err := database.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return &Server{config: config}, nil
	}
	return startEmbedded()
}

func startEmbedded() (*Server, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find a free port: %w", err)
	}

	runtime, err := os.MkdirTemp("", "testdb-kit-pg-")
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	epg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Port(uint32(port)).
		Username(embeddedUser).
		Password(embeddedPassword).
		Database(embeddedUser).
		RuntimePath(filepath.Join(runtime, "runtime")).
		DataPath(filepath.Join(runtime, "data")).
		Logger(io.Discard))
	if err := epg.Start(); err != nil {
		os.RemoveAll(runtime)
		return nil, fmt.Errorf("failed to start embedded postgres: %w", err)
	}

	return &Server{
		config: database.Config{
			Host:     "localhost",
			Port:     port,
			User:     embeddedUser,
			Password: embeddedPassword,
			SSLMode:  "disable",
		},
		embedded: epg,
		runtime:  runtime,
	}, nil
}

// Stop stops an embedded server. It does nothing for a configured one.
func (s *Server) Stop() error {
	if s.embedded == nil {
		return nil
	}
	defer os.RemoveAll(s.runtime)
	return s.embedded.Stop()
}

// Config returns the connection settings of the server with a quiet logger.
func (s *Server) Config() database.Config {
	config := s.config
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return config
}

// Run starts a server, runs the tests of m against it and stops it. Under
// -short the server is not started and server is left nil; integration tests
// skip themselves through Require.
func Run(m *testing.M, server **Server) int {
	flag.Parse()
	if testing.Short() {
		return m.Run()
	}

	s, err := Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgtest: %v\n", err)
		return 1
	}
	*server = s

	code := m.Run()
	if err := s.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "pgtest: failed to stop server: %v\n", err)
	}
	return code
}

// Require skips t when no server is available.
func Require(t testing.TB, server *Server) database.Config {
	t.Helper()
	if testing.Short() || server == nil {
		t.Skip("skipping integration test")
	}
	return server.Config()
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
