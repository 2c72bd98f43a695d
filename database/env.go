package database

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if idx := strings.Index(line, "="); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])

			if len(value) >= 2 && (value[0] == '"' && value[len(value)-1] == '"' ||
				value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}

			// Only set if not already set in environment
			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	}

	return scanner.Err()
}

// findProjectRoot walks up from the working directory to the first directory
// holding a go.mod or an env file
func findProjectRoot() string {
	current, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		for _, marker := range []string{"go.mod", ".test.env", ".env"} {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "."
}

// loadEnvFileRobust attempts to load an env file from multiple possible locations
func loadEnvFileRobust(filename string) error {
	projectRoot := findProjectRoot()

	paths := []string{
		filename,
		filepath.Join(projectRoot, filename),
		filepath.Join("..", filename),
		filepath.Join("../..", filename),
	}

	for _, path := range paths {
		if err := loadEnvFile(path); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not find %s in any of the expected locations", filename)
}

func envOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
