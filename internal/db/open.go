package db

import (
	"fmt"
	"strings"
)

// ParseURL detects the database type and returns the driver connection string
func ParseURL(url string) (Dialect, string, error) {
	if url == "" {
		return "", "", fmt.Errorf("database URL is required")
	}

	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return Postgres, url, nil
	}

	if strings.HasPrefix(url, "mysql://") {
		// the Go MySQL driver takes a bare DSN
		return MySQL, strings.TrimPrefix(url, "mysql://"), nil
	}

	if strings.HasPrefix(url, "sqlite://") {
		return SQLite, strings.TrimPrefix(url, "sqlite://"), nil
	}

	return "", "", fmt.Errorf("invalid database URL scheme (must start with postgres://, mysql://, or sqlite://)")
}

// Open builds an unconnected executor for the URL; call Connect before querying
func Open(url string) (Executor, error) {
	dialect, connStr, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case Postgres:
		client, err := NewPostgresClient(connStr)
		if err != nil {
			return nil, err
		}
		return client, nil
	case MySQL:
		client, err := NewMySQLClient(connStr)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return NewSQLiteClient(connStr), nil
	}
}
