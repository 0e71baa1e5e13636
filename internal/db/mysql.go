package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
)

// MySQLClient manages the connection to MySQL
type MySQLClient struct {
	dsn      string
	database string

	mu sync.Mutex
	db *sql.DB
}

// NewMySQLClient creates a new MySQL client; Connect opens the connection
func NewMySQLClient(dsn string) (*MySQLClient, error) {
	name, err := ParseDatabaseName(dsn)
	if err != nil {
		return nil, err
	}
	return &MySQLClient{dsn: dsn, database: name}, nil
}

// ParseDatabaseName extracts the database name from a MySQL DSN
func ParseDatabaseName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("MySQL DSN does not name a database")
	}
	return cfg.DBName, nil
}

// Connect opens and pings the connection pool, capped at one connection
func (c *MySQLClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := sql.Open("mysql", c.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.db = db
	return nil
}

// Query runs a statement and materializes all rows
func (c *MySQLClient) Query(ctx context.Context, statement string, args ...any) (*Rows, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	return querySQL(ctx, db, statement, args...)
}

// Close closes the database connection; closing twice is a no-op
func (c *MySQLClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Dialect returns MySQL
func (c *MySQLClient) Dialect() Dialect {
	return MySQL
}

// DatabaseName returns the database named in the DSN
func (c *MySQLClient) DatabaseName() string {
	return c.database
}
