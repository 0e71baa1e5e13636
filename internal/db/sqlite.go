package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteClient manages the connection to SQLite
type SQLiteClient struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteClient creates a new SQLite client; Connect opens the file
func NewSQLiteClient(path string) *SQLiteClient {
	return &SQLiteClient{path: path}
}

// Connect opens and pings the database
func (c *SQLiteClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}
	if c.path == "" {
		return fmt.Errorf("failed to open database: empty path")
	}

	db, err := sql.Open("sqlite3", c.path)
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
func (c *SQLiteClient) Query(ctx context.Context, statement string, args ...any) (*Rows, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	return querySQL(ctx, db, statement, args...)
}

// Close closes the database connection; closing twice is a no-op
func (c *SQLiteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Dialect returns SQLite
func (c *SQLiteClient) Dialect() Dialect {
	return SQLite
}

// DatabaseName returns the file name without its extension
func (c *SQLiteClient) DatabaseName() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GetDB returns the underlying database handle, nil before Connect
func (c *SQLiteClient) GetDB() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}
