package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// PostgresClient manages the connection to PostgreSQL.
// A pgx connection is not safe for concurrent use, so queries are serialized.
type PostgresClient struct {
	connString string
	database   string

	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPostgresClient creates a new PostgreSQL client; Connect opens the connection
func NewPostgresClient(connString string) (*PostgresClient, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}
	return &PostgresClient{connString: connString, database: cfg.Database}, nil
}

// Connect opens and pings the connection
func (c *PostgresClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := pgx.Connect(ctx, c.connString)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.conn = conn
	return nil
}

// Query runs a statement and materializes all rows
func (c *PostgresClient) Query(ctx context.Context, statement string, args ...any) (*Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	rows, err := c.conn.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &Rows{Columns: make([]string, len(fields))}
	for i, f := range fields {
		result.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		result.Values = append(result.Values, vals)
	}

	return result, rows.Err()
}

// Close closes the database connection; closing twice is a no-op
func (c *PostgresClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(context.Background())
	c.conn = nil
	return err
}

// Dialect returns Postgres
func (c *PostgresClient) Dialect() Dialect {
	return Postgres
}

// DatabaseName returns the database named in the connection string
func (c *PostgresClient) DatabaseName() string {
	return c.database
}
