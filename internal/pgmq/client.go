// Package pgmq is a thin client for the pgmq Postgres extension, used
// to hand exported records to the catalog loader through a queue.
package pgmq

import (
	"context"
	"database/sql"
	"fmt"
)

// Client wraps a Postgres DB for pgmq queue operations.
type Client struct {
	db *sql.DB
}

// New returns a new PGMQ client backed by the given DB connection.
func New(db *sql.DB) *Client {
	return &Client{db: db}
}

// Send pushes a JSON payload into the given queue.
func (c *Client) Send(ctx context.Context, queue string, payload []byte) error {
	query := "SELECT pgmq.send($1, $2::jsonb, 0)"
	if _, err := c.db.ExecContext(ctx, query, queue, string(payload)); err != nil {
		return fmt.Errorf("pgmq send failed: %w", err)
	}
	return nil
}

// SendBatch pushes several JSON payloads into the queue inside one
// transaction, so a term's batch lands atomically.
func (c *Client) SendBatch(ctx context.Context, queue string, payloads [][]byte) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgmq send_batch begin failed: %w", err)
	}
	defer tx.Rollback()

	query := "SELECT pgmq.send($1, $2::jsonb, 0)"
	for _, payload := range payloads {
		if _, err := tx.ExecContext(ctx, query, queue, string(payload)); err != nil {
			return fmt.Errorf("pgmq send_batch failed: %w", err)
		}
	}
	return tx.Commit()
}
