// Package remote wraps the hosted Postgres behind the narrow surface the
// rest of the app treats as opaque: row reads, row mutations, batch
// aggregate reads, and change subscriptions. Everything above this
// package sees rows and errors, never SQL.
package remote

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("remote: not found")

	// ErrForbidden is returned when the caller does not own the
	// addressed row.
	ErrForbidden = errors.New("remote: forbidden")
)

// Client is the opaque remote-service client. Safe for concurrent use.
type Client struct {
	db  *sql.DB
	dsn string
}

// New wraps an open database handle. dsn is kept for LISTEN/NOTIFY
// subscriptions, which need their own connection.
func New(db *sql.DB, dsn string) *Client {
	return &Client{db: db, dsn: dsn}
}

// DB exposes the underlying handle for the few callers (push token
// cleanup, digest job) that predate this wrapper.
func (c *Client) DB() *sql.DB { return c.db }

// Query runs a row read.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row read.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Mutate runs a row write.
func (c *Client) Mutate(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// Subscribe listens on a NOTIFY channel and invokes cb with each
// notification payload until the returned unsubscribe function is called.
// Connection drops are reconnected by the listener; notifications lost
// while disconnected are gone, matching the best-effort contract of the
// original realtime subscriptions.
func (c *Client) Subscribe(channel string, cb func(payload string)) (func(), error) {
	listener := pq.NewListener(c.dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("remote: listener event on %s: %v", channel, err)
			}
		})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n != nil {
					cb(n.Extra)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		if err := listener.Close(); err != nil {
			log.Printf("remote: closing listener on %s: %v", channel, err)
		}
	}, nil
}
