package blackbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// tokenSlack keeps us from presenting a token that expires while the
// request is in flight.
const tokenSlack = 30 * time.Second

// APIToken is the cached server API token.
type APIToken struct {
	Token         string
	ValidUntilUTC time.Time
}

// Valid reports whether the token is safe to use.
func (t APIToken) Valid() bool {
	return time.Now().UTC().Add(tokenSlack).Before(t.ValidUntilUTC)
}

// ReadAPIToken returns the stored token, or nil when none is cached.
func ReadAPIToken(ctx context.Context, db *sql.DB) (*APIToken, error) {
	var (
		token APIToken
		until int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT token, valid_until_utc FROM api_token LIMIT 1`,
	).Scan(&token.Token, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading api token: %w", err)
	}
	token.ValidUntilUTC = time.Unix(until, 0).UTC()
	return &token, nil
}

// StoreAPIToken replaces the cached token. The table holds at most
// one row.
func StoreAPIToken(ctx context.Context, db *sql.DB, token APIToken) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storing api token: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_token`); err != nil {
		return fmt.Errorf("storing api token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO api_token (token, valid_until_utc) VALUES (?, ?)`,
		token.Token, token.ValidUntilUTC.UTC().Unix()); err != nil {
		return fmt.Errorf("storing api token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storing api token: %w", err)
	}
	return nil
}
