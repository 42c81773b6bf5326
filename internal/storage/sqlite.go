package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"myrss_bot/internal/model"
	"myrss_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// seenLimit bounds the watermark per subscription. Entries older than the
// newest seenLimit GUIDs age out; an item reappearing after that is
// re-delivered, an accepted tradeoff for bounded growth.
const seenLimit = 500

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertSubscription inserts a new subscription or, when one already
// exists for the same (chat, url), updates its schedule, filter, title
// and item cap in place. The existing watermark is never touched, so
// re-adding a URL does not replay old entries. On insert, the seed GUIDs
// become the initial watermark in the same transaction, so the
// subscription is never visible to a poll without it. Reports whether a
// new record was created.
func (s *SQLite) UpsertSubscription(ctx context.Context, sub *model.Subscription, seed []string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET title = ?, cron_expr = ?, filter_regex = ?, max_items = ?
		 WHERE chat_id = ? AND url = ?`,
		sub.Title, sub.CronExpr, sub.FilterRegex, sub.MaxItems, sub.ChatID, sub.URL,
	)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		row := tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM subscriptions WHERE chat_id = ? AND url = ?`,
			sub.ChatID, sub.URL,
		)
		var created string
		if err := row.Scan(&sub.ID, &created); err != nil {
			return false, fmt.Errorf("scan updated subscription: %w", err)
		}
		sub.CreatedAt, _ = time.Parse(timeLayout, created)
		return false, tx.Commit()
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions (chat_id, url, title, cron_expr, filter_regex, max_items, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ChatID, sub.URL, sub.Title, sub.CronExpr, sub.FilterRegex, sub.MaxItems, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)

	for _, guid := range seed {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO seen_entries (subscription_id, guid, seen_at) VALUES (?, ?, ?)`,
			id, guid, now,
		); err != nil {
			return false, fmt.Errorf("seed watermark: %w", err)
		}
	}

	return true, tx.Commit()
}

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, url, title, cron_expr, filter_regex, max_items, created_at
		 FROM subscriptions WHERE id = ?`, id,
	)
	return scanSubscription(row)
}

// ListSubscriptions returns all subscriptions in insertion order.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT id, chat_id, url, title, cron_expr, filter_regex, max_items, created_at
		 FROM subscriptions ORDER BY id`)
}

// ListByChat returns the chat's subscriptions in insertion order.
func (s *SQLite) ListByChat(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT id, chat_id, url, title, cron_expr, filter_regex, max_items, created_at
		 FROM subscriptions WHERE chat_id = ? ORDER BY id`, chatID)
}

func (s *SQLite) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription and its watermark.
func (s *SQLite) DeleteSubscription(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_entries WHERE subscription_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen_entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return tx.Commit()
}

// IsSeen checks whether an entry has already been delivered.
func (s *SQLite) IsSeen(ctx context.Context, subID int64, guid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_entries WHERE subscription_id = ? AND guid = ?`,
		subID, guid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// MarkSeen records a batch of delivered GUIDs and prunes the oldest
// records beyond the watermark bound.
func (s *SQLite) MarkSeen(ctx context.Context, subID int64, guids []string) error {
	if len(guids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, guid := range guids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO seen_entries (subscription_id, guid, seen_at) VALUES (?, ?, ?)`,
			subID, guid, now,
		); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seen_entries
		 WHERE subscription_id = ?
		   AND id NOT IN (SELECT id FROM seen_entries WHERE subscription_id = ? ORDER BY id DESC LIMIT ?)`,
		subID, subID, seenLimit,
	); err != nil {
		return fmt.Errorf("prune seen: %w", err)
	}

	return tx.Commit()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var created sql.NullString
	err := row.Scan(&sub.ID, &sub.ChatID, &sub.URL, &sub.Title, &sub.CronExpr,
		&sub.FilterRegex, &sub.MaxItems, &created)
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	if created.Valid {
		sub.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &sub, nil
}
