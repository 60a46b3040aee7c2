package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// RegulatoryItem is one piece of content extracted from a source.
type RegulatoryItem struct {
	ID            string     `db:"id" json:"id"`
	SourceID      string     `db:"source_id" json:"source_id"`
	Title         string     `db:"title" json:"title"`
	ContentHash   string     `db:"content_hash" json:"content_hash"`
	Body          string     `db:"body" json:"body,omitempty"`
	Severity      string     `db:"severity" json:"severity,omitempty"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	DiscoveredAt  time.Time  `db:"discovered_at" json:"discovered_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// InsertItemIfNew inserts a regulatory item unless a row with the same
// (source_id, content_hash) already exists, implementing the monitor's
// dedup contract at the store boundary so concurrent sweeps can't double
// insert. Returns true if a new row was inserted.
func (db *DB) InsertItemIfNew(ctx context.Context, item *RegulatoryItem) (bool, error) {
	query := `
		INSERT INTO regulatory_items (id, source_id, title, content_hash, body, severity, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id, content_hash) DO NOTHING
		RETURNING discovered_at, created_at
	`
	err := db.queryRowPool(ctx, query,
		item.ID, item.SourceID, item.Title, item.ContentHash, item.Body, item.Severity, item.PublishedAt,
	).Scan(&item.DiscoveredAt, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetRegulatoryItem retrieves a single item by id.
func (db *DB) GetRegulatoryItem(ctx context.Context, id string) (*RegulatoryItem, error) {
	query := `
		SELECT id, source_id, title, content_hash, body, severity, published_at, discovered_at, created_at
		FROM regulatory_items
		WHERE id = $1
	`
	var item RegulatoryItem
	err := db.queryRowPool(ctx, query, id).Scan(
		&item.ID, &item.SourceID, &item.Title, &item.ContentHash, &item.Body, &item.Severity,
		&item.PublishedAt, &item.DiscoveredAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListRecentItemsAll returns the most recently discovered items across
// every source, newest first.
func (db *DB) ListRecentItemsAll(ctx context.Context, limit int) ([]*RegulatoryItem, error) {
	query := `
		SELECT id, source_id, title, content_hash, body, severity, published_at, discovered_at, created_at
		FROM regulatory_items
		ORDER BY discovered_at DESC
		LIMIT $1
	`
	rows, err := db.queryPool(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*RegulatoryItem
	for rows.Next() {
		var item RegulatoryItem
		if err := rows.Scan(
			&item.ID, &item.SourceID, &item.Title, &item.ContentHash, &item.Body, &item.Severity,
			&item.PublishedAt, &item.DiscoveredAt, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// CountItemsForSource returns how many items a source has produced.
func (db *DB) CountItemsForSource(ctx context.Context, sourceID string) (int64, error) {
	var count int64
	err := db.queryRowPool(ctx, `SELECT COUNT(*) FROM regulatory_items WHERE source_id = $1`, sourceID).Scan(&count)
	return count, err
}

// ListRecentItems returns the most recently discovered items for a source,
// newest first.
func (db *DB) ListRecentItems(ctx context.Context, sourceID string, limit int) ([]*RegulatoryItem, error) {
	query := `
		SELECT id, source_id, title, content_hash, body, severity, published_at, discovered_at, created_at
		FROM regulatory_items
		WHERE source_id = $1
		ORDER BY discovered_at DESC
		LIMIT $2
	`
	rows, err := db.queryPool(ctx, query, sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*RegulatoryItem
	for rows.Next() {
		var item RegulatoryItem
		if err := rows.Scan(
			&item.ID, &item.SourceID, &item.Title, &item.ContentHash, &item.Body, &item.Severity,
			&item.PublishedAt, &item.DiscoveredAt, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}
