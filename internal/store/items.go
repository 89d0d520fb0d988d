package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pickboard/internal/ir"
)

// UpsertItem inserts an item or replaces its display key, flags and
// substitute name. The version is bumped on every write.
func (s *Store) UpsertItem(ctx context.Context, it ir.Item) error {
	if it.ID == "" || it.ListID == "" {
		return fmt.Errorf("upsert item: list_id and id are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items
		(list_id, id, display_key, pending, sent_for_procurement, substituted, picked, substitute_name, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(list_id, id) DO UPDATE SET
			display_key = excluded.display_key,
			pending = excluded.pending,
			sent_for_procurement = excluded.sent_for_procurement,
			substituted = excluded.substituted,
			picked = excluded.picked,
			substitute_name = excluded.substitute_name,
			version = items.version + 1
	`,
		it.ListID,
		it.ID,
		it.DisplayKey,
		it.Flags.Pending,
		it.Flags.InProcurement,
		it.Flags.Substituted,
		it.Flags.Picked,
		it.SubstituteName,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s/%s: %w", it.ListID, it.ID, err)
	}
	return nil
}

// ReadItem returns one item, or ErrNotFound.
func (s *Store) ReadItem(ctx context.Context, listID, itemID string) (ir.Item, error) {
	return readItem(ctx, s.db, listID, itemID)
}

// ListItems returns every item of a list ordered by id.
func (s *Store) ListItems(ctx context.Context, listID string) ([]ir.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_id, id, display_key, pending, sent_for_procurement, substituted, picked, substitute_name
		FROM items
		WHERE list_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", listID, err)
	}
	defer rows.Close()

	var items []ir.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items of %s: %w", listID, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items of %s: %w", listID, err)
	}
	return items, nil
}

// Lists returns the ids of every list that has items.
func (s *Store) Lists(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT list_id FROM items ORDER BY list_id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func readItem(ctx context.Context, q querier, listID, itemID string) (ir.Item, error) {
	row := q.QueryRowContext(ctx, `
		SELECT list_id, id, display_key, pending, sent_for_procurement, substituted, picked, substitute_name
		FROM items
		WHERE list_id = ? AND id = ?
	`, listID, itemID)

	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Item{}, fmt.Errorf("read item %s/%s: %w", listID, itemID, ErrNotFound)
	}
	if err != nil {
		return ir.Item{}, fmt.Errorf("read item %s/%s: %w", listID, itemID, err)
	}
	return it, nil
}

func scanItem(sc scanner) (ir.Item, error) {
	var it ir.Item
	err := sc.Scan(
		&it.ListID,
		&it.ID,
		&it.DisplayKey,
		&it.Flags.Pending,
		&it.Flags.InProcurement,
		&it.Flags.Substituted,
		&it.Flags.Picked,
		&it.SubstituteName,
	)
	return it, err
}
