package dedup

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const itemColumns = "i.show_id, i.item_guid, i.title, i.source_url, i.feed_title, i.summary, i.article_text, i.published_at, i.discovered_at"

// Discover records newly seen feed items. Items already known to the ledger
// are left untouched. It returns how many items were new.
func (s *Store) Discover(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := formatTime(s.now())
	added := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		added = 0
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO items
            (show_id, item_guid, title, source_url, feed_title, summary, article_text, published_at, discovered_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (show_id, item_guid) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, item := range items {
			if strings.TrimSpace(item.ShowID) == "" || strings.TrimSpace(item.GUID) == "" {
				return errors.New("item requires show id and guid")
			}
			published := item.PublishedAt
			if published.IsZero() {
				published = s.now()
			}
			res, err := stmt.ExecContext(ctx,
				item.ShowID,
				item.GUID,
				item.Title,
				item.SourceURL,
				item.FeedTitle,
				item.Summary,
				item.ArticleText,
				formatTime(published),
				now,
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeErr("discover", Key{ShowID: items[0].ShowID}, err)
	}
	return added, nil
}

// ListPending returns the show's discovered items that are not done, oldest
// publication first. Ties are broken by guid so the order is stable.
func (s *Store) ListPending(ctx context.Context, showID string) ([]Item, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+`
        FROM items i
        LEFT JOIN processed_items p ON p.show_id = i.show_id AND p.item_guid = i.item_guid
        WHERE i.show_id = ? AND (p.status IS NULL OR p.status <> 'done')
        ORDER BY i.published_at ASC, i.item_guid ASC`, showID)
	if err != nil {
		return nil, storeErr("list pending", Key{ShowID: showID}, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("list pending", Key{ShowID: showID}, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list pending", Key{ShowID: showID}, err)
	}
	return items, nil
}

// GetItem fetches a discovered item. It returns nil when the item is unknown.
func (s *Store) GetItem(ctx context.Context, key Key) (*Item, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+`
        FROM items i WHERE i.show_id = ? AND i.item_guid = ?`, key.ShowID, key.GUID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get item", key, err)
	}
	return &item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (Item, error) {
	var (
		item         Item
		publishedAt  string
		discoveredAt string
	)
	if err := row.Scan(
		&item.ShowID,
		&item.GUID,
		&item.Title,
		&item.SourceURL,
		&item.FeedTitle,
		&item.Summary,
		&item.ArticleText,
		&publishedAt,
		&discoveredAt,
	); err != nil {
		return Item{}, err
	}
	item.PublishedAt = parseTime(publishedAt)
	item.DiscoveredAt = parseTime(discoveredAt)
	return item, nil
}
