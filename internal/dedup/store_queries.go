package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

const recordColumns = `show_id, item_guid, status, attempt_count, last_error_kind, last_error, claimed_at,
    episode_ref, artifact_uri, artifact_name, artifact_bytes, artifact_duration_ms, created_at, updated_at`

// Get returns the processing record for key, or nil when the item was never claimed.
func (s *Store) Get(ctx context.Context, key Key) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+`
        FROM processed_items WHERE show_id = ? AND item_guid = ?`, key.ShowID, key.GUID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	return &rec, nil
}

// List returns processing records, newest update first. An empty showID
// lists every show; statuses filter when given.
func (s *Store) List(ctx context.Context, showID string, statuses ...Status) ([]Record, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + recordColumns + ` FROM processed_items WHERE 1 = 1`
	var args []any
	if showID != "" {
		query += " AND show_id = ?"
		args = append(args, showID)
	}
	if len(statuses) > 0 {
		query += fmt.Sprintf(" AND status IN (%s)", makePlaceholders(len(statuses)))
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY updated_at DESC, item_guid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list", Key{ShowID: showID}, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("list", Key{ShowID: showID}, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", Key{ShowID: showID}, err)
	}
	return records, nil
}

// Episodes returns the published episodes of a show, newest first.
func (s *Store) Episodes(ctx context.Context, showID string) ([]Episode, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT show_id, item_guid, title, uri, bytes, duration_ms, published_at
        FROM episodes WHERE show_id = ? ORDER BY published_at DESC, item_guid ASC`, showID)
	if err != nil {
		return nil, storeErr("episodes", Key{ShowID: showID}, err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			ep          Episode
			durationMS  int64
			publishedAt string
		)
		if err := rows.Scan(&ep.ShowID, &ep.GUID, &ep.Title, &ep.URI, &ep.Bytes, &durationMS, &publishedAt); err != nil {
			return nil, storeErr("episodes", Key{ShowID: showID}, err)
		}
		ep.Duration = time.Duration(durationMS) * time.Millisecond
		ep.PublishedAt = parseTime(publishedAt)
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("episodes", Key{ShowID: showID}, err)
	}
	return episodes, nil
}

// Stats summarizes every show present in the ledger, ordered by show id.
func (s *Store) Stats(ctx context.Context) ([]ShowStats, error) {
	ctx = ensureContext(ctx)
	byShow := map[string]*ShowStats{}
	get := func(id string) *ShowStats {
		st, ok := byShow[id]
		if !ok {
			st = &ShowStats{ShowID: id, Counts: map[Status]int{}}
			byShow[id] = st
		}
		return st
	}

	if err := s.eachRow(ctx, `SELECT show_id, COUNT(1) FROM items GROUP BY show_id`, func(rows *sql.Rows) error {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		get(id).Discovered = n
		return nil
	}); err != nil {
		return nil, storeErr("stats", Key{}, err)
	}

	if err := s.eachRow(ctx, `SELECT show_id, status, COUNT(1),
            SUM(CASE WHEN status <> 'done' AND attempt_count >= ? THEN 1 ELSE 0 END)
        FROM processed_items GROUP BY show_id, status`, func(rows *sql.Rows) error {
		var id, status string
		var n, exhausted int
		if err := rows.Scan(&id, &status, &n, &exhausted); err != nil {
			return err
		}
		st := get(id)
		st.Counts[Status(status)] = n
		st.Exhausted += exhausted
		return nil
	}, s.maxAttempts); err != nil {
		return nil, storeErr("stats", Key{}, err)
	}

	if err := s.eachRow(ctx, `SELECT show_id, COUNT(1) FROM episodes GROUP BY show_id`, func(rows *sql.Rows) error {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		get(id).Episodes = n
		return nil
	}); err != nil {
		return nil, storeErr("stats", Key{}, err)
	}

	out := make([]ShowStats, 0, len(byShow))
	for _, st := range byShow {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShowID < out[j].ShowID })
	return out, nil
}

func (s *Store) eachRow(ctx context.Context, query string, fn func(*sql.Rows) error, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec        Record
		status     string
		errKind    sql.NullString
		errMsg     sql.NullString
		claimedAt  sql.NullString
		episodeRef sql.NullString
		uri        sql.NullString
		name       sql.NullString
		bytes      sql.NullInt64
		durationMS sql.NullInt64
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(
		&rec.ShowID,
		&rec.GUID,
		&status,
		&rec.AttemptCount,
		&errKind,
		&errMsg,
		&claimedAt,
		&episodeRef,
		&uri,
		&name,
		&bytes,
		&durationMS,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.LastErrorKind = errKind.String
	rec.LastError = errMsg.String
	rec.ClaimedAt = parseNullTime(claimedAt)
	rec.EpisodeRef = episodeRef.String
	if uri.Valid && uri.String != "" {
		rec.Artifact = &Artifact{
			URI:      uri.String,
			Name:     name.String,
			Bytes:    bytes.Int64,
			Duration: time.Duration(durationMS.Int64) * time.Millisecond,
		}
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}
