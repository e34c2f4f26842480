package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotClaimed is returned when a transition targets a record the caller no
// longer holds, typically because another run took over a stale claim.
var ErrNotClaimed = errors.New("record is not claimed")

// claimSQL either inserts a fresh in_progress record or takes over an
// existing one that is eligible for another attempt:
//
//   - failed with attempts left
//   - uploaded with no live claim, which resumes at the feed step
//   - in_progress or uploaded whose claim is older than the stale cutoff;
//     the abandoned attempt counts against the budget
//
// Parameters: ?1 show, ?2 guid, ?3 now, ?4 max attempts, ?5 stale cutoff.
const claimSQL = `INSERT INTO processed_items
    (show_id, item_guid, status, attempt_count, claimed_at, created_at, updated_at)
    VALUES (?1, ?2, 'in_progress', 0, ?3, ?3, ?3)
    ON CONFLICT (show_id, item_guid) DO UPDATE SET
        status = CASE WHEN processed_items.status = 'uploaded' THEN 'uploaded' ELSE 'in_progress' END,
        attempt_count = processed_items.attempt_count +
            CASE WHEN processed_items.claimed_at IS NOT NULL THEN 1 ELSE 0 END,
        last_error_kind = CASE WHEN processed_items.claimed_at IS NOT NULL
            THEN 'stale_claim' ELSE processed_items.last_error_kind END,
        claimed_at = ?3,
        updated_at = ?3
    WHERE (processed_items.status IN ('failed', 'uploaded')
            AND processed_items.claimed_at IS NULL
            AND processed_items.attempt_count < ?4)
       OR (processed_items.status IN ('in_progress', 'uploaded')
            AND processed_items.claimed_at IS NOT NULL
            AND processed_items.claimed_at < ?5
            AND processed_items.attempt_count + 1 < ?4)`

// Claim atomically takes ownership of an item. It returns true when the
// caller now owns the item and must carry it to done or failed. A record that
// is done, exhausted, or held by a live claim yields false.
func (s *Store) Claim(ctx context.Context, key Key) (bool, error) {
	if strings.TrimSpace(key.ShowID) == "" || strings.TrimSpace(key.GUID) == "" {
		return false, storeErr("claim", key, errors.New("show id and guid are required"))
	}
	now := s.now()
	res, err := s.execWithRetry(ctx, claimSQL,
		key.ShowID,
		key.GUID,
		formatTime(now),
		s.maxAttempts,
		formatTime(now.Add(-s.staleAfter)),
	)
	if err != nil {
		return false, storeErr("claim", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("claim", key, err)
	}
	return n == 1, nil
}

// MarkUploaded records the published artifact of a claimed item. The claim is
// refreshed so a long feed update is not mistaken for a crash.
func (s *Store) MarkUploaded(ctx context.Context, key Key, artifact Artifact) error {
	if strings.TrimSpace(artifact.URI) == "" {
		return storeErr("mark uploaded", key, errors.New("artifact uri is required"))
	}
	now := formatTime(s.now())
	res, err := s.execWithRetry(ctx, `UPDATE processed_items SET
            status = 'uploaded',
            artifact_uri = ?,
            artifact_name = ?,
            artifact_bytes = ?,
            artifact_duration_ms = ?,
            claimed_at = ?,
            updated_at = ?
        WHERE show_id = ? AND item_guid = ? AND status IN ('in_progress', 'uploaded') AND claimed_at IS NOT NULL`,
		artifact.URI,
		nullString(artifact.Name),
		artifact.Bytes,
		artifact.Duration.Milliseconds(),
		now,
		now,
		key.ShowID,
		key.GUID,
	)
	return s.expectOne("mark uploaded", key, res, err)
}

// MarkDone finalizes a claimed item and records its episode in one transaction.
func (s *Store) MarkDone(ctx context.Context, key Key, episode Episode) error {
	if strings.TrimSpace(episode.URI) == "" {
		return storeErr("mark done", key, errors.New("episode uri is required"))
	}
	now := s.now()
	published := episode.PublishedAt
	if published.IsZero() {
		published = now
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE processed_items SET
                status = 'done',
                episode_ref = ?,
                last_error_kind = NULL,
                last_error = NULL,
                claimed_at = NULL,
                updated_at = ?
            WHERE show_id = ? AND item_guid = ? AND status IN ('in_progress', 'uploaded') AND claimed_at IS NOT NULL`,
			episode.URI, formatTime(now), key.ShowID, key.GUID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrNotClaimed
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO episodes
                (show_id, item_guid, title, uri, bytes, duration_ms, published_at)
                VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT (show_id, item_guid) DO NOTHING`,
			key.ShowID,
			key.GUID,
			episode.Title,
			episode.URI,
			episode.Bytes,
			episode.Duration.Milliseconds(),
			formatTime(published),
		)
		return err
	})
	if err != nil {
		return storeErr("mark done", key, err)
	}
	return nil
}

// MarkFailed releases a claim after a failed attempt. An uploaded record keeps
// its artifact and status so the next attempt skips straight to the feed.
func (s *Store) MarkFailed(ctx context.Context, key Key, kind, message string) error {
	if strings.TrimSpace(kind) == "" {
		kind = "unknown"
	}
	res, err := s.execWithRetry(ctx, `UPDATE processed_items SET
            status = CASE WHEN status = 'uploaded' THEN 'uploaded' ELSE 'failed' END,
            attempt_count = attempt_count + 1,
            last_error_kind = ?,
            last_error = ?,
            claimed_at = NULL,
            updated_at = ?
        WHERE show_id = ? AND item_guid = ? AND status IN ('in_progress', 'uploaded') AND claimed_at IS NOT NULL`,
		kind,
		nullString(truncateError(message)),
		formatTime(s.now()),
		key.ShowID,
		key.GUID,
	)
	return s.expectOne("mark failed", key, res, err)
}

// ReleaseClaim gives up a claim without charging an attempt. It is used when
// the failure lies with the show's configuration rather than the item.
func (s *Store) ReleaseClaim(ctx context.Context, key Key, kind, message string) error {
	if strings.TrimSpace(kind) == "" {
		kind = "unknown"
	}
	res, err := s.execWithRetry(ctx, `UPDATE processed_items SET
            status = CASE WHEN status = 'uploaded' THEN 'uploaded' ELSE 'failed' END,
            last_error_kind = ?,
            last_error = ?,
            claimed_at = NULL,
            updated_at = ?
        WHERE show_id = ? AND item_guid = ? AND status IN ('in_progress', 'uploaded') AND claimed_at IS NOT NULL`,
		kind,
		nullString(truncateError(message)),
		formatTime(s.now()),
		key.ShowID,
		key.GUID,
	)
	return s.expectOne("release claim", key, res, err)
}

// ReclaimStale releases claims of the show that are older than the stale
// threshold, counting each abandoned attempt as a failure. It returns the
// number of records released.
func (s *Store) ReclaimStale(ctx context.Context, showID string) (int64, error) {
	now := s.now()
	res, err := s.execWithRetry(ctx, `UPDATE processed_items SET
            status = CASE WHEN status = 'uploaded' THEN 'uploaded' ELSE 'failed' END,
            attempt_count = attempt_count + 1,
            last_error_kind = ?,
            last_error = 'claim abandoned by an interrupted run',
            claimed_at = NULL,
            updated_at = ?
        WHERE show_id = ? AND status IN ('in_progress', 'uploaded')
          AND claimed_at IS NOT NULL AND claimed_at < ?`,
		KindStaleClaim,
		formatTime(now),
		showID,
		formatTime(now.Add(-s.staleAfter)),
	)
	if err != nil {
		return 0, storeErr("reclaim stale", Key{ShowID: showID}, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("reclaim stale", Key{ShowID: showID}, err)
	}
	return n, nil
}

// RetryFailed resets the attempt budget of failed records, and of uploaded
// records waiting on the feed step, so the next run picks them up. With no
// guids every eligible record of the show is reset.
func (s *Store) RetryFailed(ctx context.Context, showID string, guids ...string) (int64, error) {
	query := `UPDATE processed_items SET attempt_count = 0, updated_at = ?
        WHERE show_id = ? AND status IN ('failed', 'uploaded') AND claimed_at IS NULL`
	args := []any{formatTime(s.now()), showID}
	if len(guids) > 0 {
		query += fmt.Sprintf(" AND item_guid IN (%s)", makePlaceholders(len(guids)))
		for _, guid := range guids {
			args = append(args, guid)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, storeErr("retry failed", Key{ShowID: showID}, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("retry failed", Key{ShowID: showID}, err)
	}
	return n, nil
}

func (s *Store) expectOne(op string, key Key, res sql.Result, err error) error {
	if err != nil {
		return storeErr(op, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, key, err)
	}
	if n != 1 {
		return storeErr(op, key, ErrNotClaimed)
	}
	return nil
}
