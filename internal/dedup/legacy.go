package dedup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// LegacyImport reports the outcome of ImportLegacy.
type LegacyImport struct {
	Imported   int
	Skipped    int
	BackupPath string
}

// ImportLegacy loads a flat JSON object of processed ids ({"id": true, ...})
// as done records of showID. Entries set to false are skipped. On success the
// file is renamed with a .bak suffix so the import runs once. A missing file
// is not an error.
func (s *Store) ImportLegacy(ctx context.Context, path, showID string) (LegacyImport, error) {
	var result LegacyImport
	if strings.TrimSpace(showID) == "" {
		showID = LegacyShowID
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return result, storeErr("import legacy", Key{ShowID: showID}, err)
	}

	var processed map[string]bool
	if err := json.Unmarshal(data, &processed); err != nil {
		return result, storeErr("import legacy", Key{ShowID: showID}, fmt.Errorf("decode %s: %w", path, err))
	}
	ids := make([]string, 0, len(processed))
	for id := range processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := formatTime(s.now())
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		result.Imported, result.Skipped = 0, 0
		for _, id := range ids {
			if !processed[id] || strings.TrimSpace(id) == "" {
				result.Skipped++
				continue
			}
			res, err := tx.ExecContext(ctx, `INSERT INTO processed_items
                    (show_id, item_guid, status, attempt_count, episode_ref, created_at, updated_at)
                    VALUES (?, ?, 'done', 0, 'legacy-import', ?, ?)
                    ON CONFLICT (show_id, item_guid) DO NOTHING`,
				showID, id, now, now)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 1 {
				result.Imported++
			} else {
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return LegacyImport{}, storeErr("import legacy", Key{ShowID: showID}, err)
	}

	backup := path + ".bak"
	if err := os.Rename(path, backup); err != nil {
		return result, storeErr("import legacy", Key{ShowID: showID}, fmt.Errorf("rename %s: %w", path, err))
	}
	result.BackupPath = backup
	return result, nil
}
