package dedup

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"feedcaster/internal/config"
	"feedcaster/internal/services"
)

// Store is the SQLite-backed ledger.
type Store struct {
	db          *sql.DB
	path        string
	maxAttempts int
	staleAfter  time.Duration
	now         func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAttempts caps how many failed attempts an item may accumulate.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithStaleAfter sets how old a claim must be before another run may take it over.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

const (
	defaultMaxAttempts = 3
	defaultStaleAfter  = 90 * time.Minute

	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open connects to the ledger configured in cfg, creating it when missing.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrStore, "ledger", "open", "ensure directories", err)
	}
	base := []Option{
		WithMaxAttempts(cfg.Pipeline.MaxAttempts),
		WithStaleAfter(cfg.StaleClaimThreshold()),
	}
	return OpenPath(cfg.Paths.LedgerPath, append(base, opts...)...)
}

// OpenPath opens the ledger database at path.
func OpenPath(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrStore, "ledger", "open", "ledger path is empty", nil)
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "ledger", "open", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStore, "ledger", "open", path, err)
	}

	store := &Store{
		db:          db,
		path:        path,
		maxAttempts: defaultMaxAttempts,
		staleAfter:  defaultStaleAfter,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStore, "ledger", "open", "init schema", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file backing the store.
func (s *Store) Path() string { return s.path }

// MaxAttempts returns the failed-attempt cap.
func (s *Store) MaxAttempts() int { return s.maxAttempts }

// StaleAfter returns the claim staleness threshold.
func (s *Store) StaleAfter() time.Duration { return s.staleAfter }

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// inTx runs fn inside a transaction, retrying the whole transaction while the
// database is busy.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func storeErr(op string, key Key, err error) error {
	detail := ""
	if key.ShowID != "" || key.GUID != "" {
		detail = key.String()
	}
	return services.Wrap(services.ErrStore, "ledger", op, detail, err)
}
