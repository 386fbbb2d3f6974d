// Package index maintains a disposable SQLite FTS5 projection of the entry
// store for relevance-ranked search.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rcliao/aide/internal/model"
)

// FileName is the default index artifact name inside the storage dir.
const FileName = ".index.db"

// timeLayout is fixed width so stored timestamps sort lexically; search
// breaks score ties on created_at then id, both of which live in the files.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Index is a derived full-text index over memory entries. It can be deleted
// at any time; Rebuild reconstructs it from the entry store.
type Index struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// Open opens or creates the index at path. A corrupt artifact is removed and
// recreated.
func Open(path string, opts ...Option) (*Index, error) {
	ix := &Index{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ix)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		ix.logger.Warn("index unusable, recreating", zap.String("path", path), zap.Error(err))
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return nil, fmt.Errorf("remove index: %w", rmErr)
			}
		}
		if db, err = openDB(path); err != nil {
			return nil, err
		}
	}
	ix.db = db
	return ix, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// One connection keeps every statement on the same view of the table.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		id UNINDEXED,
		kind UNINDEXED,
		content,
		tags,
		tags_json UNINDEXED,
		source UNINDEXED,
		created_at UNINDEXED,
		updated_at UNINDEXED,
		tokenize = 'unicode61 remove_diacritics 2'
	);`)
	return err
}

// Path returns the index artifact path.
func (ix *Index) Path() string { return ix.path }

// Close closes the index.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Rebuild discards all index state and indexes entries from scratch.
func (ix *Index) Rebuild(ctx context.Context, entries []model.Entry) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries_fts`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	for _, e := range entries {
		if err := insert(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	ix.logger.Debug("index rebuilt", zap.Int("entries", len(entries)))
	return nil
}

// Upsert replaces any postings for e.ID with fresh ones.
func (ix *Index) Upsert(ctx context.Context, e model.Entry) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries_fts WHERE id = ?`, e.ID); err != nil {
		return fmt.Errorf("delete postings: %w", err)
	}
	if err := insert(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove deletes all postings for id.
func (ix *Index) Remove(ctx context.Context, id string) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM entries_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete postings: %w", err)
	}
	return nil
}

// Count returns the number of indexed entries.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries_fts`).Scan(&n)
	return n, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, e model.Entry) error {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	_, err := db.ExecContext(ctx,
		`INSERT INTO entries_fts (id, kind, content, tags, tags_json, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Content, strings.Join(tags, " "), string(tagsJSON), string(e.Source),
		e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("index entry %s: %w", e.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry reads the entry columns in table order.
func scanEntry(row scanner, extra ...any) (model.Entry, error) {
	var e model.Entry
	var kind, tagsJSON, source, createdAt, updatedAt string
	dest := append([]any{&e.ID, &kind, &e.Content, &tagsJSON, &source, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}
	e.Kind = model.Kind(kind)
	e.Source = model.Source(source)
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil || e.Tags == nil {
		e.Tags = []string{}
	}
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return e, nil
}
