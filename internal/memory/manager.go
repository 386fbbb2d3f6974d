// Package memory ties the entry store, the full-text index and the
// short-term window into one session-scoped memory handle.
package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/config"
	"github.com/rcliao/aide/internal/index"
	"github.com/rcliao/aide/internal/model"
	"github.com/rcliao/aide/internal/shortterm"
	"github.com/rcliao/aide/internal/store"
)

// ErrNotInitialized is returned by operations that need Init first.
var ErrNotInitialized = errors.New("memory not initialized")

// SessionSummaryTag marks log entries written by Flush.
const SessionSummaryTag = "session-summary"

const flushSnippetRunes = 200

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFlushing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Manager owns one memory session: the entry store, its derived index and
// the short-term window. One RWMutex covers the files and the index, so
// searches never observe a half-applied write.
type Manager struct {
	mu sync.RWMutex

	cfg     config.Config
	store   *store.FileStore
	index   *index.Index
	window  *shortterm.Window
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	state     State
	sessionID string
	startedAt time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger shared by the manager, store and index.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the wall clock for the manager and its store.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New builds a Manager from cfg. Call Init before use.
func New(cfg config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		metrics:   newMetrics(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("session", m.sessionID))
	m.store = store.NewFileStore(cfg.Dir, cfg.MaxFacts,
		store.WithClock(m.now),
		store.WithLogger(m.logger.Named("store")))
	m.window = shortterm.NewWindow(cfg.ShortTermMax)
	return m
}

// Init prepares storage and rebuilds the index from the entry store. It
// blocks until the rebuild completes and is a no-op once ready.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		return nil
	case StateClosed:
		return fmt.Errorf("init: %w: manager closed", ErrNotInitialized)
	}

	if err := m.store.EnsureLayout(); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	ix, err := index.Open(filepath.Join(m.cfg.Dir, index.FileName),
		index.WithLogger(m.logger.Named("index")))
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	m.index = ix
	if err := m.rebuildLocked(ctx); err != nil {
		ix.Close()
		m.index = nil
		return fmt.Errorf("init index: %w", err)
	}

	m.state = StateReady
	m.startedAt = m.now()
	m.logger.Info("memory ready", zap.String("dir", m.cfg.Dir))
	return nil
}

// Close releases the index. The manager cannot be reused afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return nil
	}
	m.state = StateClosed
	if m.index != nil {
		return m.index.Close()
	}
	return nil
}

// Dir returns the storage directory.
func (m *Manager) Dir() string { return m.cfg.Dir }

// SessionID returns the id of this session.
func (m *Manager) SessionID() string { return m.sessionID }

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Metrics returns the manager's collectors.
func (m *Manager) Metrics() *Metrics { return m.metrics }

func (m *Manager) checkReady() error {
	if m.state != StateReady {
		return fmt.Errorf("%w (state %s)", ErrNotInitialized, m.state)
	}
	return nil
}

// Save writes through the store and updates the index.
func (m *Manager) Save(ctx context.Context, p store.SaveParams) (*store.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	return m.saveLocked(ctx, p)
}

func (m *Manager) saveLocked(ctx context.Context, p store.SaveParams) (*store.SaveResult, error) {
	res, err := m.store.Save(p)
	if err != nil {
		return nil, err
	}
	if err := m.applyLocked(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// applyLocked mirrors a store write into the index and metrics.
func (m *Manager) applyLocked(ctx context.Context, res *store.SaveResult) error {
	if err := m.index.Upsert(ctx, res.Entry); err != nil {
		return fmt.Errorf("index entry: %w", err)
	}
	for _, e := range res.Trimmed {
		if err := m.index.Remove(ctx, e.ID); err != nil {
			return fmt.Errorf("unindex trimmed entry: %w", err)
		}
	}

	m.metrics.Saves.WithLabelValues(string(res.Entry.Kind)).Inc()
	m.metrics.Trimmed.Add(float64(len(res.Trimmed)))
	m.logger.Debug("saved memory",
		zap.String("id", res.Entry.ID),
		zap.String("kind", string(res.Entry.Kind)),
		zap.Bool("updated", res.Updated),
		zap.Int("trimmed", len(res.Trimmed)))
	return nil
}

// Forget removes a long-term entry and its postings.
func (m *Manager) Forget(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReady(); err != nil {
		return false, err
	}

	removed, err := m.store.Forget(id)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if err := m.index.Remove(ctx, id); err != nil {
		return true, fmt.Errorf("unindex entry: %w", err)
	}
	m.metrics.Forgets.Inc()
	m.logger.Debug("forgot memory", zap.String("id", id))
	return true, nil
}

// Get returns an entry by id.
func (m *Manager) Get(_ context.Context, id string) (model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkReady(); err != nil {
		return model.Entry{}, err
	}
	return m.store.Get(id)
}

// List returns recent entries, newest first.
func (m *Manager) List(_ context.Context, p store.ListParams) ([]model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	return m.store.List(p)
}

// Search runs a ranked full-text query.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	m.metrics.Searches.Inc()
	return m.index.Search(ctx, query, limit)
}

// Observe appends a conversation turn to the short-term window.
func (m *Manager) Observe(role model.Role, content string) {
	m.window.Append(model.Message{Role: role, Content: content, Timestamp: m.now()})
}

// ShortTerm returns a copy of the short-term window.
func (m *Manager) ShortTerm() []model.Message {
	return m.window.Snapshot()
}

// Flush writes the session summary as a log entry and clears the window.
// An empty summary is synthesized from the window.
func (m *Manager) Flush(ctx context.Context, summary string) (*model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReady(); err != nil {
		return nil, err
	}

	m.state = StateFlushing
	defer func() { m.state = StateReady }()

	if strings.TrimSpace(summary) == "" {
		summary = m.synthesizeSummary()
	}
	res, err := m.saveLocked(ctx, store.SaveParams{
		Content: summary,
		Kind:    model.KindLog,
		Tags:    []string{SessionSummaryTag, m.now().Format("2006-01-02")},
		Source:  model.SourceSystem,
	})
	if err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	turns := m.window.Len()
	m.window.Clear()
	m.metrics.Flushes.Inc()
	m.logger.Info("flushed session", zap.String("id", res.Entry.ID), zap.Int("turns", turns))
	return &res.Entry, nil
}

func (m *Manager) synthesizeSummary() string {
	n := m.window.Len()
	if n == 0 {
		return "Empty session (no turns)."
	}
	summary := fmt.Sprintf("Session with %d turns.", n)
	if last, ok := m.window.LastUserMessage(); ok {
		summary += " Last user message: " + model.Truncate(strings.TrimSpace(last.Content), flushSnippetRunes)
	}
	return summary
}

// Reindex rebuilds the index from the entry store.
func (m *Manager) Reindex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReady(); err != nil {
		return err
	}
	return m.rebuildLocked(ctx)
}

func (m *Manager) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	entries, err := m.store.ReadAll()
	if err != nil {
		return err
	}
	if err := m.index.Rebuild(ctx, entries); err != nil {
		return err
	}
	m.metrics.Rebuilds.Observe(time.Since(start).Seconds())
	m.logger.Debug("index rebuilt", zap.Int("entries", len(entries)), zap.Duration("took", time.Since(start)))
	return nil
}

// Export returns every entry, optionally of one kind.
func (m *Manager) Export(_ context.Context, kind model.Kind) ([]model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.ExportAll(kind)
}

// Import restores exported entries with their ids and timestamps. Entries
// whose id is already present are skipped, so importing twice is a no-op.
// It returns the number of entries written.
func (m *Manager) Import(ctx context.Context, entries []model.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReady(); err != nil {
		return 0, err
	}
	imported := 0
	for _, e := range entries {
		res, ok, err := m.store.Restore(e)
		if err != nil {
			return imported, fmt.Errorf("import %s: %w", e.ID, err)
		}
		if !ok {
			m.logger.Debug("skipped existing memory", zap.String("id", e.ID))
			continue
		}
		if err := m.applyLocked(ctx, res); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
