package store

import (
	"errors"
	"fmt"
	"crypto/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/model"
)

const (
	// LongTermFile is the long-term partition file name.
	LongTermFile = "MEMORY.md"
	// LogDir is the daily-log partition directory name.
	LogDir = "memory"

	dayLayout = "2006-01-02"

	longTermHeader = "# Long-Term Memory\n\nFacts, preferences, decisions and summaries. Each entry ends with `" + blockTerminator + "`.\n\n"
)

// FileStore implements Store on plain markdown files.
//
// FileStore does not lock: callers serialize writes (memory.Manager holds one
// mutex across the store and the index).
type FileStore struct {
	dir      string
	maxFacts int
	now      func() time.Time
	logger   *zap.Logger
	entropy  *ulid.MonotonicEntropy
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides the wall clock. The clock's location decides which
// daily-log file a log entry lands in.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// WithLogger sets the logger used to report skipped blocks.
func WithLogger(l *zap.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore returns a store rooted at dir keeping at most maxFacts
// long-term entries. Nothing touches the disk until the first read or write.
func NewFileStore(dir string, maxFacts int, opts ...Option) *FileStore {
	s := &FileStore{
		dir:      dir,
		maxFacts: maxFacts,
		now:      time.Now,
		logger:   zap.NewNop(),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the base storage directory.
func (s *FileStore) Dir() string { return s.dir }

// LongTermPath returns the path of the long-term partition file.
func (s *FileStore) LongTermPath() string { return filepath.Join(s.dir, LongTermFile) }

// LogDirPath returns the directory holding daily-log files.
func (s *FileStore) LogDirPath() string { return filepath.Join(s.dir, LogDir) }

func (s *FileStore) logPath(t time.Time) string {
	return filepath.Join(s.LogDirPath(), t.Format(dayLayout)+".md")
}

func (s *FileStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// EnsureLayout creates the storage directories and the long-term file.
func (s *FileStore) EnsureLayout() error {
	if err := os.MkdirAll(s.LogDirPath(), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	_, err := os.Stat(s.LongTermPath())
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", LongTermFile, err)
	}
	return s.writeLongTerm(nil)
}

// ReadAll parses the long-term file, then every daily-log file in date order.
func (s *FileStore) ReadAll() ([]model.Entry, error) {
	entries, err := s.readLongTerm()
	if err != nil {
		return nil, err
	}
	logs, err := s.readLogs()
	if err != nil {
		return nil, err
	}
	return append(entries, logs...), nil
}

// Get finds an entry by id.
func (s *FileStore) Get(id string) (model.Entry, error) {
	entries, err := s.ReadAll()
	if err != nil {
		return model.Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return model.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save appends a log entry or upserts a long-term entry, then applies the
// long-term capacity policy.
func (s *FileStore) Save(p SaveParams) (*SaveResult, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	kind, source, err := checkKindSource(p.Kind, p.Source)
	if err != nil {
		return nil, err
	}
	tags := model.NormalizeTags(p.Tags)

	if kind == model.KindLog {
		return s.appendLog(p.ID, content, tags, source)
	}
	return s.upsert(p.ID, content, kind, tags, source)
}

// checkKindSource applies the kind and source defaults and validates both.
func checkKindSource(kind model.Kind, source model.Source) (model.Kind, model.Source, error) {
	if kind == "" {
		kind = model.KindFact
	}
	if !model.ValidKinds[kind] {
		return "", "", fmt.Errorf("%w %q", ErrInvalidKind, kind)
	}
	if source == "" {
		source = model.SourceAgent
	}
	if !model.ValidSources[source] {
		return "", "", fmt.Errorf("%w %q", ErrInvalidSource, source)
	}
	return kind, source, nil
}

func (s *FileStore) appendLog(id, content string, tags []string, source model.Source) (*SaveResult, error) {
	now := s.now()
	if id != "" {
		// Log entries are never updated; a colliding id gets a fresh one.
		if _, err := s.Get(id); err == nil {
			s.logger.Debug("log id already in use, minting a new one", zap.String("id", id))
			id = ""
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if id == "" {
		id = s.newID()
	}

	e := model.Entry{
		ID:        id,
		Kind:      model.KindLog,
		Content:   content,
		Tags:      tags,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Source:    source,
	}
	if err := s.writeLog(e, now); err != nil {
		return nil, err
	}
	return &SaveResult{Entry: e}, nil
}

// writeLog appends e to the daily-log file for day, adding the file header
// when the file is new.
func (s *FileStore) writeLog(e model.Entry, day time.Time) error {
	if err := os.MkdirAll(s.LogDirPath(), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	path := s.logPath(day)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log %s: %w", path, err)
	}
	var sb strings.Builder
	if info.Size() == 0 {
		sb.WriteString("# Daily Log " + day.Format(dayLayout) + "\n\n")
	}
	sb.WriteString(FormatEntry(e))
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("append log %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync log %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) upsert(id, content string, kind model.Kind, tags []string, source model.Source) (*SaveResult, error) {
	entries, err := s.readLongTerm()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	res := &SaveResult{}
	idx := -1
	if id != "" {
		for i := range entries {
			if entries[i].ID == id {
				idx = i
				break
			}
		}
	}

	if idx < 0 && id != "" {
		if err := s.checkLogID(id); err != nil {
			return nil, err
		}
	}

	if idx >= 0 {
		e := entries[idx]
		e.Content = content
		e.Kind = kind
		e.Tags = tags
		if now.After(e.UpdatedAt) {
			e.UpdatedAt = now
		}
		entries[idx] = e
		res.Entry = e
		res.Updated = true
	} else {
		if id == "" {
			id = s.newID()
		}
		e := model.Entry{
			ID:        id,
			Kind:      kind,
			Content:   content,
			Tags:      tags,
			CreatedAt: now,
			UpdatedAt: now,
			Source:    source,
		}
		entries = append(entries, e)
		res.Entry = e
	}

	if err := s.commitLongTerm(entries, res); err != nil {
		return nil, err
	}
	return res, nil
}

// checkLogID rejects an id already held by a daily-log entry, keeping ids
// unique across both partitions.
func (s *FileStore) checkLogID(id string) error {
	logs, err := s.readLogs()
	if err != nil {
		return err
	}
	for _, e := range logs {
		if e.ID == id {
			return fmt.Errorf("%w: %s", ErrIDInUse, id)
		}
	}
	return nil
}

// commitLongTerm orders the partition by UpdatedAt, trims it to maxFacts
// into res.Trimmed and writes it.
func (s *FileStore) commitLongTerm(entries []model.Entry, res *SaveResult) error {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	if s.maxFacts > 0 && len(entries) > s.maxFacts {
		cut := len(entries) - s.maxFacts
		res.Trimmed = append([]model.Entry(nil), entries[:cut]...)
		entries = entries[cut:]
		s.logger.Info("trimmed long-term memory",
			zap.Int("dropped", cut), zap.Int("max_facts", s.maxFacts))
	}
	return s.writeLongTerm(entries)
}

// Forget removes a long-term entry by id.
func (s *FileStore) Forget(id string) (bool, error) {
	entries, err := s.readLongTerm()
	if err != nil {
		return false, err
	}
	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if e.ID == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false, nil
	}
	if err := s.writeLongTerm(kept); err != nil {
		return false, err
	}
	return true, nil
}

// List returns entries newest first, optionally filtered by kind.
func (s *FileStore) List(p ListParams) ([]model.Entry, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if p.Kind != "" && e.Kind != p.Kind {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DailyLogFiles returns the daily-log file names in date order.
func (s *FileStore) DailyLogFiles() ([]string, error) {
	dirEntries, err := os.ReadDir(s.LogDirPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.LogDirPath(), err)
	}
	var names []string
	for _, d := range dirEntries {
		if d.IsDir() || filepath.Ext(d.Name()) != ".md" {
			continue
		}
		names = append(names, d.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) readLongTerm() ([]model.Entry, error) {
	return s.readFile(s.LongTermPath())
}

func (s *FileStore) readLogs() ([]model.Entry, error) {
	names, err := s.DailyLogFiles()
	if err != nil {
		return nil, err
	}
	var out []model.Entry
	for _, name := range names {
		entries, err := s.readFile(filepath.Join(s.LogDirPath(), name))
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (s *FileStore) readFile(path string) ([]model.Entry, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	entries, skipped := ParseEntries(string(b), s.now())
	if skipped > 0 {
		s.logger.Debug("skipped malformed memory blocks",
			zap.String("path", path), zap.Int("skipped", skipped))
	}
	return entries, nil
}

// writeLongTerm replaces the long-term file atomically via a temp file.
func (s *FileStore) writeLongTerm(entries []model.Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(longTermHeader)
	for _, e := range entries {
		sb.WriteString(FormatEntry(e))
	}

	path := s.LongTermPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename %s: %w", path, err)
	}
	return nil
}
