package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/aide/internal/model"
)

// tickingClock advances by step on every call so consecutive writes get
// distinct timestamps.
type tickingClock struct {
	t    time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestStore(t *testing.T, maxFacts int) (*FileStore, *tickingClock) {
	t.Helper()
	clock := &tickingClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local), step: time.Second}
	s := NewFileStore(t.TempDir(), maxFacts, WithClock(clock.Now))
	require.NoError(t, s.EnsureLayout())
	return s, clock
}

func TestEnsureLayoutCreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "mem")
	s := NewFileStore(dir, 10)
	require.NoError(t, s.EnsureLayout())

	b, err := os.ReadFile(filepath.Join(dir, LongTermFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "# Long-Term Memory"))

	info, err := os.Stat(filepath.Join(dir, LogDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// A second call leaves existing content alone.
	_, err = s.Save(SaveParams{Content: "keep me"})
	require.NoError(t, err)
	require.NoError(t, s.EnsureLayout())
	all, err := s.ReadAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReadAllMissingFiles(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nothing-here"), 10)
	entries, err := s.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveCreatesLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lazy")
	s := NewFileStore(dir, 10)

	res, err := s.Save(SaveParams{Content: "  likes green tea  ", Kind: model.KindPreference, Tags: []string{"drinks"}})
	require.NoError(t, err)
	assert.Equal(t, "likes green tea", res.Entry.Content)
	assert.Equal(t, model.SourceAgent, res.Entry.Source)
	assert.False(t, res.Updated)

	_, err = os.Stat(filepath.Join(dir, LongTermFile))
	assert.NoError(t, err)
}

func TestSaveDefaultsAndValidation(t *testing.T) {
	s, _ := newTestStore(t, 10)

	res, err := s.Save(SaveParams{Content: "plain"})
	require.NoError(t, err)
	assert.Equal(t, model.KindFact, res.Entry.Kind)
	assert.NotEmpty(t, res.Entry.ID)

	_, err = s.Save(SaveParams{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = s.Save(SaveParams{Content: "x", Kind: "rumor"})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = s.Save(SaveParams{Content: "x", Source: "robot"})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	s, _ := newTestStore(t, 10)

	first, err := s.Save(SaveParams{ID: "dentist", Content: "Dentist Tuesday", Tags: []string{"health"}})
	require.NoError(t, err)

	second, err := s.Save(SaveParams{ID: "dentist", Content: "Dentist Tuesday", Tags: []string{"health"}})
	require.NoError(t, err)
	assert.True(t, second.Updated)

	third, err := s.Save(SaveParams{ID: "dentist", Content: "Dentist Wednesday", Kind: model.KindDecision})
	require.NoError(t, err)

	all, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, "dentist", got.ID)
	assert.Equal(t, "Dentist Wednesday", got.Content)
	assert.Equal(t, model.KindDecision, got.Kind)
	assert.Empty(t, got.Tags)
	assert.True(t, got.CreatedAt.Equal(first.Entry.CreatedAt))
	assert.False(t, second.Entry.UpdatedAt.Before(first.Entry.UpdatedAt))
	assert.False(t, third.Entry.UpdatedAt.Before(second.Entry.UpdatedAt))
}

func TestUpsertUnknownIDCreates(t *testing.T) {
	s, _ := newTestStore(t, 10)

	res, err := s.Save(SaveParams{ID: "custom-id", Content: "new fact"})
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "custom-id", res.Entry.ID)

	got, err := s.Get("custom-id")
	require.NoError(t, err)
	assert.Equal(t, "new fact", got.Content)
}

func TestTrimKeepsNewest(t *testing.T) {
	const maxFacts = 5
	s, _ := newTestStore(t, maxFacts)

	var trimmed []model.Entry
	for i := 0; i < 8; i++ {
		res, err := s.Save(SaveParams{ID: fmt.Sprintf("fact-%d", i), Content: fmt.Sprintf("fact number %d", i)})
		require.NoError(t, err)
		trimmed = append(trimmed, res.Trimmed...)
	}

	all, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, maxFacts)
	for i, e := range all {
		assert.Equal(t, fmt.Sprintf("fact-%d", i+3), e.ID)
	}

	require.Len(t, trimmed, 3)
	assert.Equal(t, "fact-0", trimmed[0].ID)
	assert.Equal(t, "fact-2", trimmed[2].ID)
}

func TestTrimAfterUpdateKeepsTouchedEntry(t *testing.T) {
	s, _ := newTestStore(t, 3)

	for i := 0; i < 3; i++ {
		_, err := s.Save(SaveParams{ID: fmt.Sprintf("f%d", i), Content: "v1"})
		require.NoError(t, err)
	}
	// Touch the oldest, then push one more in: f1 is now the oldest.
	_, err := s.Save(SaveParams{ID: "f0", Content: "v2"})
	require.NoError(t, err)
	res, err := s.Save(SaveParams{ID: "f3", Content: "v1"})
	require.NoError(t, err)

	require.Len(t, res.Trimmed, 1)
	assert.Equal(t, "f1", res.Trimmed[0].ID)

	_, err = s.Get("f0")
	assert.NoError(t, err)
}

func TestLogsAccumulateAcrossDays(t *testing.T) {
	s, clock := newTestStore(t, 2)

	ids := map[string]bool{}
	for day := 0; day < 3; day++ {
		clock.t = time.Date(2026, 3, 2+day, 12, 0, 0, 0, time.Local)
		for i := 0; i < 2; i++ {
			res, err := s.Save(SaveParams{Content: fmt.Sprintf("day %d note %d", day, i), Kind: model.KindLog})
			require.NoError(t, err)
			ids[res.Entry.ID] = true
		}
	}
	// Logs do not count against the long-term cap.
	for i := 0; i < 4; i++ {
		_, err := s.Save(SaveParams{Content: fmt.Sprintf("fact %d", i)})
		require.NoError(t, err)
	}

	files, err := s.DailyLogFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-02.md", "2026-03-03.md", "2026-03-04.md"}, files)

	all, err := s.ReadAll()
	require.NoError(t, err)
	logs := 0
	for _, e := range all {
		if e.Kind == model.KindLog {
			logs++
			assert.True(t, ids[e.ID])
		}
	}
	assert.Equal(t, 6, logs)
	assert.Len(t, all, 8)
}

func TestLogIDCollisionGetsFreshID(t *testing.T) {
	s, _ := newTestStore(t, 10)

	_, err := s.Save(SaveParams{ID: "taken", Content: "a fact"})
	require.NoError(t, err)

	res, err := s.Save(SaveParams{ID: "taken", Content: "a log line", Kind: model.KindLog})
	require.NoError(t, err)
	assert.NotEqual(t, "taken", res.Entry.ID)

	res, err = s.Save(SaveParams{ID: "free", Content: "another log line", Kind: model.KindLog})
	require.NoError(t, err)
	assert.Equal(t, "free", res.Entry.ID)
}

func TestLongTermIDTakenByLogIsRejected(t *testing.T) {
	s, _ := newTestStore(t, 10)

	_, err := s.Save(SaveParams{ID: "shared", Content: "a log line", Kind: model.KindLog})
	require.NoError(t, err)

	_, err = s.Save(SaveParams{ID: "shared", Content: "a fact", Kind: model.KindFact})
	require.ErrorIs(t, err, ErrIDInUse)

	all, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.KindLog, all[0].Kind)
	assert.Equal(t, "a log line", all[0].Content)
}

func TestForget(t *testing.T) {
	s, _ := newTestStore(t, 10)

	_, err := s.Save(SaveParams{ID: "a", Content: "alpha"})
	require.NoError(t, err)
	logRes, err := s.Save(SaveParams{Content: "a log", Kind: model.KindLog})
	require.NoError(t, err)

	ok, err := s.Forget("a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Forget("a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Logs are not deletable.
	ok, err = s.Forget(logRes.Entry.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.KindLog, all[0].Kind)
}

func TestList(t *testing.T) {
	s, _ := newTestStore(t, 10)

	_, err := s.Save(SaveParams{Content: "old fact"})
	require.NoError(t, err)
	_, err = s.Save(SaveParams{Content: "a preference", Kind: model.KindPreference})
	require.NoError(t, err)
	_, err = s.Save(SaveParams{Content: "a log", Kind: model.KindLog})
	require.NoError(t, err)
	_, err = s.Save(SaveParams{Content: "new fact"})
	require.NoError(t, err)

	all, err := s.List(ListParams{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "new fact", all[0].Content)
	assert.Equal(t, "old fact", all[3].Content)

	facts, err := s.List(ListParams{Kind: model.KindFact, Limit: 1})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "new fact", facts[0].Content)
}

func TestHumanEditsSurviveAndMalformedSkipped(t *testing.T) {
	s, _ := newTestStore(t, 10)

	_, err := s.Save(SaveParams{ID: "ok", Content: "valid entry"})
	require.NoError(t, err)

	f, err := os.OpenFile(s.LongTermPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("Some notes typed by hand.\n\nid: no-content\ntype: fact\n\n" + blockTerminator + "\n" +
		"id: hand-written\n\nCall mom on Sundays\n" + blockTerminator + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "hand-written", all[1].ID)
	assert.Equal(t, model.KindFact, all[1].Kind)
	assert.Equal(t, model.SourceAgent, all[1].Source)
}

func TestExportAll(t *testing.T) {
	s, _ := newTestStore(t, 10)

	_, err := s.Save(SaveParams{Content: "first"})
	require.NoError(t, err)
	_, err = s.Save(SaveParams{Content: "second", Kind: model.KindLog})
	require.NoError(t, err)

	all, err := s.ExportAll("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Content)

	logs, err := s.ExportAll(model.KindLog)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestRestoreKeepsIdentityAndSkipsExisting(t *testing.T) {
	s, _ := newTestStore(t, 10)
	created := time.Date(2025, 12, 24, 18, 30, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	res, ok, err := s.Restore(model.Entry{
		ID: "old-log", Kind: model.KindLog, Content: "Wrapped presents",
		CreatedAt: created, UpdatedAt: created, Source: model.SourceUser,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old-log", res.Entry.ID)

	_, ok, err = s.Restore(model.Entry{
		ID: "tz", Kind: model.KindFact, Content: "Lives in Berlin",
		CreatedAt: created, UpdatedAt: updated,
	})
	require.NoError(t, err)
	require.True(t, ok)

	files, err := s.DailyLogFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{created.Local().Format("2006-01-02") + ".md"}, files)

	got, err := s.Get("tz")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(updated))
	assert.Equal(t, model.SourceAgent, got.Source)

	// Existing ids are left alone, whichever tier holds them.
	for _, id := range []string{"old-log", "tz"} {
		res, ok, err = s.Restore(model.Entry{ID: id, Kind: model.KindFact, Content: "replacement"})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, res)
	}
	all, err := s.ReadAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = s.Restore(model.Entry{Content: "  "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}
