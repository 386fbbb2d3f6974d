package memory

import (
	"context"
	"time"

	"github.com/rcliao/aide/internal/model"
)

// Stats summarizes the memory store. It is the payload of memory_stats and
// the stats command.
type Stats struct {
	Dir            string             `json:"dir"`
	SessionID      string             `json:"session_id"`
	State          string             `json:"state"`
	TotalEntries   int                `json:"total_entries"`
	LongTerm       int                `json:"long_term"`
	MaxFacts       int                `json:"max_facts"`
	DailyLogFiles  int                `json:"daily_log_files"`
	ByKind         map[model.Kind]int `json:"by_kind"`
	ShortTerm      int                `json:"short_term"`
	ShortTermMax   int                `json:"short_term_max"`
	Indexed        int                `json:"indexed"`
	SessionStarted *time.Time         `json:"session_started,omitempty"`
}

// Stats reads the store and reports counts. It has no side effects and
// works before Init.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &Stats{
		Dir:          m.cfg.Dir,
		SessionID:    m.sessionID,
		State:        m.state.String(),
		MaxFacts:     m.cfg.MaxFacts,
		ByKind:       map[model.Kind]int{},
		ShortTerm:    m.window.Len(),
		ShortTermMax: m.window.Capacity(),
	}
	for _, k := range model.Kinds {
		st.ByKind[k] = 0
	}

	entries, err := m.store.ReadAll()
	if err != nil {
		return nil, err
	}
	st.TotalEntries = len(entries)
	for _, e := range entries {
		st.ByKind[e.Kind]++
		if e.Kind != model.KindLog {
			st.LongTerm++
		}
	}

	files, err := m.store.DailyLogFiles()
	if err != nil {
		return nil, err
	}
	st.DailyLogFiles = len(files)

	if m.state == StateReady {
		if st.Indexed, err = m.index.Count(ctx); err != nil {
			return nil, err
		}
		started := m.startedAt
		st.SessionStarted = &started
	}
	return st, nil
}
