package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/aide/internal/model"
)

// ExportAll returns every entry ordered by creation time, optionally filtered
// by kind.
func (s *FileStore) ExportAll(kind model.Kind) ([]model.Entry, error) {
	entries, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Restore writes an exported entry back with its original id and
// timestamps. Logs land in the day file of their creation date. An id that
// already exists anywhere in the store is skipped and reported as false.
func (s *FileStore) Restore(e model.Entry) (*SaveResult, bool, error) {
	e.Content = strings.TrimSpace(e.Content)
	if e.Content == "" {
		return nil, false, ErrEmptyContent
	}
	kind, source, err := checkKindSource(e.Kind, e.Source)
	if err != nil {
		return nil, false, err
	}
	e.Kind, e.Source = kind, source
	e.Tags = model.NormalizeTags(e.Tags)

	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.Before(e.CreatedAt) {
		e.UpdatedAt = e.CreatedAt
	}
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()

	if e.ID == "" {
		e.ID = s.newID()
	} else if _, err := s.Get(e.ID); err == nil {
		return nil, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	res := &SaveResult{Entry: e}
	if e.Kind == model.KindLog {
		if err := s.writeLog(e, e.CreatedAt.In(now.Location())); err != nil {
			return nil, false, err
		}
		return res, true, nil
	}

	entries, err := s.readLongTerm()
	if err != nil {
		return nil, false, err
	}
	if err := s.commitLongTerm(append(entries, e), res); err != nil {
		return nil, false, fmt.Errorf("restore %s: %w", e.ID, err)
	}
	return res, true, nil
}
