// Package store provides durable, human-editable persistence for memory
// entries: a capped long-term partition (MEMORY.md) and append-only daily logs
// (memory/YYYY-MM-DD.md).
package store

import (
	"errors"

	"github.com/rcliao/aide/internal/model"
)

var (
	// ErrNotFound is returned when no entry has the requested id.
	ErrNotFound = errors.New("memory not found")
	// ErrEmptyContent is returned when a save carries no content.
	ErrEmptyContent = errors.New("content is required")
	// ErrInvalidKind is returned for a kind outside model.ValidKinds.
	ErrInvalidKind = errors.New("invalid kind")
	// ErrInvalidSource is returned for a source outside model.ValidSources.
	ErrInvalidSource = errors.New("invalid source")
	// ErrIDInUse is returned when a long-term save names the id of a
	// daily-log entry.
	ErrIDInUse = errors.New("id already used by a log entry")
)

// SaveParams holds parameters for storing an entry.
type SaveParams struct {
	ID      string // optional; upsert key for non-log kinds
	Content string
	Kind    model.Kind // defaults to fact
	Tags    []string
	Source  model.Source // defaults to agent
}

// SaveResult describes the outcome of a save.
type SaveResult struct {
	Entry model.Entry `json:"entry"`
	// Updated is true when an existing long-term entry was replaced.
	Updated bool `json:"updated"`
	// Trimmed holds long-term entries dropped by the capacity policy.
	Trimmed []model.Entry `json:"trimmed,omitempty"`
}

// ListParams holds parameters for listing entries.
type ListParams struct {
	Kind  model.Kind
	Limit int
}

// Store defines the entry persistence interface.
type Store interface {
	// ReadAll parses every persisted entry from both partitions.
	ReadAll() ([]model.Entry, error)

	// Get finds an entry by id. Returns ErrNotFound when absent.
	Get(id string) (model.Entry, error)

	// Save appends a log entry or upserts a long-term entry.
	Save(p SaveParams) (*SaveResult, error)

	// Forget removes a long-term entry. Reports whether anything was removed.
	Forget(id string) (bool, error)

	// List returns entries newest first.
	List(p ListParams) ([]model.Entry, error)
}
