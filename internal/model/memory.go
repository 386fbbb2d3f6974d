// Package model defines the core memory data types.
package model

import (
	"strings"
	"time"
)

// Kind classifies a memory entry.
type Kind string

const (
	KindFact       Kind = "fact"
	KindPreference Kind = "preference"
	KindDecision   Kind = "decision"
	KindSummary    Kind = "summary"
	KindLog        Kind = "log"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindFact, KindPreference, KindDecision, KindSummary, KindLog}

// ValidKinds are the allowed entry kinds.
var ValidKinds = map[Kind]bool{
	KindFact:       true,
	KindPreference: true,
	KindDecision:   true,
	KindSummary:    true,
	KindLog:        true,
}

// Source records who produced an entry.
type Source string

const (
	SourceUser   Source = "user"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
)

// ValidSources are the allowed entry sources.
var ValidSources = map[Source]bool{
	SourceUser:   true,
	SourceAgent:  true,
	SourceSystem: true,
}

// Entry is a single durable memory record.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    Source    `json:"source"`
}

// Role is the speaker of a short-term message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ValidRoles are the allowed message roles.
var ValidRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleSystem:    true,
	RoleTool:      true,
}

// Message is a transient conversational turn held in the short-term window.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchResult is a ranked hit from the full-text index.
type SearchResult struct {
	Entry   Entry   `json:"entry"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// NormalizeTags trims tags, drops empty ones and replaces commas, which
// separate tags on disk. Order and duplicates are kept.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", " "))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Truncate cuts s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
