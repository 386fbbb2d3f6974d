package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/model"
)

const (
	// ContextOpen and ContextClose wrap the assembled block so prompt
	// assembly can find and strip it.
	ContextOpen  = "<memory-context>"
	ContextClose = "</memory-context>"

	contextHits      = 5
	contextLineRunes = 120
)

// BuildContext assembles the memory block for the next reasoning turn:
// relevant entries for query plus the short-term summary. It returns "" when
// there is nothing to inject. Search failures are logged and skipped.
func (m *Manager) BuildContext(ctx context.Context, query string) string {
	var results []model.SearchResult
	if strings.TrimSpace(query) != "" {
		var err error
		results, err = m.Search(ctx, query, contextHits)
		if err != nil {
			m.logger.Warn("context search failed", zap.Error(err))
			results = nil
		}
	}
	return AssembleContext(results, m.window.Summarize())
}

// AssembleContext formats search hits and a short-term summary into one
// delimited block. Both empty yields "".
func AssembleContext(results []model.SearchResult, summary string) string {
	summary = strings.TrimSpace(summary)
	if len(results) == 0 && summary == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(ContextOpen + "\n")
	if len(results) > 0 {
		sb.WriteString("## Relevant memories\n")
		for _, r := range results {
			sb.WriteString(formatHit(r.Entry) + "\n")
		}
	}
	if summary != "" {
		if len(results) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Recent conversation\n")
		sb.WriteString(summary + "\n")
	}
	sb.WriteString(ContextClose)
	return sb.String()
}

func formatHit(e model.Entry) string {
	first, _, _ := strings.Cut(strings.TrimSpace(e.Content), "\n")
	line := fmt.Sprintf("- [%s] %s", e.Kind, model.Truncate(strings.TrimSpace(first), contextLineRunes))
	if len(e.Tags) > 0 {
		line += " (tags: " + strings.Join(e.Tags, ", ") + ")"
	}
	return line
}
