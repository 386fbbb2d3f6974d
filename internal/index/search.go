package index

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/model"
)

const (
	defaultLimit = 10
	// FallbackScore is the neutral score given to substring matches.
	FallbackScore = 1.0

	snippetTokens   = 16
	snippetMaxRunes = 240
	fallbackSnippet = 160
)

var (
	// termRegex mirrors the unicode61 tokenizer: letters, numbers and
	// private-use runes form tokens, everything else separates them.
	termRegex = regexp.MustCompile(`[\p{L}\p{N}\p{Co}]+`)
	// syntaxChars spots FTS5 query syntax that the caller wants honored.
	// Bare upper-case AND/OR/NOT/NEAR are ordinary words unless one of these
	// is present too.
	syntaxChars = regexp.MustCompile(`["*()^]`)
)

// Terms tokenizes text the same way the index does.
func Terms(text string) []string {
	return termRegex.FindAllString(strings.ToLower(text), -1)
}

// matchExpression turns a user query into an FTS5 MATCH expression. Plain
// text becomes an OR of quoted terms; queries containing quotes, parentheses,
// `*` or `^` pass through untouched, boolean operators included.
func matchExpression(query string) string {
	if syntaxChars.MatchString(query) {
		return query
	}
	terms := Terms(query)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

// Search returns entries ranked by BM25 relevance, best first. An empty
// query or one with no indexable terms yields no results. If the query
// fails to parse, Search falls back to a case-insensitive substring scan.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	expr := matchExpression(query)
	if expr == "" {
		return nil, nil
	}

	results, err := ix.match(ctx, expr, limit)
	if err != nil {
		ix.logger.Debug("fts query failed, using substring fallback",
			zap.String("query", query), zap.Error(err))
		return ix.substring(ctx, query, limit)
	}
	return results, nil
}

func (ix *Index) match(ctx context.Context, expr string, limit int) ([]model.SearchResult, error) {
	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, kind, content, tags_json, source, created_at, updated_at,
		       bm25(entries_fts) AS score,
		       snippet(entries_fts, 2, '**', '**', '…', %d)
		FROM entries_fts
		WHERE entries_fts MATCH ?
		ORDER BY score, created_at, id
		LIMIT ?`, snippetTokens), expr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var score float64
		var snippet string
		e, err := scanEntry(rows, &score, &snippet)
		if err != nil {
			return nil, err
		}
		results = append(results, model.SearchResult{
			Entry:   e,
			Score:   -score,
			Snippet: model.Truncate(snippet, snippetMaxRunes),
		})
	}
	return results, rows.Err()
}

// substring scans every indexed entry for the query text with syntax
// characters removed.
func (ix *Index) substring(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	needle := strings.ToLower(strings.Join(strings.Fields(syntaxChars.ReplaceAllString(query, " ")), " "))
	if needle == "" {
		return nil, nil
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT id, kind, content, tags_json, source, created_at, updated_at
		FROM entries_fts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("substring search: %w", err)
		}
		if !strings.Contains(strings.ToLower(e.Content), needle) &&
			!strings.Contains(strings.ToLower(strings.Join(e.Tags, " ")), needle) {
			continue
		}
		results = append(results, model.SearchResult{
			Entry:   e,
			Score:   FallbackScore,
			Snippet: model.Truncate(e.Content, fallbackSnippet),
		})
		if len(results) == limit {
			break
		}
	}
	return results, rows.Err()
}
