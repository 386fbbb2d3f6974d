package store

import (
	"regexp"
	"strings"
	"time"

	"github.com/rcliao/aide/internal/model"
)

// blockTerminator closes every entry block. It is an HTML comment so the
// files still render as plain markdown.
const blockTerminator = "<!-- /entry -->"

const timeLayout = time.RFC3339Nano

var metaLineRegex = regexp.MustCompile(`^(id|type|tags|createdAt|updatedAt|source):\s*(.*)$`)

// FormatEntry renders an entry as a self-delimited block.
func FormatEntry(e model.Entry) string {
	var sb strings.Builder
	sb.WriteString("id: " + e.ID + "\n")
	sb.WriteString("type: " + string(e.Kind) + "\n")
	sb.WriteString(strings.TrimRight("tags: "+strings.Join(e.Tags, ", "), " ") + "\n")
	sb.WriteString("createdAt: " + e.CreatedAt.UTC().Format(timeLayout) + "\n")
	sb.WriteString("updatedAt: " + e.UpdatedAt.UTC().Format(timeLayout) + "\n")
	sb.WriteString("source: " + string(e.Source) + "\n")
	sb.WriteString("\n")
	for _, line := range strings.Split(strings.TrimSpace(e.Content), "\n") {
		sb.WriteString(escapeLine(line) + "\n")
	}
	sb.WriteString(blockTerminator + "\n\n")
	return sb.String()
}

// ParseEntries parses every well-formed block in text. now fills in missing
// timestamps. The second return value counts discarded blocks.
func ParseEntries(text string, now time.Time) ([]model.Entry, int) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var entries []model.Entry
	skipped := 0
	var block []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != blockTerminator {
			block = append(block, line)
			continue
		}
		if e, ok := parseBlock(block, now); ok {
			entries = append(entries, e)
		} else {
			skipped++
		}
		block = nil
	}
	// An unterminated tail is a partial write; drop it.
	if _, ok := parseBlock(block, now); ok {
		skipped++
	}
	return entries, skipped
}

func parseBlock(lines []string, now time.Time) (model.Entry, bool) {
	i := 0
	for i < len(lines) && !metaLineRegex.MatchString(strings.TrimSpace(lines[i])) {
		i++
	}
	if i == len(lines) {
		return model.Entry{}, false
	}

	meta := map[string]string{}
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			break
		}
		m := metaLineRegex.FindStringSubmatch(line)
		if m == nil {
			break
		}
		meta[m[1]] = strings.TrimSpace(m[2])
	}

	body := make([]string, 0, len(lines)-i)
	for _, line := range lines[i:] {
		body = append(body, unescapeLine(line))
	}

	e := model.Entry{
		ID:      meta["id"],
		Kind:    model.Kind(meta["type"]),
		Content: strings.TrimSpace(strings.Join(body, "\n")),
		Tags:    []string{},
		Source:  model.Source(meta["source"]),
	}
	if e.ID == "" || e.Content == "" {
		return model.Entry{}, false
	}
	if !model.ValidKinds[e.Kind] {
		e.Kind = model.KindFact
	}
	if !model.ValidSources[e.Source] {
		e.Source = model.SourceAgent
	}
	if raw := meta["tags"]; raw != "" {
		e.Tags = model.NormalizeTags(strings.Split(raw, ","))
	}
	e.CreatedAt = parseTime(meta["createdAt"], now)
	e.UpdatedAt = parseTime(meta["updatedAt"], now)
	return e, true
}

func parseTime(s string, fallback time.Time) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return fallback.UTC()
	}
	return t.UTC()
}

// escapeLine prefixes content lines that would otherwise read as a block
// terminator (optionally already backslash-escaped) with one more backslash.
func escapeLine(line string) string {
	if strings.TrimLeft(strings.TrimSpace(line), `\`) == blockTerminator {
		return `\` + line
	}
	return line
}

func unescapeLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, `\`) && strings.TrimLeft(trimmed, `\`) == blockTerminator {
		return strings.Replace(line, `\`, "", 1)
	}
	return line
}
