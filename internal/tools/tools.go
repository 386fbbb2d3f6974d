// Package tools exposes memory operations as named, schema-described tool
// calls for an agent's reasoning loop.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/memory"
	"github.com/rcliao/aide/internal/model"
	"github.com/rcliao/aide/internal/store"
)

// Tool names.
const (
	NameSave   = "memory_save"
	NameSearch = "memory_search"
	NameList   = "memory_list"
	NameForget = "memory_forget"
	NameStats  = "memory_stats"
)

// Memory is the subset of memory.Manager the tools call into.
type Memory interface {
	Save(ctx context.Context, p store.SaveParams) (*store.SaveResult, error)
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
	List(ctx context.Context, p store.ListParams) ([]model.Entry, error)
	Forget(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*memory.Stats, error)
}

// Definition describes one tool to the model.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// Result is the outcome of a tool call. Failures are reported here rather
// than returned as errors so the agent can read them.
type Result struct {
	OK    bool   `json:"ok"`
	Tool  string `json:"tool"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type handler func(ctx context.Context, raw json.RawMessage) (any, error)

type tool struct {
	def     Definition
	handler handler
}

// Surface dispatches tool calls to a Memory.
type Surface struct {
	mem    Memory
	tools  map[string]tool
	logger *zap.Logger
}

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the surface logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// New builds the tool surface over mem.
func New(mem Memory, opts ...Option) *Surface {
	s := &Surface{mem: mem, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.tools = map[string]tool{
		NameSave: {
			def: Definition{
				Name:        NameSave,
				Description: "Save a memory. Facts, preferences, decisions and summaries go to long-term memory (pass id to update one); logs go to today's daily log.",
				InputSchema: generateSchema[SaveInput](),
			},
			handler: s.save,
		},
		NameSearch: {
			def: Definition{
				Name:        NameSearch,
				Description: "Search all memories by relevance. Plain words match any term. A query containing quotes, parentheses, * or ^ is FTS5 syntax, where AND/OR/NOT are operators.",
				InputSchema: generateSchema[SearchInput](),
			},
			handler: s.search,
		},
		NameList: {
			def: Definition{
				Name:        NameList,
				Description: "List recent memories, newest first, optionally of one kind.",
				InputSchema: generateSchema[ListInput](),
			},
			handler: s.list,
		},
		NameForget: {
			def: Definition{
				Name:        NameForget,
				Description: "Delete a long-term memory by id. Daily-log entries cannot be forgotten.",
				InputSchema: generateSchema[ForgetInput](),
			},
			handler: s.forget,
		},
		NameStats: {
			def: Definition{
				Name:        NameStats,
				Description: "Report memory counts by kind, partition sizes and the short-term window.",
				InputSchema: generateSchema[StatsInput](),
			},
			handler: s.stats,
		},
	}
	return s
}

// Definitions returns every tool definition sorted by name.
func (s *Surface) Definitions() []Definition {
	defs := make([]Definition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Call runs the named tool with raw JSON arguments.
func (s *Surface) Call(ctx context.Context, name string, raw json.RawMessage) Result {
	t, ok := s.tools[name]
	if !ok {
		return Result{Tool: name, Error: fmt.Sprintf("unknown tool %q", name)}
	}
	data, err := t.handler(ctx, raw)
	if err != nil {
		s.logger.Debug("tool call failed", zap.String("tool", name), zap.Error(err))
		return Result{Tool: name, Error: err.Error()}
	}
	return Result{OK: true, Tool: name, Data: data}
}

func generateSchema[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// decode unmarshals raw into in and validates it. Empty input is treated
// as an empty object.
func decode(raw json.RawMessage, in any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return validateStruct(in)
}

func (s *Surface) save(ctx context.Context, raw json.RawMessage) (any, error) {
	var in SaveInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	res, err := s.mem.Save(ctx, store.SaveParams{
		ID:      in.ID,
		Content: in.Content,
		Kind:    model.Kind(in.Kind),
		Tags:    in.Tags,
		Source:  model.SourceAgent,
	})
	if err != nil {
		return nil, err
	}
	return SaveOutput{
		ID:      res.Entry.ID,
		Kind:    res.Entry.Kind,
		Updated: res.Updated,
		Trimmed: len(res.Trimmed),
	}, nil
}

func (s *Surface) search(ctx context.Context, raw json.RawMessage) (any, error) {
	var in SearchInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	results, err := s.mem.Search(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	return results, nil
}

func (s *Surface) list(ctx context.Context, raw json.RawMessage) (any, error) {
	var in ListInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	entries, err := s.mem.List(ctx, store.ListParams{Kind: model.Kind(in.Kind), Limit: in.Limit})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return entries, nil
}

func (s *Surface) forget(ctx context.Context, raw json.RawMessage) (any, error) {
	var in ForgetInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	removed, err := s.mem.Forget(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, in.ID)
	}
	return ForgetOutput{ID: in.ID, Removed: true}, nil
}

func (s *Surface) stats(ctx context.Context, raw json.RawMessage) (any, error) {
	var in StatsInput
	if err := decode(raw, &in); err != nil {
		return nil, err
	}
	return s.mem.Stats(ctx)
}
