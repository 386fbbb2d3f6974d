package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/aide/internal/config"
	"github.com/rcliao/aide/internal/memory"
	"github.com/rcliao/aide/internal/model"
	"github.com/rcliao/aide/internal/tools"
)

func newTestServer(t *testing.T) (http.Handler, *memory.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	m := memory.New(cfg)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { m.Close() })
	return New(m, nil).Handler(), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, m := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, m.SessionID(), body["session"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestToolRoutes(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.Len(t, defs, 5)

	rec = do(t, h, http.MethodPost, "/tools/"+tools.NameSave, `{"content":"Sister's birthday is June 3"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/tools/"+tools.NameSearch, `{"query":"birthday"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		OK   bool                 `json:"ok"`
		Data []model.SearchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.OK)
	require.Len(t, res.Data, 1)
	assert.Contains(t, res.Data[0].Snippet, "**birthday**")

	rec = do(t, h, http.MethodPost, "/tools/memory_nope", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown tool")
}

func TestMessagesContextAndFlush(t *testing.T) {
	h, m := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/messages", `{"role":"user","content":"Book the dentist"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, h, http.MethodPost, "/messages", `{"role":"robot","content":"beep"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/context", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), memory.ContextOpen)
	assert.Contains(t, rec.Body.String(), "[user]: Book the dentist")

	rec = do(t, h, http.MethodPost, "/flush", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entry model.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, model.KindLog, entry.Kind)
	assert.Contains(t, entry.Content, "Book the dentist")
	assert.Empty(t, m.ShortTerm())

	rec = do(t, h, http.MethodPost, "/flush", `{"summary":"Wrapped up"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "Wrapped up", entry.Content)

	rec = do(t, h, http.MethodGet, "/context?q=dentist", "")
	assert.Contains(t, rec.Body.String(), "## Relevant memories")
}

func TestStatsAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/tools/"+tools.NameSave, `{"content":"x marks"}`).Code)

	rec := do(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st memory.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.TotalEntries)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aide_memory_saves_total{kind="fact"} 1`)
}

func TestFlushAfterClose(t *testing.T) {
	h, m := newTestServer(t)
	require.NoError(t, m.Close())

	rec := do(t, h, http.MethodPost, "/flush", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
