package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/aide/internal/model"
	"github.com/rcliao/aide/internal/store"
)

// resetFlags restores every flag to its default; cobra keeps flag state
// between Execute calls in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	resetFlags(RootCmd)
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	require.NoError(t, RootCmd.Execute())
	return out.String()
}

func TestSaveGetSearchForget(t *testing.T) {
	t.Setenv("AIDE_CONFIG", "")
	dir := t.TempDir()

	out := runCLI(t, "", "-d", dir, "save", "--kind", "preference", "-t", "ui, theme", "Prefers", "dark", "mode")
	var res store.SaveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.KindPreference, res.Entry.Kind)
	assert.Equal(t, []string{"ui", "theme"}, res.Entry.Tags)
	assert.Equal(t, "Prefers dark mode", res.Entry.Content)
	assert.FileExists(t, filepath.Join(dir, store.LongTermFile))

	out = runCLI(t, "", "-d", dir, "get", res.Entry.ID)
	var got model.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, res.Entry.ID, got.ID)

	out = runCLI(t, "", "-d", dir, "search", "dark")
	var hits []model.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)

	out = runCLI(t, "", "-d", dir, "forget", res.Entry.ID)
	assert.Contains(t, out, `"ok":true`)

	out = runCLI(t, "", "-d", dir, "search", "dark")
	assert.Equal(t, "[]\n", out)
}

func TestSaveFromStdinAndList(t *testing.T) {
	t.Setenv("AIDE_CONFIG", "")
	dir := t.TempDir()

	runCLI(t, "Deployed to staging\n", "-d", dir, "save", "--kind", "log")
	runCLI(t, "", "-d", dir, "save", "Cat is named Miso")

	out := runCLI(t, "", "-d", dir, "list")
	var entries []model.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)

	out = runCLI(t, "", "-d", dir, "list", "--kind", "log", "--ids-only")
	assert.Len(t, strings.Fields(out), 1)

	files, err := os.ReadDir(filepath.Join(dir, store.LogDir))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestContextAndFlush(t *testing.T) {
	t.Setenv("AIDE_CONFIG", "")
	dir := t.TempDir()

	runCLI(t, "", "-d", dir, "save", "Dentist appointment Tuesday 3pm")

	out := runCLI(t, "", "-d", dir, "context", "-m", "user:when is the dentist?", "dentist")
	assert.Contains(t, out, "<memory-context>")
	assert.Contains(t, out, "Dentist appointment Tuesday 3pm")
	assert.Contains(t, out, "[user]: when is the dentist?")

	out = runCLI(t, "", "-d", dir, "flush", "Talked about the dentist")
	var e model.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &e))
	assert.Equal(t, model.KindLog, e.Kind)
	assert.Equal(t, "Talked about the dentist", e.Content)
}

func TestExportImportAndStats(t *testing.T) {
	t.Setenv("AIDE_CONFIG", "")
	src := t.TempDir()
	dst := t.TempDir()

	runCLI(t, "", "-d", src, "save", "--id", "lang", "Prefers Go")
	runCLI(t, "", "-d", src, "save", "--kind", "decision", "Use SQLite for the index")
	exported := runCLI(t, "", "-d", src, "export")

	out := runCLI(t, exported, "-d", dst, "import")
	assert.Contains(t, out, `"imported":2`)

	out = runCLI(t, "", "-d", dst, "reindex")
	assert.Contains(t, out, `"indexed":2`)

	out = runCLI(t, "", "-d", dst, "stats")
	var st struct {
		TotalEntries int `json:"total_entries"`
		LongTerm     int `json:"long_term"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.TotalEntries)
	assert.Equal(t, 2, st.LongTerm)
}
