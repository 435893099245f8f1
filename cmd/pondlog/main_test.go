package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-pond/internal/config"
	"github.com/celerix-dev/celerix-pond/pkg/engine"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{AppID: "pond", Storage: engine.BackendFile, BackupDir: t.TempDir()}
}

func exec(t *testing.T, store *engine.MemStore, cfg *config.Config, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(&out, store, cfg, args))
	return out.String()
}

func TestRun_RecordListReportClear(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	cfg := testConfig(t)

	assert.Equal(t, "OK 1\n", exec(t, store, cfg, "record", "ada", "Run", "2", "<xml/>"))
	assert.Equal(t, "OK 2\n", exec(t, store, cfg, "RECORD", "ada", "Reset", "2"))

	list := exec(t, store, cfg, "LIST", "ada")
	assert.Contains(t, list, `"action": "Run"`)
	assert.Contains(t, list, `"payload": "<xml/>"`)
	assert.Contains(t, list, `"action": "Reset"`)

	html := exec(t, store, cfg, "REPORT", "ada")
	assert.Equal(t, 2, strings.Count(html, "<tr class="))

	assert.Equal(t, "OK\n", exec(t, store, cfg, "CLEAR", "ada"))
	val, err := store.Get("ada", "pond", "currentIndex")
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}

func TestRun_RawStoreCommands(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	cfg := testConfig(t)

	assert.Equal(t, "OK\n", exec(t, store, cfg, "SET", "p1", "a1", "k1", `{"n":1}`))
	assert.JSONEq(t, `{"n":1}`, exec(t, store, cfg, "GET", "p1", "a1", "k1"))
	assert.JSONEq(t, `["p1"]`, exec(t, store, cfg, "LIST_PERSONAS"))
	assert.JSONEq(t, `["a1"]`, exec(t, store, cfg, "LIST_APPS", "p1"))
	assert.JSONEq(t, `{"k1":{"n":1}}`, exec(t, store, cfg, "DUMP", "p1", "a1"))
	assert.Equal(t, "OK\n", exec(t, store, cfg, "DEL", "p1", "a1", "k1"))
	assert.Equal(t, "PONG\n", exec(t, store, cfg, "PING"))
}

func TestRun_Backup(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	cfg := testConfig(t)
	exec(t, store, cfg, "RECORD", "ada", "Help", "1")

	out := exec(t, store, cfg, "BACKUP")
	assert.Contains(t, out, cfg.BackupDir)
	assert.Contains(t, out, "(2 keys)")
}

func TestRun_Usage(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	cfg := testConfig(t)
	var out bytes.Buffer

	assert.ErrorIs(t, run(&out, store, cfg, []string{"GET", "p1"}), errUsage)
	assert.ErrorIs(t, run(&out, store, cfg, []string{"FLY"}), errUsage)
	assert.ErrorIs(t, run(&out, store, cfg, []string{"RECORD", "ada"}), errUsage)
}
