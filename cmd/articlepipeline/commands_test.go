package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePipeline/internal/domain"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  level: error
pipeline:
  analyzer: ml
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPendingPrintsCounts(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "pending", "--config", path, "--owner", "alice")
	require.NoError(t, err)

	var counts domain.PendingCounts
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, domain.PendingCounts{}, counts)
}

func TestDecodeStreamsTerminalEvent(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "decode", "--config", path, "--owner", "alice")
	require.NoError(t, err)

	var event domain.Event
	require.NoError(t, json.Unmarshal(bytes.TrimSpace([]byte(out)), &event))
	assert.Equal(t, domain.EventComplete, event.Type)
	assert.Zero(t, event.Total)
}

func TestAnalyzeBatchOnEmptyStore(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "analyze", "--config", path, "--owner", "alice", "--limit", "5")
	require.NoError(t, err)

	var result domain.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Zero(t, result.Analyzed)
	assert.Zero(t, result.Remaining)
}

func TestOwnerFlagIsRequired(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "reset", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestMigrateWithoutDatabaseIsNoop(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "migrate", "--config", path)
	require.NoError(t, err)
}
