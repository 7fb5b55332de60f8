package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	at := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "2026_08_05.log"), fileName("logs", at, ".log", 0))
	assert.Equal(t, filepath.Join("logs", "2026_08_05-3.log"), fileName("logs", at, ".log", 3))
}

func TestSyncWriteAndLevelFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(LevelInfo, dir, ".log", 0))

	Debug("hidden %d", 1)
	Info("visible %s", "line")
	Close()

	name := fileName(dir, time.Now(), ".log", 0)
	data, err := os.ReadFile(name)
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "[info] : visible line")
}

func TestAsyncWriteFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(LevelDebug, dir, ".log", 128))

	for i := 0; i < 50; i++ {
		Debug("queued message %d", i)
	}
	Close()

	name := fileName(dir, time.Now(), ".log", 0)
	data, err := os.ReadFile(name)
	require.NoError(t, err)

	lines := strings.Count(string(data), "\n")
	assert.Equal(t, 50, lines)
	assert.Contains(t, string(data), "[debug]: queued message 49")
}
