package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, InitLogger("info", "json", "stdout", "")) })
}

func TestInitLoggerAppliesLevelAndFormat(t *testing.T) {
	resetLogger(t)

	require.NoError(t, InitLogger("debug", "text", "stdout", ""))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, GetLogger().Formatter)

	require.NoError(t, InitLogger("warn", "json", "stdout", ""))
	assert.Equal(t, logrus.WarnLevel, GetLogger().GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, GetLogger().Formatter)
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	err := InitLogger("chatty", "json", "stdout", "")
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeConfiguration))
}

func TestInitLoggerFileOutput(t *testing.T) {
	resetLogger(t)

	path := filepath.Join(t.TempDir(), "soroscan.log")
	require.NoError(t, InitLogger("info", "json", "file", path))

	Component("logging").Info("hello from the log file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the log file")
	assert.Contains(t, string(data), `"component":"logging"`)
}

func TestComponentTagsEntries(t *testing.T) {
	entry := Component("quota")
	assert.Equal(t, "quota", entry.Data["component"])
	assert.Same(t, GetLogger(), entry.Logger)
}
