package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"repo-migrator/internal/pkg/config"
)

func TestInit_fileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "migrator.log")

	l, err := Init(&config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	l.Info("仓库迁移完成", zap.String("repo", "alpha"))
	Debug("debug line")
	GetWriter().Printf("slow sql %dms", 250)
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"repo":"alpha"`)
	assert.Contains(t, content, "debug line")
	assert.Contains(t, content, "slow sql 250ms")
	assert.Contains(t, content, "internal/pkg/logger/logger_test.go:")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
