package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/autom8ter/pathfinder/logging"
)

func TestParseLevel(t *testing.T) {
	l, err := logging.ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, l)
	l, err = logging.ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, l)
	_, err = logging.ParseLevel("loud")
	require.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := logging.New(logging.Options{Level: "info", Output: buf}, zap.String("service", "pathfinder"))
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("route added", zap.Uint32("from", 1))
	require.NoError(t, logger.Sync())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "route added", line["msg"])
	require.Equal(t, "info", line["level"])
	require.Equal(t, "pathfinder", line["service"])
	require.Equal(t, float64(1), line["from"])
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pathfinder.log")
	logger, err := logging.New(logging.Options{File: path, Output: &bytes.Buffer{}, MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Warn("to file")
	require.NoError(t, logger.Sync())
	bits, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(bits), `"msg":"to file"`)
}
