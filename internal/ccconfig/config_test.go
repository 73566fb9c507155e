package ccconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Trace)
	assert.False(t, cfg.NodeTrace)
	assert.True(t, cfg.TrackAllocations)
	assert.False(t, cfg.EnableLeakDetection)
	assert.Equal(t, 5*time.Minute, cfg.LeakThreshold)
}

func TestLoad_OverlaysOntoDefaults(t *testing.T) {
	cfg, err := Load(`
trace = true
enable_leak_detection = true
leak_threshold = "30s"
`)
	require.NoError(t, err)

	assert.True(t, cfg.Trace)
	assert.False(t, cfg.NodeTrace, "unset keys keep defaults")
	assert.True(t, cfg.TrackAllocations, "unset keys keep defaults")
	assert.True(t, cfg.EnableLeakDetection)
	assert.Equal(t, 30*time.Second, cfg.LeakThreshold)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(`leak_threshold = "soon"`)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cc.toml")
	require.NoError(t, os.WriteFile(path, []byte("node_trace = true\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.NodeTrace)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	assert.NotNil(t, Logger(nil))
	assert.NotNil(t, Logger(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.Trace = true
	assert.NotNil(t, Logger(cfg))
}
