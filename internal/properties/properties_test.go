package properties

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "rgb-14-v1", cfg.Pipeline.Order)
	assert.Equal(t, 13, cfg.Model.Channels)
	assert.Equal(t, 60*time.Second, cfg.Model.Timeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.Pipeline.ComputeIndices)

	rel, err := filepath.Rel(cfg.HTTP.ResultDir, cfg.HTTP.UploadDir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, ".."), "uploads %q must live outside results %q", cfg.HTTP.UploadDir, cfg.HTTP.ResultDir)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intellicrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  channel_order: indices-13-v1
  layout: nested
  target_mode: two-channel
model:
  backend: onnx
  path: /models/weeds.onnx
  timeout: 90s
http:
  allowed_origins: ["https://app.example.org"]
`), 0o644))

	t.Setenv("MODEL_TIMEOUT", "15")
	t.Setenv("PORT", "9000")
	t.Setenv("COMPUTE_INDICES", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "indices-13-v1", cfg.Pipeline.Order)
	assert.Equal(t, "nested", cfg.Pipeline.Layout)
	assert.Equal(t, "two-channel", cfg.Pipeline.Mode)
	assert.Equal(t, "onnx", cfg.Model.Backend)
	assert.Equal(t, "/models/weeds.onnx", cfg.Model.Path)
	assert.Equal(t, 15*time.Second, cfg.Model.Timeout)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.False(t, cfg.Pipeline.ComputeIndices)
	assert.Equal(t, []string{"https://app.example.org"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "png", cfg.Pipeline.Format)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MODEL_CHANNELS", "thirteen")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INTELLICROP_TEST_KEY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("INTELLICROP_TEST_KEY") })

	LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path)
	assert.Equal(t, "from-dotenv", os.Getenv("INTELLICROP_TEST_KEY"))
}
