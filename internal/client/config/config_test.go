package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = append([]string{"cmd"}, args...)
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, int64(8<<20), c.ChunkSize)
	assert.Equal(t, 4, c.Parallelism)
	assert.Equal(t, "gophmedia.db", c.JournalDSN)
	assert.Equal(t, 96<<20, c.MaxMessageSize)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"-a", "127.0.0.1:9090", "-k", "1024", "-n", "2", "-j", "j.db", "-o", "alice"},
			expected: &Config{ServerEndpointAddr: "127.0.0.1:9090", ChunkSize: 1024, Parallelism: 2, JournalDSN: "j.db", Owner: "alice"}},
		{name: "bad parallelism", args: []string{"-n", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withArgs(t, tt.args...)
			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}

func TestParseJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_endpoint_addr":"media:50051","parallelism":8}`), 0o600))

	withArgs(t, "-c", path)
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, "media:50051", cfg.ServerEndpointAddr)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, int64(8<<20), cfg.ChunkSize)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	withArgs(t, "-config", bad)
	require.Panics(t, func() { parseJson(&Config{}) })
}
