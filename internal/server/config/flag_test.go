package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	defaults := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	full := defaults()
	full.EndpointAddrGRPC = "127.0.0.1:9090"
	full.DatabaseDSN = "db"
	full.StorageRoot = "/srv/media"
	full.ScratchDir = "/srv/scratch"
	full.Workers = 8
	full.TaskWorkers = 3
	full.MaxChunkSize = 1024
	full.JobRetention = 5 * time.Minute
	full.SessionIdleTimeout = 60 * time.Minute
	full.LogLevel = "debug"
	full.LogBackend = "zap"
	full.S3RootUser = "user"
	full.S3RootPassword = "password"
	full.S3Bucket = "bucket"
	full.S3Region = "us-west-1"
	full.S3BaseEndpoint = "http://endpoint"

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-d", "db", "-r", "/srv/media", "-s", "/srv/scratch",
			"-w", "8", "-k", "3", "-m", "1024", "-j", "5", "-i", "60", "-l", "debug", "-x", "zap",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
		}, expected: full},
		{name: "unknown flags are ignored", args: []string{"cmd", "-c", "cfg.json", "-z", "1"}, expected: defaults()},
		{name: "bad number panics", args: []string{"cmd", "-w", "many"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := defaults()

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
