// Package config handles configuration for the transfer server,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the gophmedia server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the gRPC endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps sessions, jobs and the
//     catalog in memory.
//   - StorageRoot / ScratchDir: final blob tree and per-transfer scratch space.
//   - Workers / TaskWorkers: download pool size and the pool running assembly
//     and delayed cleanups.
//   - CopyBufferSize / MaxChunkSize / MaxMessageSize: I/O and wire limits, bytes.
//   - MaxChunks: largest chunk count one upload session may declare.
//   - SmallTierMax / LargeTierMin: storage tier thresholds, bytes.
//   - JobRetention / SessionRetention / SessionIdleTimeout: how long records
//     outlive their terminal state, and when an idle upload is abandoned.
//   - ProgressGrace / ProgressBuffer: terminal snapshot lifetime and
//     per-subscriber buffer.
//   - SweepInterval: period of the retention sweeper.
//   - FetchTimeout: overall limit of one remote fetch.
//   - LogBackend / LogLevel: "slog" or "zap", and the minimum level.
//   - S3*: optional mirror of registered blobs. Empty S3Bucket disables it.
type Config struct {
	EndpointAddrGRPC string
	DatabaseDSN      string

	StorageRoot string
	ScratchDir  string

	Workers     int
	TaskWorkers int

	CopyBufferSize int
	MaxChunkSize   int64
	MaxChunks      int
	MaxMessageSize int
	SmallTierMax   int64
	LargeTierMin   int64

	JobRetention       time.Duration
	SessionRetention   time.Duration
	SessionIdleTimeout time.Duration
	ProgressGrace      time.Duration
	ProgressBuffer     int
	SweepInterval      time.Duration
	FetchTimeout       time.Duration

	LogBackend string
	LogLevel   string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.StorageRoot = "data/media"
	c.ScratchDir = "data/scratch"
	c.Workers = 4
	c.TaskWorkers = 2
	c.CopyBufferSize = 1 << 20
	c.MaxChunkSize = 64 << 20
	c.MaxChunks = 1 << 20
	c.MaxMessageSize = 96 << 20
	c.SmallTierMax = 16 << 20
	c.LargeTierMin = 1 << 30
	c.JobRetention = time.Hour
	c.SessionRetention = 10 * time.Minute
	c.SessionIdleTimeout = 24 * time.Hour
	c.ProgressGrace = 30 * time.Second
	c.ProgressBuffer = 16
	c.SweepInterval = time.Minute
	c.FetchTimeout = 30 * time.Minute
	c.LogBackend = "slog"
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
