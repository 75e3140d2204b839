package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophmedia/internal/flagx"
	"github.com/dmitrijs2005/gophmedia/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations accept both "30s"
// strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc"`
	DatabaseDSN        string         `json:"database_dsn"`
	StorageRoot        string         `json:"storage_root"`
	ScratchDir         string         `json:"scratch_dir"`
	Workers            int            `json:"workers"`
	TaskWorkers        int            `json:"task_workers"`
	CopyBufferSize     int            `json:"copy_buffer_size"`
	MaxChunkSize       int64          `json:"max_chunk_size"`
	MaxChunks          int            `json:"max_chunks"`
	MaxMessageSize     int            `json:"max_message_size"`
	SmallTierMax       int64          `json:"small_tier_max"`
	LargeTierMin       int64          `json:"large_tier_min"`
	JobRetention       timex.Duration `json:"job_retention"`
	SessionRetention   timex.Duration `json:"session_retention"`
	SessionIdleTimeout timex.Duration `json:"session_idle_timeout"`
	ProgressGrace      timex.Duration `json:"progress_grace"`
	ProgressBuffer     int            `json:"progress_buffer"`
	SweepInterval      timex.Duration `json:"sweep_interval"`
	FetchTimeout       timex.Duration `json:"fetch_timeout"`
	LogBackend         string         `json:"log_backend"`
	LogLevel           string         `json:"log_level"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:   c.EndpointAddrGRPC,
		DatabaseDSN:        c.DatabaseDSN,
		StorageRoot:        c.StorageRoot,
		ScratchDir:         c.ScratchDir,
		Workers:            c.Workers,
		TaskWorkers:        c.TaskWorkers,
		CopyBufferSize:     c.CopyBufferSize,
		MaxChunkSize:       c.MaxChunkSize,
		MaxChunks:          c.MaxChunks,
		MaxMessageSize:     c.MaxMessageSize,
		SmallTierMax:       c.SmallTierMax,
		LargeTierMin:       c.LargeTierMin,
		JobRetention:       timex.Duration{Duration: c.JobRetention},
		SessionRetention:   timex.Duration{Duration: c.SessionRetention},
		SessionIdleTimeout: timex.Duration{Duration: c.SessionIdleTimeout},
		ProgressGrace:      timex.Duration{Duration: c.ProgressGrace},
		ProgressBuffer:     c.ProgressBuffer,
		SweepInterval:      timex.Duration{Duration: c.SweepInterval},
		FetchTimeout:       timex.Duration{Duration: c.FetchTimeout},
		LogBackend:         c.LogBackend,
		LogLevel:           c.LogLevel,
		S3RootUser:         c.S3RootUser,
		S3RootPassword:     c.S3RootPassword,
		S3Bucket:           c.S3Bucket,
		S3Region:           c.S3Region,
		S3BaseEndpoint:     c.S3BaseEndpoint,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.DatabaseDSN = j.DatabaseDSN
	c.StorageRoot = j.StorageRoot
	c.ScratchDir = j.ScratchDir
	c.Workers = j.Workers
	c.TaskWorkers = j.TaskWorkers
	c.CopyBufferSize = j.CopyBufferSize
	c.MaxChunkSize = j.MaxChunkSize
	c.MaxChunks = j.MaxChunks
	c.MaxMessageSize = j.MaxMessageSize
	c.SmallTierMax = j.SmallTierMax
	c.LargeTierMin = j.LargeTierMin
	c.JobRetention = j.JobRetention.Duration
	c.SessionRetention = j.SessionRetention.Duration
	c.SessionIdleTimeout = j.SessionIdleTimeout.Duration
	c.ProgressGrace = j.ProgressGrace.Duration
	c.ProgressBuffer = j.ProgressBuffer
	c.SweepInterval = j.SweepInterval.Duration
	c.FetchTimeout = j.FetchTimeout.Duration
	c.LogBackend = j.LogBackend
	c.LogLevel = j.LogLevel
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
}

// parseJson overlays the JSON file named by -c or -config onto config. Keys
// absent from the file keep their current values. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}
