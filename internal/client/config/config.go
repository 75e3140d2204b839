package config

// Config holds runtime settings for the gophmedia CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the transfer gRPC endpoint.
//   - ChunkSize: bytes per uploaded chunk.
//   - Parallelism: chunks in flight at once.
//   - JournalDSN: sqlite file remembering which session belongs to which
//     local file, so an interrupted upload resumes.
//   - MaxMessageSize: gRPC message limit, must exceed ChunkSize plus framing.
//   - Owner: default owner for fetches and uploads.
type Config struct {
	ServerEndpointAddr string
	ChunkSize          int64
	Parallelism        int
	JournalDSN         string
	MaxMessageSize     int
	Owner              string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.ChunkSize = 8 << 20
	c.Parallelism = 4
	c.JournalDSN = "gophmedia.db"
	c.MaxMessageSize = 96 << 20
	c.Owner = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
