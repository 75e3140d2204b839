package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophmedia/internal/flagx"
)

type JsonConfig struct {
	ServerEndpointAddr string `json:"server_endpoint_addr"`
	ChunkSize          int64  `json:"chunk_size"`
	Parallelism        int    `json:"parallelism"`
	JournalDSN         string `json:"journal_dsn"`
	MaxMessageSize     int    `json:"max_message_size"`
	Owner              string `json:"owner"`
}

// parseJson overlays the file named by -c or -config. Keys absent from the
// file keep their current values. Read or decode errors panic.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := JsonConfig(*cfg)
	if err := json.Unmarshal(file, &c); err != nil {
		panic(err)
	}
	*cfg = Config(c)
}
