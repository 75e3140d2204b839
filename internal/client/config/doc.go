// Package config loads runtime configuration for the gophmedia CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the transfer gRPC endpoint
//	-k int      chunk size in bytes
//	-n int      chunks uploaded in parallel
//	-j string   resume journal path
//	-o string   default owner
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "chunk_size": 8388608,
//	  "parallelism": 4,
//	  "journal_dsn": "gophmedia.db",
//	  "max_message_size": 100663296,
//	  "owner": "alice"
//	}
package config
