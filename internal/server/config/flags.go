package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   storage root
//	-s string   scratch directory
//	-w int      download workers
//	-k int      task workers (assembly, cleanups)
//	-m int      max chunk size, bytes
//	-j int      job retention, minutes
//	-i int      idle upload session timeout, minutes
//	-l string   log level
//	-x string   log backend (slog, zap)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name, enables the mirror
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Duration flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageRoot, "r", config.StorageRoot, "storage root")
	fs.StringVar(&config.ScratchDir, "s", config.ScratchDir, "scratch directory")
	fs.IntVar(&config.Workers, "w", config.Workers, "download workers")
	fs.IntVar(&config.TaskWorkers, "k", config.TaskWorkers, "task workers")
	fs.Int64Var(&config.MaxChunkSize, "m", config.MaxChunkSize, "max chunk size (bytes)")

	jobRetention := fs.Int("j", int(config.JobRetention.Minutes()), "job retention (in minutes)")
	idleTimeout := fs.Int("i", int(config.SessionIdleTimeout.Minutes()), "idle session timeout (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogBackend, "x", config.LogBackend, "log backend")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], flagx.Names(fs))

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.JobRetention = time.Duration(*jobRetention) * time.Minute
	config.SessionIdleTimeout = time.Duration(*idleTimeout) * time.Minute
}
