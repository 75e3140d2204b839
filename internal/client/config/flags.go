package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/gophmedia/internal/flagx"
)

func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.Int64Var(&cfg.ChunkSize, "k", cfg.ChunkSize, "chunk size (bytes)")
	fs.IntVar(&cfg.Parallelism, "n", cfg.Parallelism, "chunks uploaded in parallel")
	fs.StringVar(&cfg.JournalDSN, "j", cfg.JournalDSN, "resume journal (sqlite file)")
	fs.StringVar(&cfg.Owner, "o", cfg.Owner, "owner")

	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], flagx.Names(fs))

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
