// Package cli provides the interactive gophmedia command-line client.
//
// It wires configuration, the local resume journal, the transfer API client
// and a REPL. Uploads are sent in parallel chunks and resume after an
// interruption; remote fetches are queued on the server and can be watched
// live.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
