package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Upload(ctx context.Context, args []string) error
	Pending(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Cancel(ctx context.Context, args []string) error
	Fetch(ctx context.Context, args []string) error
	Job(ctx context.Context, args []string) error
	Jobs(ctx context.Context, args []string) error
	CancelJob(ctx context.Context, args []string) error
	Watch(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  upload <path> [category]   send a file, resuming an earlier attempt
  pending                    list interrupted uploads
  status <session-id>        show an upload session
  cancel <session-id>        cancel an upload session
  fetch <url> [hint]         queue a remote download
  job <job-id>               show a download job
  jobs [owner]               list queued and running downloads
  canceljob <job-id>         cancel a download job
  watch <id>                 follow live progress of an upload or download
  exit | quit`

// runREPL reads commands line by line from reader and dispatches them to a.
// The first token is the command and the rest are its arguments. It returns
// on EOF or when the user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers print their
// own errors, so one failed command does not end the session. Commands that
// prompt for more input read from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gm %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "upload", "up":
			_ = a.Upload(ctx, args)

		case "pending":
			_ = a.Pending(ctx, args)

		case "status":
			_ = a.Status(ctx, args)

		case "cancel":
			_ = a.Cancel(ctx, args)

		case "fetch":
			_ = a.Fetch(ctx, args)

		case "job":
			_ = a.Job(ctx, args)

		case "jobs":
			_ = a.Jobs(ctx, args)

		case "canceljob":
			_ = a.CancelJob(ctx, args)

		case "watch":
			_ = a.Watch(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
