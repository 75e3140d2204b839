package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

// Fetch queues a server-side download of a remote URL. "audio" as the second
// argument asks for the audio track only.
func (a *App) Fetch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: fetch <url> [audio]")
		return common.ErrorInvalidArgument
	}
	req := &api.EnqueueDownloadRequest{
		URL:         args[0],
		Owner:       a.config.Owner,
		Hint:        string(models.HintFull),
		Destination: api.Destination{Owner: a.config.Owner},
	}
	if len(args) > 1 {
		switch strings.ToLower(args[1]) {
		case "audio", strings.ToLower(string(models.HintAudioOnly)):
			req.Hint = string(models.HintAudioOnly)
		case "full":
		default:
			fmt.Fprintf(a.out, "Unknown hint %q\n", args[1])
			return common.ErrorInvalidArgument
		}
	}

	id, err := a.remote.EnqueueDownload(ctx, req)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}
	fmt.Fprintf(a.out, "Queued job %s\n", id)
	return nil
}

func (a *App) Job(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: job <job-id>")
		return common.ErrorInvalidArgument
	}
	j, err := a.remote.GetJob(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}

	fmt.Fprintf(a.out, "Job:     %s\n", j.ID)
	fmt.Fprintf(a.out, "URL:     %s\n", j.URL)
	fmt.Fprintf(a.out, "Status:  %s\n", j.Status)
	fmt.Fprintf(a.out, "Queued:  %s\n", j.QueuedAt.Format(time.RFC3339))
	if j.CatalogID != "" {
		fmt.Fprintf(a.out, "Catalog: %s (%s)\n", j.CatalogID, j.Title)
	}
	if j.Error != "" {
		fmt.Fprintf(a.out, "Error:   [%s] %s\n", j.ErrorKind, j.Error)
	}
	if p, err := a.remote.GetProgress(ctx, j.ID); err == nil {
		fmt.Fprintf(a.out, "Progress: %.1f%% %s\n", p.Percent, p.Message)
	}
	return nil
}

func (a *App) Jobs(ctx context.Context, args []string) error {
	owner := a.config.Owner
	if len(args) > 0 {
		owner = args[0]
	}
	jobs, err := a.remote.GetActiveJobs(ctx, owner)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(a.out, "No active jobs")
		return nil
	}
	for _, j := range jobs {
		fmt.Fprintf(a.out, "%s  %-8s  %s\n", j.ID, j.Status, j.URL)
	}
	return nil
}

func (a *App) CancelJob(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: canceljob <job-id>")
		return common.ErrorInvalidArgument
	}
	ok, err := a.remote.CancelJob(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}
	if !ok {
		fmt.Fprintf(a.out, "Job %s is already finished\n", args[0])
		return nil
	}
	fmt.Fprintf(a.out, "Job %s cancelled\n", args[0])
	return nil
}

// Watch follows the live progress of an upload session or download job until
// it reaches a terminal state.
func (a *App) Watch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: watch <id>")
		return common.ErrorInvalidArgument
	}
	id := args[0]

	stream, err := a.subscribe(ctx, id)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}

	bar := a.newPercentBar(id)
	for {
		p, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(a.out, "Error: %s\n", err)
			return err
		}

		if bar != nil {
			bar.Describe(fmt.Sprintf("%s %s", id, p.Status))
			_ = bar.Set(int(p.Percent))
		} else {
			fmt.Fprintf(a.out, "%s %5.1f%% %s\n", p.Status, p.Percent, formatETA(p))
		}

		if p.Terminal {
			if bar != nil {
				_ = bar.Finish()
			}
			if p.Message != "" {
				fmt.Fprintf(a.out, "%s: %s\n", p.Status, p.Message)
			}
			return nil
		}
	}
}

func formatETA(p *api.Progress) string {
	if p.Terminal || p.ETASeconds <= 0 {
		return ""
	}
	return "eta " + p.ETA().Round(time.Second).String()
}
