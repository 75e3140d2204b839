package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

var categories = []string{
	string(models.CategoryAudio),
	string(models.CategoryVideo),
	string(models.CategoryImage),
	string(models.CategoryDocument),
	string(models.CategoryOther),
}

// Upload sends a local file. Without an explicit category the server derives
// one from the content type.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: upload <path> [category]")
		return common.ErrorInvalidArgument
	}
	path := args[0]

	dest := api.Destination{Owner: a.config.Owner}
	if len(args) > 1 {
		c := models.Category(strings.ToLower(args[1]))
		if !c.Valid() {
			fmt.Fprintf(a.out, "Unknown category %q, expected one of %s\n", args[1], strings.Join(categories, ", "))
			return common.ErrorInvalidArgument
		}
		dest.Category = string(c)
	}

	title, err := GetSimpleText(a.reader, fmt.Sprintf("Title [%s]", filepath.Base(path)), a.out)
	if err != nil {
		return err
	}
	if title == "" {
		title = filepath.Base(path)
	}
	dest.Title = title

	dest.Visibility, err = GetChoice(a.reader, "Visibility", []string{"private", "public"}, "private", a.out)
	if err != nil {
		return err
	}

	dest.Description, err = GetMultiline(a.reader, "Description", a.out)
	if err != nil {
		return err
	}

	var bar interface{ Set64(int64) error }
	res, err := a.uploader.Upload(ctx, path, dest, func(done, total int64) {
		if bar == nil {
			if b := a.newByteBar(total, filepath.Base(path)); b != nil {
				bar = b
			}
		}
		if bar != nil {
			_ = bar.Set64(done)
		}
	})
	if err != nil {
		if res != nil {
			fmt.Fprintf(a.out, "Upload %s stopped: %s\n", res.SessionID, err)
			if !errors.Is(err, common.ErrorIntegrity) && !errors.Is(err, common.ErrorSizeMismatch) {
				fmt.Fprintln(a.out, "Run the same upload again to resume.")
			}
		} else {
			fmt.Fprintf(a.out, "Upload failed: %s\n", err)
		}
		return err
	}

	if res.Resumed {
		fmt.Fprintf(a.out, "Resumed session %s\n", res.SessionID)
	}
	fmt.Fprintf(a.out, "Uploaded %s as %s (%s)\n", path, res.CatalogID, res.Checksum)
	return nil
}

// Pending lists uploads recorded in the journal that have not been finalized.
func (a *App) Pending(ctx context.Context, _ []string) error {
	entries, err := a.journal.List(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No interrupted uploads")
		return nil
	}
	for _, e := range entries {
		status := "unknown"
		if s, err := a.remote.GetSession(ctx, e.SessionID); err == nil {
			status = fmt.Sprintf("%s %.1f%%", s.Status, s.Percent)
		} else if errors.Is(err, common.ErrorNotFound) {
			status = "expired"
		}
		fmt.Fprintf(a.out, "%s  %s  %s\n", e.SessionID, e.Path, status)
	}
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: status <session-id>")
		return common.ErrorInvalidArgument
	}
	s, err := a.remote.GetSession(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}

	fmt.Fprintf(a.out, "Session:  %s\n", s.ID)
	fmt.Fprintf(a.out, "File:     %s (%d bytes)\n", s.Filename, s.TotalSize)
	fmt.Fprintf(a.out, "Status:   %s\n", s.Status)
	fmt.Fprintf(a.out, "Chunks:   %d/%d (%.1f%%)\n", len(s.Received), s.TotalChunks, s.Percent)
	if s.Error != "" {
		fmt.Fprintf(a.out, "Error:    [%s] %s\n", s.ErrorKind, s.Error)
	}
	if s.Checksum != "" {
		fmt.Fprintf(a.out, "Checksum: %s\n", s.Checksum)
	}
	return nil
}

func (a *App) Cancel(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: cancel <session-id>")
		return common.ErrorInvalidArgument
	}
	ok, err := a.remote.CancelSession(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "Error: %s\n", err)
		return err
	}
	if !ok {
		fmt.Fprintf(a.out, "Session %s is already finished\n", args[0])
		return nil
	}
	fmt.Fprintf(a.out, "Session %s cancelled\n", args[0])
	return nil
}
