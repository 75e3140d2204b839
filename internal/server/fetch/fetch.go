// Package fetch downloads remote media into a scratch directory.
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophmedia/internal/filex"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/netx"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

const payloadName = "payload"

// Result describes a fetched payload on local disk.
type Result struct {
	Path        string
	Title       string
	ContentType string
	Size        int64
}

// ProgressFunc receives bytes received so far and the expected total, which is
// -1 when the server did not announce a length.
type ProgressFunc func(done, total int64)

type HTTPFetcher struct {
	client  *http.Client
	bufSize int
	logger  logging.Logger
}

func NewHTTPFetcher(client *http.Client, bufSize int, l logging.Logger) *HTTPFetcher {
	if bufSize <= 0 {
		bufSize = 32 << 10
	}
	return &HTTPFetcher{client: client, bufSize: bufSize, logger: l.With("module", "fetch")}
}

// Fetch streams rawURL into dir. Transport errors and non-2xx responses are
// returned unchanged.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, hint models.TransferHint, dir string, onProgress ProgressFunc) (Result, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return Result{}, err
	}

	header := http.Header{}
	if hint == models.HintAudioOnly {
		header.Set("Accept", "audio/*")
	}

	resp, err := netx.Get(ctx, f.client, rawURL, header)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	br := bufio.NewReaderSize(resp.Body, f.bufSize)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		head, _ := br.Peek(512)
		if len(head) > 0 {
			contentType = http.DetectContentType(head)
		}
	}

	dst := filepath.Join(dir, payloadName)
	out, err := os.Create(dst)
	if err != nil {
		return Result{}, err
	}

	pw := &progressWriter{total: resp.ContentLength, fn: onProgress}
	n, err := io.CopyBuffer(io.MultiWriter(out, pw), br, make([]byte, f.bufSize))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return Result{}, err
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		_ = os.Remove(dst)
		return Result{}, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}

	res := Result{
		Path:        dst,
		Title:       titleOf(resp.Header.Get("Content-Disposition"), rawURL),
		ContentType: contentType,
		Size:        n,
	}
	f.logger.Debug(ctx, "fetched", "url", rawURL, "bytes", n, "content_type", contentType)
	return res, nil
}

type progressWriter struct {
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
	return len(b), nil
}

// titleOf prefers the Content-Disposition filename and falls back to the last
// URL path segment, then to the host.
func titleOf(disposition, rawURL string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				return path.Base(strings.ReplaceAll(name, "\\", "/"))
			}
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
		if s, err := url.PathUnescape(base); err == nil {
			return s
		}
		return base
	}
	if u.Host != "" {
		return u.Host
	}
	return "download"
}
