// Package storage is the size/type tiered blob store that receives assembled
// uploads and finished downloads.
//
// Blobs live under <root>/<category>/<tier>/<yyyy>/<mm>/<uuid>-<filename>.
// The storage key is that path relative to root, slash separated, so keys
// survive a move of the root directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/checksum"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/filex"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/google/uuid"
)

type Tier string

const (
	TierSmall    Tier = "small"
	TierStandard Tier = "standard"
	TierLarge    Tier = "large"
)

// Options tunes tier thresholds and the copy buffer.
type Options struct {
	// SmallMax is the exclusive upper bound of the small tier.
	SmallMax int64
	// LargeMin is the inclusive lower bound of the large tier.
	LargeMin int64
	// BufferSize is the copy buffer used by Store.
	BufferSize int
}

func DefaultOptions() Options {
	return Options{
		SmallMax:   16 << 20,
		LargeMin:   1 << 30,
		BufferSize: 1 << 20,
	}
}

type TieredStorage struct {
	root string
	opts Options
	now  func() time.Time
}

// NewTieredStorage creates root if needed.
func NewTieredStorage(root string, opts Options) (*TieredStorage, error) {
	def := DefaultOptions()
	if opts.SmallMax <= 0 {
		opts.SmallMax = def.SmallMax
	}
	if opts.LargeMin <= opts.SmallMax {
		opts.LargeMin = max(def.LargeMin, opts.SmallMax)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}

	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	return &TieredStorage{root: abs, opts: opts, now: time.Now}, nil
}

func (s *TieredStorage) Root() string { return s.root }

// TierFor picks the tier for a declared size. Unknown sizes (<= 0) go to the
// standard tier.
func (s *TieredStorage) TierFor(declaredSize int64) Tier {
	switch {
	case declaredSize <= 0:
		return TierStandard
	case declaredSize < s.opts.SmallMax:
		return TierSmall
	case declaredSize < s.opts.LargeMin:
		return TierStandard
	default:
		return TierLarge
	}
}

func (s *TieredStorage) newKey(category models.Category, tier Tier, filename string) string {
	if !category.Valid() {
		category = models.CategoryOther
	}
	now := s.now().UTC()
	return path.Join(
		string(category),
		string(tier),
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		uuid.NewString()+"-"+SanitizeFilename(filename),
	)
}

func (s *TieredStorage) abs(key string) (string, error) {
	rel, err := cleanKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid storage key %q: %w", key, err)
	}
	return filepath.Join(s.root, rel), nil
}

// Store streams r into a fresh blob and returns its key and the number of
// bytes written. The blob becomes visible under its key only once fully
// written and synced.
func (s *TieredStorage) Store(ctx context.Context, r io.Reader, category models.Category, declaredSize int64, filename string) (string, int64, error) {
	key := s.newKey(category, s.TierFor(declaredSize), filename)
	dst, _ := s.abs(key)

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", 0, fmt.Errorf("%w: mkdir %s: %w", common.ErrorStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: create temp: %w", common.ErrorStorage, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := make([]byte, s.opts.BufferSize)
	n, err := io.CopyBuffer(writerOnly{tmp}, filex.ContextReader{Ctx: ctx, R: r}, buf)
	if err != nil {
		return "", n, fmt.Errorf("%w: write blob: %w", common.ErrorStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", n, fmt.Errorf("%w: sync blob: %w", common.ErrorStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return "", n, fmt.Errorf("%w: close blob: %w", common.ErrorStorage, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", n, fmt.Errorf("%w: publish blob: %w", common.ErrorStorage, err)
	}
	committed = true
	_ = filex.SyncDir(dir)

	return key, n, nil
}

// Retrieve opens the blob for reading.
func (s *TieredStorage) Retrieve(key string) (io.ReadCloser, error) {
	p, err := s.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, wrapFSError(err)
	}
	return f, nil
}

// RetrieveRange returns bytes [start, end] inclusive.
func (s *TieredStorage) RetrieveRange(key string, start, end int64) (io.ReadCloser, error) {
	p, err := s.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, wrapFSError(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wrapFSError(err)
	}
	if start < 0 || end < start || end >= fi.Size() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: range %d-%d of %d bytes", common.ErrorOutOfRange, start, end, fi.Size())
	}
	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(f, start, end-start+1),
		c:             f,
	}, nil
}

// Delete removes the blob and reports whether it existed.
func (s *TieredStorage) Delete(key string) (bool, error) {
	p, err := s.abs(key)
	if err != nil {
		return false, nil
	}
	removed, err := filex.RemoveIfExists(p)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %w", common.ErrorStorage, key, err)
	}
	return removed, nil
}

func (s *TieredStorage) Size(key string) (int64, error) {
	p, err := s.abs(key)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return 0, wrapFSError(err)
	}
	return fi.Size(), nil
}

// Checksum computes the default digest of the blob.
func (s *TieredStorage) Checksum(key string) (checksum.Digest, error) {
	rc, err := s.Retrieve(key)
	if err != nil {
		return checksum.Digest{}, err
	}
	defer rc.Close()

	d, err := checksum.Compute(checksum.Default, rc)
	if err != nil {
		return checksum.Digest{}, fmt.Errorf("%w: read %s: %w", common.ErrorStorage, key, err)
	}
	return d, nil
}

// Move re-files the blob under newCategory, keeping its tier and name, and
// returns the new key.
func (s *TieredStorage) Move(key string, newCategory models.Category) (string, error) {
	if !newCategory.Valid() {
		return "", fmt.Errorf("%w: category %q", common.ErrorInvalidArgument, newCategory)
	}
	src, err := s.abs(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		return "", wrapFSError(err)
	}

	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid storage key %q: %w", key, common.ErrorNotFound)
	}
	if parts[0] == string(newCategory) {
		return key, nil
	}
	newKey := string(newCategory) + "/" + parts[1]
	dst, err := s.abs(newKey)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o770); err != nil {
		return "", fmt.Errorf("%w: mkdir: %w", common.ErrorStorage, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("%w: move %s: %w", common.ErrorStorage, key, err)
	}
	return newKey, nil
}

func wrapFSError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", common.ErrorNotFound, err)
	}
	return fmt.Errorf("%w: %w", common.ErrorStorage, err)
}

type sectionReadCloser struct {
	*io.SectionReader
	c io.Closer
}

func (s *sectionReadCloser) Close() error { return s.c.Close() }

// writerOnly hides *os.File's ReadFrom so CopyBuffer uses our buffer.
type writerOnly struct{ io.Writer }
