package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/checksum"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) *TieredStorage {
	t.Helper()
	s, err := NewTieredStorage(t.TempDir(), Options{SmallMax: 100, LargeMin: 1000, BufferSize: 7})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC) }
	return s
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestTierFor(t *testing.T) {
	s := newStorage(t)
	assert.Equal(t, TierStandard, s.TierFor(0))
	assert.Equal(t, TierStandard, s.TierFor(-1))
	assert.Equal(t, TierSmall, s.TierFor(99))
	assert.Equal(t, TierStandard, s.TierFor(100))
	assert.Equal(t, TierStandard, s.TierFor(999))
	assert.Equal(t, TierLarge, s.TierFor(1000))
}

func TestNewTieredStorage_Defaults(t *testing.T) {
	s, err := NewTieredStorage(filepath.Join(t.TempDir(), "media"), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), s.opts)
	assert.DirExists(t, s.Root())
}

func TestStore_LayoutAndRoundTrip(t *testing.T) {
	s := newStorage(t)
	data := randomBytes(t, 250)

	key, n, err := s.Store(context.Background(), bytes.NewReader(data), models.CategoryAudio, int64(len(data)), "../../etc/passwd song.mp3")
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)

	assert.True(t, strings.HasPrefix(key, "audio/standard/2026/03/"), key)
	assert.True(t, strings.HasSuffix(key, "-passwd song.mp3"), key)
	assert.NotContains(t, key, "..")

	rc, err := s.Retrieve(key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	size, err := s.Size(key)
	require.NoError(t, err)
	assert.EqualValues(t, 250, size)

	entries, err := os.ReadDir(filepath.Dir(filepath.Join(s.Root(), filepath.FromSlash(key))))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not linger")
}

func TestStore_UniqueKeys(t *testing.T) {
	s := newStorage(t)
	a, _, err := s.Store(context.Background(), strings.NewReader("x"), models.CategoryImage, 1, "same.png")
	require.NoError(t, err)
	b, _, err := s.Store(context.Background(), strings.NewReader("x"), models.CategoryImage, 1, "same.png")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "image/small/"))
}

func TestStore_UnknownCategoryFallsBackToOther(t *testing.T) {
	s := newStorage(t)
	key, _, err := s.Store(context.Background(), strings.NewReader("x"), "", 1, "x.bin")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "other/small/"), key)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestStore_ReaderErrorLeavesNothingBehind(t *testing.T) {
	s := newStorage(t)
	_, _, err := s.Store(context.Background(), failingReader{}, models.CategoryVideo, 10, "v.mp4")
	require.ErrorIs(t, err, common.ErrorStorage)

	var files []string
	_ = filepath.WalkDir(s.Root(), func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	assert.Empty(t, files)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.Store(ctx, strings.NewReader("abc"), models.CategoryVideo, 3, "v.mp4")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetrieveRange(t *testing.T) {
	s := newStorage(t)
	key, _, err := s.Store(context.Background(), strings.NewReader("0123456789"), models.CategoryDocument, 10, "digits.txt")
	require.NoError(t, err)

	rc, err := s.RetrieveRange(key, 2, 5)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "2345", string(got))

	rc, err = s.RetrieveRange(key, 9, 9)
	require.NoError(t, err)
	got, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "9", string(got))

	for _, r := range [][2]int64{{-1, 3}, {5, 4}, {0, 10}} {
		_, err := s.RetrieveRange(key, r[0], r[1])
		assert.ErrorIs(t, err, common.ErrorOutOfRange, "range %v", r)
	}
}

func TestDelete(t *testing.T) {
	s := newStorage(t)
	key, _, err := s.Store(context.Background(), strings.NewReader("x"), models.CategoryOther, 1, "x")
	require.NoError(t, err)

	ok, err := s.Delete(key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Retrieve(key)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestChecksum(t *testing.T) {
	s := newStorage(t)
	data := randomBytes(t, 1234)
	key, _, err := s.Store(context.Background(), bytes.NewReader(data), models.CategoryVideo, 1234, "v.mp4")
	require.NoError(t, err)

	got, err := s.Checksum(key)
	require.NoError(t, err)
	want, err := checksum.Sum(checksum.SHA256, data)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestMove(t *testing.T) {
	s := newStorage(t)
	key, _, err := s.Store(context.Background(), strings.NewReader("voice memo"), models.CategoryOther, 10, "memo.m4a")
	require.NoError(t, err)

	newKey, err := s.Move(key, models.CategoryAudio)
	require.NoError(t, err)
	assert.Equal(t, "audio/"+strings.TrimPrefix(key, "other/"), newKey)

	_, err = s.Size(key)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	size, err := s.Size(newKey)
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	same, err := s.Move(newKey, models.CategoryAudio)
	require.NoError(t, err)
	assert.Equal(t, newKey, same)

	_, err = s.Move(newKey, "podcasts")
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)

	_, err = s.Move("audio/small/2026/03/missing", models.CategoryVideo)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	s := newStorage(t)
	outside := filepath.Join(filepath.Dir(s.Root()), "secret")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o600))

	for _, key := range []string{"../secret", "/etc/passwd", "audio/../../secret", "", "audio//x", `audio\..\secret`} {
		_, err := s.Retrieve(key)
		assert.ErrorIs(t, err, common.ErrorNotFound, key)
		ok, err := s.Delete(key)
		assert.NoError(t, err)
		assert.False(t, ok, key)
	}
	assert.FileExists(t, outside)
}
