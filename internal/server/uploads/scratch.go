package uploads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophmedia/internal/filex"
)

const (
	chunkPrefix   = "chunk_"
	assembledName = "assembled"
)

// Scratch lays out per-session working directories as
// <root>/uploads/<session id>/chunk_%06d.
type Scratch struct {
	root string
}

func NewScratch(dir string) (*Scratch, error) {
	root, err := filex.EnsureDir(filepath.Join(dir, "uploads"))
	if err != nil {
		return nil, err
	}
	return &Scratch{root: root}, nil
}

func (s *Scratch) Dir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Scratch) ChunkPath(id string, index int) string {
	return filepath.Join(s.Dir(id), fmt.Sprintf("%s%06d", chunkPrefix, index))
}

func (s *Scratch) AssembledPath(id string) string {
	return filepath.Join(s.Dir(id), assembledName)
}

func (s *Scratch) Create(id string) error {
	_, err := filex.EnsureDir(s.Dir(id))
	return err
}

// TempFile opens a fresh file for an incoming chunk.
func (s *Scratch) TempFile(id string) (*os.File, error) {
	return os.CreateTemp(s.Dir(id), ".part-*")
}

// Publish links tmp under the chunk name and removes tmp. It reports false
// when the chunk file already exists; the existing file is kept.
func (s *Scratch) Publish(tmp, id string, index int) (bool, error) {
	defer os.Remove(tmp)

	err := os.Link(tmp, s.ChunkPath(id, index))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrExist):
		return false, nil
	}
	return false, err
}

// ListChunks returns the indices of chunk files present for id, ascending.
func (s *Scratch) ListChunks(id string) ([]int, error) {
	entries, err := os.ReadDir(s.Dir(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, chunkPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, chunkPrefix))
		if err != nil || idx < 0 {
			continue
		}
		out = append(out, idx)
	}
	slices.Sort(out)
	return out, nil
}

// Release removes everything held for id.
func (s *Scratch) Release(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid session id %q", id)
	}
	return os.RemoveAll(s.Dir(id))
}
