// Package checksum computes and verifies content digests for chunks and
// whole files.
//
// A digest is written as "<algorithm>:<lowercase hex>", e.g.
// "sha256:9f86d0...". A bare 64-character hex string is read as sha256.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"golang.org/x/crypto/blake2b"
)

type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE2b Algorithm = "blake2b"

	Default = SHA256
)

// Digest is a parsed content digest.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

func (d Digest) String() string {
	if d.Hex == "" {
		return ""
	}
	return string(d.Algorithm) + ":" + d.Hex
}

func (d Digest) IsZero() bool { return d.Hex == "" }

// Equal compares algorithm and value in constant time.
func (d Digest) Equal(o Digest) bool {
	if d.Algorithm != o.Algorithm || len(d.Hex) != len(o.Hex) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(d.Hex), []byte(o.Hex)) == 1
}

// New returns a fresh hash for algo.
func New(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case BLAKE2b:
		return blake2b.New256(nil)
	}
	return nil, fmt.Errorf("%w: unsupported checksum algorithm %q", common.ErrorInvalidArgument, algo)
}

// Parse reads a digest string. The empty string parses to the zero Digest.
func Parse(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Digest{}, nil
	}

	algo, value, found := strings.Cut(s, ":")
	if !found {
		algo, value = string(SHA256), s
	}

	d := Digest{Algorithm: Algorithm(strings.ToLower(algo)), Hex: strings.ToLower(value)}

	h, err := New(d.Algorithm)
	if err != nil {
		return Digest{}, err
	}
	raw, err := hex.DecodeString(d.Hex)
	if err != nil || len(raw) != h.Size() {
		return Digest{}, fmt.Errorf("%w: malformed %s digest %q", common.ErrorInvalidArgument, d.Algorithm, s)
	}
	return d, nil
}

// Compute hashes everything read from r.
func Compute(algo Algorithm, r io.Reader) (Digest, error) {
	w, err := NewWriter(algo)
	if err != nil {
		return Digest{}, err
	}
	if _, err := io.Copy(w, r); err != nil {
		return Digest{}, err
	}
	return w.Digest(), nil
}

// Sum hashes b.
func Sum(algo Algorithm, b []byte) (Digest, error) {
	w, err := NewWriter(algo)
	if err != nil {
		return Digest{}, err
	}
	_, _ = w.Write(b)
	return w.Digest(), nil
}

// Verify hashes r with the algorithm named by expected and compares. It
// returns the computed digest in all cases where hashing succeeded, and an
// error wrapping common.ErrorIntegrity on mismatch.
func Verify(expected string, r io.Reader) (Digest, error) {
	want, err := Parse(expected)
	if err != nil {
		return Digest{}, err
	}
	if want.IsZero() {
		want.Algorithm = Default
	}
	got, err := Compute(want.Algorithm, r)
	if err != nil {
		return Digest{}, err
	}
	if !want.IsZero() && !got.Equal(want) {
		return got, Mismatch(want, got)
	}
	return got, nil
}

// Mismatch builds the integrity error reported when got differs from want.
func Mismatch(want, got Digest) error {
	return fmt.Errorf("%w: expected %s, got %s", common.ErrorIntegrity, want, got)
}

// Writer is an io.Writer that hashes what passes through it and counts bytes.
type Writer struct {
	algo Algorithm
	h    hash.Hash
	n    int64
}

func NewWriter(algo Algorithm) (*Writer, error) {
	h, err := New(algo)
	if err != nil {
		return nil, err
	}
	return &Writer{algo: algo, h: h}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.n += int64(n)
	return n, err
}

// Len reports how many bytes were written.
func (w *Writer) Len() int64 { return w.n }

func (w *Writer) Digest() Digest {
	return Digest{Algorithm: w.algo, Hex: hex.EncodeToString(w.h.Sum(nil))}
}
