package storage

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophmedia/internal/common"
)

const maxFilenameBytes = 200

// SanitizeFilename reduces name to a single safe path element: separators,
// control characters and <>:"|?* are stripped, leading dots and spaces are
// dropped and the result is capped at 200 bytes. It never returns "".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			continue
		case strings.ContainsRune(`<>:"|?*/`, r):
			continue
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimLeft(b.String(), ". ")
	out = strings.TrimRight(out, " ")

	if len(out) > maxFilenameBytes {
		out = truncateUTF8(out, maxFilenameBytes)
	}
	if out == "" {
		return "file"
	}
	return out
}

func truncateUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// cleanKey validates a storage key and returns it in OS form. Keys are
// slash-separated, relative, and may not climb out of the root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || filepath.IsAbs(key) {
		return "", common.ErrorNotFound
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", common.ErrorNotFound
		}
	}
	return filepath.FromSlash(key), nil
}
