package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"song.mp3", "song.mp3"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\clip.mp4`, "clip.mp4"},
		{"..hidden", "hidden"},
		{"a<b>c:d\"e|f?g*h.txt", "abcdefgh.txt"},
		{"tab\tand\nnewline", "tabandnewline"},
		{"  spaced  name  ", "spaced  name"},
		{"nul\x00byte", "nulbyte"},
		{"..", "file"},
		{"", "file"},
		{"///", "file"},
		{"привет.ogg", "привет.ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("я", 150) // 300 bytes
	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len(got), maxFilenameBytes)
	assert.True(t, strings.HasPrefix(long, got))
	assert.Equal(t, 100, len([]rune(got)))
}
