package flagx

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "server.json", "-w", "8"},
			allowed: []string{"-c"},
			want:    []string{"-c", "server.json"},
		},
		{
			name:    "equals form",
			args:    []string{"-config=server.json", "-w", "8"},
			allowed: []string{"-config"},
			want:    []string{"-config=server.json"},
		},
		{
			name:    "unknown flags dropped",
			args:    []string{"-x", "1", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-w"},
			allowed: []string{"-w"},
			want:    []string{"-w"},
		},
		{
			name:    "next flag is not a value",
			args:    []string{"-c", "-w", "4"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "several allowed flags keep order",
			args:    []string{"-a", ":50051", "-z", "-r", "/srv/media"},
			allowed: []string{"-a", "-r"},
			want:    []string{"-a", ":50051", "-r", "/srv/media"},
		},
		{
			name:    "value with spaces",
			args:    []string{"-r", "/srv/my media"},
			allowed: []string{"-r"},
			want:    []string{"-r", "/srv/my media"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	assert.Equal(t, "a.json", JsonConfigFlags([]string{"-c", "a.json", "-w", "2"}))
	assert.Equal(t, "b.json", JsonConfigFlags([]string{"-config=b.json"}))
	assert.Equal(t, "b.json", JsonConfigFlags([]string{"-c", "a.json", "-config", "b.json"}))
	assert.Empty(t, JsonConfigFlags([]string{"-w", "2"}))
}

func TestNames(t *testing.T) {
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	fs.String("a", "", "")
	fs.Int("w", 0, "")
	assert.ElementsMatch(t, []string{"-a", "-w"}, Names(fs))
}
