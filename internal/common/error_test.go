package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", ErrorNotFound, "NotFound"},
		{"wrapped invalid state", fmt.Errorf("finalize: %w", ErrorInvalidState), "InvalidState"},
		{"double wrapped storage", fmt.Errorf("%w: %w", ErrorStorage, errors.New("disk full")), "StorageError"},
		{"integrity", ErrorIntegrity, "IntegrityError"},
		{"size mismatch", ErrorSizeMismatch, "SizeMismatch"},
		{"assembly corrupt", ErrorAssemblyCorrupt, "AssemblyCorrupt"},
		{"upstream", fmt.Errorf("%w: 502 Bad Gateway", ErrorUpstreamFetch), "UpstreamFetchError"},
		{"foreign", errors.New("boom"), "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorForKind_RoundTrip(t *testing.T) {
	for _, k := range kinds {
		assert.ErrorIs(t, ErrorForKind(k.name), k.err)
	}
	assert.ErrorIs(t, ErrorForKind("whatever"), ErrorInternal)
}
