package checksum

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256("abc")
const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestCompute_KnownVector(t *testing.T) {
	d, err := Compute(SHA256, strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+abcSHA256, d.String())
}

func TestSum_MatchesStreaming(t *testing.T) {
	data := bytes.Repeat([]byte("chunk"), 10_000)
	for _, algo := range []Algorithm{SHA256, BLAKE2b} {
		t.Run(string(algo), func(t *testing.T) {
			a, err := Sum(algo, data)
			require.NoError(t, err)
			b, err := Compute(algo, bytes.NewReader(data))
			require.NoError(t, err)
			assert.True(t, a.Equal(b))
			assert.Len(t, a.Hex, 64)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Digest
		wantErr bool
	}{
		{name: "empty", in: "", want: Digest{}},
		{name: "bare hex is sha256", in: abcSHA256, want: Digest{SHA256, abcSHA256}},
		{name: "prefixed upper case", in: "SHA256:" + strings.ToUpper(abcSHA256), want: Digest{SHA256, abcSHA256}},
		{name: "unknown algorithm", in: "md5:" + abcSHA256, wantErr: true},
		{name: "short hex", in: "sha256:abcd", wantErr: true},
		{name: "not hex", in: strings.Repeat("z", 64), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrorInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerify(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		d, err := Verify(abcSHA256, strings.NewReader("abc"))
		require.NoError(t, err)
		assert.Equal(t, abcSHA256, d.Hex)
	})

	t.Run("one byte flipped", func(t *testing.T) {
		d, err := Verify("sha256:"+abcSHA256, strings.NewReader("abd"))
		require.ErrorIs(t, err, common.ErrorIntegrity)
		assert.False(t, d.IsZero())
	})

	t.Run("no expectation computes default", func(t *testing.T) {
		d, err := Verify("", strings.NewReader("abc"))
		require.NoError(t, err)
		assert.Equal(t, SHA256, d.Algorithm)
	})

	t.Run("blake2b expectation", func(t *testing.T) {
		want, err := Sum(BLAKE2b, []byte("abc"))
		require.NoError(t, err)
		_, err = Verify(want.String(), strings.NewReader("abc"))
		require.NoError(t, err)
	})
}

func TestWriter_CountsBytesUnderMultiWriter(t *testing.T) {
	w, err := NewWriter(SHA256)
	require.NoError(t, err)

	var sink bytes.Buffer
	n, err := io.Copy(io.MultiWriter(&sink, w), strings.NewReader("abc"))
	require.NoError(t, err)

	assert.EqualValues(t, 3, n)
	assert.EqualValues(t, 3, w.Len())
	assert.Equal(t, abcSHA256, w.Digest().Hex)
	assert.Equal(t, "abc", sink.String())
}

func TestDigest_Equal(t *testing.T) {
	a := Digest{SHA256, abcSHA256}
	assert.True(t, a.Equal(Digest{SHA256, abcSHA256}))
	assert.False(t, a.Equal(Digest{BLAKE2b, abcSHA256}))
	assert.False(t, a.Equal(Digest{SHA256, abcSHA256[:62]}))
}
