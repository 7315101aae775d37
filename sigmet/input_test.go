package sigmet

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
)

func TestNewReaderPassthrough(t *testing.T) {
	require := require.New(t)

	raw := []byte{0x1B, 0x00, 0x01, 0x00, 0xAA, 0xBB} // no known magic
	r, err := NewReader(bytes.NewReader(raw))
	require.NoError(err)
	got, err := io.ReadAll(r)
	require.NoError(err)
	require.Equal(raw, got)
}

func TestNewReaderGzip(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{})
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(err)
	require.NoError(zw.Close())

	r, err := NewReader(&buf)
	require.NoError(err)
	vol, err := Decode(r, DecodeConfig{})
	require.NoError(err)
	require.Equal(2, vol.NumSweeps)
}

func TestNewReaderZstd(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{})
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(err)
	_, err = zw.Write(raw)
	require.NoError(err)
	require.NoError(zw.Close())

	r, err := NewReader(&buf)
	require.NoError(err)
	vol, err := Decode(r, DecodeConfig{})
	require.NoError(err)
	require.Equal(2, vol.NumSweeps)
}

func TestNewReaderLZ4(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{})
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(err)
	require.NoError(zw.Close())

	r, err := NewReader(&buf)
	require.NoError(err)
	vol, err := Decode(r, DecodeConfig{})
	require.NoError(err)
	require.Equal(2, vol.NumSweeps)
}
