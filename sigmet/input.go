package sigmet

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
)

// Archived volumes commonly arrive wrapped in a whole-file compressor.
// NewReader sniffs the magic and unwraps transparently so every consumer
// just sees record bytes.
var (
	magicGzip  = []byte{0x1F, 0x8B}
	magicBzip2 = []byte{'B', 'Z', 'h'}
	magicZstd  = []byte{0x28, 0xB5, 0x2F, 0xFD}
	magicLZ4   = []byte{0x04, 0x22, 0x4D, 0x18}
)

// NewReader wraps r with the decompressor its leading magic calls for,
// or returns the stream as-is when it is a bare raw product file.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("sniffing input: %s: %w", err, ErrIOFailure)
	}

	switch {
	case bytes.HasPrefix(head, magicGzip):
		logrus.Debug("input is gzip compressed")
		return gzip.NewReader(br)
	case bytes.HasPrefix(head, magicBzip2):
		logrus.Debug("input is bzip2 compressed")
		return bzip2.NewReader(br, nil)
	case bytes.HasPrefix(head, magicZstd):
		logrus.Debug("input is zstd compressed")
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case bytes.HasPrefix(head, magicLZ4):
		logrus.Debug("input is lz4 compressed")
		return lz4.NewReader(br), nil
	}
	return br, nil
}

// Open opens and decodes a raw product file, unwrapping any whole-file
// compression on the way in.
func Open(path string, cfg DecodeConfig) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrIOFailure)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	return Decode(r, cfg)
}
