package sigmet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeDataRecords wraps a token payload in bhdr-fronted records.
func makeDataRecords(t *testing.T, payload []byte) []byte {
	t.Helper()
	var out []byte
	rec := int16(1)
	for len(payload) > 0 || len(out) == 0 {
		r := make([]byte, RecordSize)
		copy(r, structBytes(t, &RawProdBHdr{RecordNumber: rec, SweepNumber: 1}))
		n := copy(r[RawProdBHdrSize:], payload)
		payload = payload[n:]
		rec++
		out = append(out, r...)
	}
	return out
}

func TestDecompressChunkRoundtrip(t *testing.T) {
	require := require.New(t)

	// literal of 3 words, zero run of 2 words, literal of 1 word: L = 12
	var payload []byte
	payload = putWord(payload, 3)
	payload = append(payload, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66)
	payload = putWord(payload, tokenRunFlag|2)
	payload = putWord(payload, 1)
	payload = append(payload, 0x77, 0x88)
	payload = putWord(payload, tokenEndOfRay)

	rs := newRecordStream(bytes.NewReader(makeDataRecords(t, payload)))
	dst := make([]byte, 12)
	produced, endSweep, err := rs.decompressChunk(dst)
	require.NoError(err)
	require.False(endSweep)
	require.Equal(12, produced)
	require.Equal([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0, 0, 0, 0, 0x77, 0x88}, dst)
}

func TestDecompressChunkZeroPad(t *testing.T) {
	require := require.New(t)

	// one literal word then end of ray; the chunk's expected width is
	// larger and stays zero filled
	var payload []byte
	payload = putWord(payload, 1)
	payload = append(payload, 0xAB, 0xCD)
	payload = putWord(payload, tokenEndOfRay)

	rs := newRecordStream(bytes.NewReader(makeDataRecords(t, payload)))
	dst := make([]byte, 8)
	produced, endSweep, err := rs.decompressChunk(dst)
	require.NoError(err)
	require.False(endSweep)
	require.Equal(2, produced)
	require.Equal([]byte{0xAB, 0xCD, 0, 0, 0, 0, 0, 0}, dst)
}

func TestDecompressChunkRunOverflowTruncates(t *testing.T) {
	require := require.New(t)

	var payload []byte
	payload = putWord(payload, tokenRunFlag|1000) // way past the chunk
	payload = putWord(payload, tokenEndOfRay)

	rs := newRecordStream(bytes.NewReader(makeDataRecords(t, payload)))
	dst := make([]byte, 6)
	produced, _, err := rs.decompressChunk(dst)
	require.NoError(err)
	require.Equal(6, produced)
}

func TestDecompressChunkEndOfSweep(t *testing.T) {
	require := require.New(t)

	rs := newRecordStream(bytes.NewReader(makeDataRecords(t, putWord(nil, tokenEndSweep))))
	dst := make([]byte, 4)
	produced, endSweep, err := rs.decompressChunk(dst)
	require.NoError(err)
	require.True(endSweep)
	require.Zero(produced)
}

func TestDecompressChunkTruncatedLiteral(t *testing.T) {
	// a literal token demanding more words than the file provides
	var payload []byte
	payload = putWord(payload, 0x7FFF)

	// single record, so the literal run hits EOF
	rec := make([]byte, RecordSize)
	copy(rec, structBytes(t, &RawProdBHdr{RecordNumber: 1, SweepNumber: 1}))
	copy(rec[RawProdBHdrSize:], payload)

	rs := newRecordStream(bytes.NewReader(rec))
	dst := make([]byte, 4*0x8000)
	_, _, err := rs.decompressChunk(dst)
	require.ErrorIs(t, err, ErrTruncatedStream)
}

func TestRecordStreamCrossesRecords(t *testing.T) {
	require := require.New(t)

	// payload longer than one record's data region
	payload := make([]byte, RecordSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	rs := newRecordStream(bytes.NewReader(makeDataRecords(t, payload)))

	got := make([]byte, len(payload))
	require.NoError(rs.read(got))
	require.Equal(payload, got)
}
