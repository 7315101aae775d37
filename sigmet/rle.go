package sigmet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Ray payloads are compressed with 16-bit run tokens (IRIS 3.5.4):
//
//	0x0000            end of ray
//	0x0001..0x7FFF    that many data words follow literally
//	0x8000            end of sweep
//	0x8001..0xFFFF    run of low-15-bits zero words
//
// Rays span record boundaries freely; the reader below hands out a
// contiguous token stream and eats the 12 byte raw_prod_bhdr at the top
// of every record it crosses into.
const (
	tokenEndOfRay  = 0x0000
	tokenEndSweep  = 0x8000
	tokenRunFlag   = 0x8000
	tokenCountMask = 0x7FFF
)

// recordStream walks the 6144 byte physical records of a raw product
// file and serves the logical byte stream of the data region.
type recordStream struct {
	r       io.Reader
	rec     [RecordSize]byte
	pos     int // next unread byte in rec
	have    bool
	recNum  int
	lastHdr RawProdBHdr
}

func newRecordStream(r io.Reader) *recordStream {
	return &recordStream{r: r}
}

// readRecord pulls the next full physical record. io.EOF comes back
// untouched at a record boundary; a short record is a truncated stream.
func (rs *recordStream) readRecord() error {
	_, err := io.ReadFull(rs.r, rs.rec[:])
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("record %d: %s: %w", rs.recNum, err, ErrTruncatedStream)
	}
	rs.recNum++
	rs.have = true
	rs.pos = 0
	return nil
}

// rawRecord returns the next whole record. Used for the product and
// ingest header records, which carry no bhdr.
func (rs *recordStream) rawRecord() ([]byte, error) {
	if err := rs.readRecord(); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("record %d: %w", rs.recNum+1, ErrTruncatedStream)
		}
		return nil, err
	}
	rs.pos = RecordSize
	rs.have = false
	return rs.rec[:], nil
}

// nextDataRecord advances to the next data record and decodes its bhdr.
// io.EOF means a clean end of file at a record boundary.
func (rs *recordStream) nextDataRecord() error {
	if err := rs.readRecord(); err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(rs.rec[:RawProdBHdrSize]), binary.LittleEndian, &rs.lastHdr); err != nil {
		return fmt.Errorf("raw_prod_bhdr: %w", ErrTruncatedStream)
	}
	rs.pos = RawProdBHdrSize
	logrus.Debugf("record %d sweep=%d first-ray-offset=%d", rs.lastHdr.RecordNumber, rs.lastHdr.SweepNumber, rs.lastHdr.FirstRayByteOffset)
	return nil
}

// atRecordBoundary reports that the current record is spent.
func (rs *recordStream) atRecordBoundary() bool {
	return !rs.have || rs.pos >= RecordSize
}

// skipToRecordBoundary discards the remainder of the current record.
func (rs *recordStream) skipToRecordBoundary() {
	rs.pos = RecordSize
	rs.have = false
}

// read fills p from the data region, crossing into following records as
// needed. Running out of file mid-read is a truncated stream.
func (rs *recordStream) read(p []byte) error {
	for len(p) > 0 {
		if rs.atRecordBoundary() {
			if err := rs.nextDataRecord(); err != nil {
				if err == io.EOF {
					return fmt.Errorf("need %d more bytes: %w", len(p), ErrTruncatedStream)
				}
				return err
			}
		}
		n := copy(p, rs.rec[rs.pos:])
		rs.pos += n
		p = p[n:]
	}
	return nil
}

// discard throws away n bytes of the data region.
func (rs *recordStream) discard(n int) error {
	var sink [256]byte
	for n > 0 {
		c := n
		if c > len(sink) {
			c = len(sink)
		}
		if err := rs.read(sink[:c]); err != nil {
			return err
		}
		n -= c
	}
	return nil
}

// word reads one 16-bit compression token.
func (rs *recordStream) word() (uint16, error) {
	var b [2]byte
	if err := rs.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// peekWord returns the next token without consuming it. Only valid when
// at least two bytes remain in the current record.
func (rs *recordStream) peekWord() (uint16, error) {
	if rs.atRecordBoundary() {
		if err := rs.nextDataRecord(); err != nil {
			return 0, err
		}
	}
	if rs.pos+2 > RecordSize {
		return 0, fmt.Errorf("peek across record boundary: %w", ErrTruncatedStream)
	}
	return binary.LittleEndian.Uint16(rs.rec[rs.pos:]), nil
}

// decompressChunk expands one ray chunk into dst, which the caller has
// zeroed to the chunk's expected width. Tokens that would overflow dst
// truncate to the remaining space but keep consuming their input words.
// Returns the byte count the tokens produced before zero padding, and
// whether the end-of-sweep token arrived instead of (or inside) the
// chunk.
func (rs *recordStream) decompressChunk(dst []byte) (produced int, endSweep bool, err error) {
	for {
		w, err := rs.word()
		if err != nil {
			return produced, false, err
		}
		switch {
		case w == tokenEndOfRay:
			return produced, false, nil
		case w == tokenEndSweep:
			return produced, true, nil
		case w&tokenRunFlag != 0:
			n := 2 * int(w&tokenCountMask)
			if n > len(dst)-produced {
				n = len(dst) - produced
			}
			for i := 0; i < n; i++ {
				dst[produced+i] = 0
			}
			produced += n
		default:
			n := 2 * int(w)
			take := n
			if take > len(dst)-produced {
				take = len(dst) - produced
			}
			if err := rs.read(dst[produced : produced+take]); err != nil {
				return produced, false, err
			}
			if take < n {
				logrus.Debugf("literal run of %d bytes overflows ray by %d, truncating", n, n-take)
				if err := rs.discard(n - take); err != nil {
					return produced, false, err
				}
			}
			produced += take
		}
	}
}
