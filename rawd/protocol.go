// Package rawd is the raw product daemon and its client side: a
// connection-per-request protocol over a local unix stream socket. The
// client passes two open file descriptors with every request — an error
// channel and a bulk channel — and the daemon answers with a fixed
// seven-slot reply on the socket before writing the requested artifact
// to the bulk fd.
package rawd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/jddeal/go-sigmet/sigmet"
)

// ErrProtocol covers malformed requests and wrong ancillary data shape.
var ErrProtocol = errors.New("protocol error")

// Subcommand codes.
const (
	CmdExit uint32 = iota
	CmdVolumeHeaders
	CmdSweepHeaders
	CmdRayHeaders
	CmdData
	CmdCorrected
)

// SweepAll selects every sweep where the subcommand supports it.
const SweepAll = ^uint32(0)

// Response status codes.
const (
	StatusOkay uint32 = iota
	StatusError
)

const (
	abbrevLen    = 16
	timeZoneLen  = 11
	requestSize  = 4 + abbrevLen + 4
	responseSize = 4 + 4 + 4 + 4 + 8 + timeZoneLen + 4
)

// Request is one client request: subcommand, data type abbreviation
// (blank means the volume's default type), and sweep index.
type Request struct {
	Cmd    uint32
	Abbrev string
	Sweep  uint32
}

func (r Request) encode() []byte {
	buf := make([]byte, requestSize)
	binary.LittleEndian.PutUint32(buf[0:], r.Cmd)
	copy(buf[4:4+abbrevLen], r.Abbrev)
	binary.LittleEndian.PutUint32(buf[4+abbrevLen:], r.Sweep)
	return buf
}

func decodeRequest(buf []byte) (Request, error) {
	if len(buf) != requestSize {
		return Request{}, fmt.Errorf("request of %d bytes, want %d: %w", len(buf), requestSize, ErrProtocol)
	}
	req := Request{
		Cmd:   binary.LittleEndian.Uint32(buf[0:]),
		Sweep: binary.LittleEndian.Uint32(buf[4+abbrevLen:]),
	}
	ab := buf[4 : 4+abbrevLen]
	for i, c := range ab {
		if c == 0 {
			ab = ab[:i]
			break
		}
	}
	req.Abbrev = string(ab)
	if req.Cmd > CmdCorrected {
		return req, fmt.Errorf("subcommand %d: %w", req.Cmd, ErrProtocol)
	}
	return req, nil
}

// Response is the fixed seven-slot reply sent on the socket for every
// request, error or not. Slots a subcommand does not use stay zero.
type Response struct {
	Status    uint32
	NumSweeps uint32
	NumRays   uint32
	NumBins   uint32
	SweepTime float64
	TimeZone  string // 11 bytes on the wire, eg "UTC-05:00"
	ErrFlag   uint32
}

// Ok reports a non-error response.
func (r Response) Ok() bool { return r.Status == StatusOkay }

// WriteResponse writes the reply in wire form.
func WriteResponse(w io.Writer, resp Response) error {
	buf := make([]byte, responseSize)
	binary.LittleEndian.PutUint32(buf[0:], resp.Status)
	binary.LittleEndian.PutUint32(buf[4:], resp.NumSweeps)
	binary.LittleEndian.PutUint32(buf[8:], resp.NumRays)
	binary.LittleEndian.PutUint32(buf[12:], resp.NumBins)
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(resp.SweepTime))
	copy(buf[24:24+timeZoneLen], resp.TimeZone)
	binary.LittleEndian.PutUint32(buf[24+timeZoneLen:], resp.ErrFlag)
	_, err := w.Write(buf)
	return err
}

// ReadResponse reads the reply in wire form.
func ReadResponse(r io.Reader) (Response, error) {
	buf := make([]byte, responseSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Response{}, fmt.Errorf("reading response: %s: %w", err, ErrProtocol)
	}
	resp := Response{
		Status:    binary.LittleEndian.Uint32(buf[0:]),
		NumSweeps: binary.LittleEndian.Uint32(buf[4:]),
		NumRays:   binary.LittleEndian.Uint32(buf[8:]),
		NumBins:   binary.LittleEndian.Uint32(buf[12:]),
		SweepTime: math.Float64frombits(binary.LittleEndian.Uint64(buf[16:])),
		ErrFlag:   binary.LittleEndian.Uint32(buf[24+timeZoneLen:]),
	}
	tz := buf[24 : 24+timeZoneLen]
	for i, c := range tz {
		if c == 0 {
			tz = tz[:i]
			break
		}
	}
	resp.TimeZone = string(tz)
	return resp, nil
}

// SendRequest sends req plus the error and bulk channel fds as
// SCM_RIGHTS ancillary data in a single message. Callers that do not
// need a channel still pass a placeholder (eg /dev/null) so the wire
// shape stays constant.
func SendRequest(conn *net.UnixConn, req Request, errChan, bulkChan *os.File) error {
	oob := unix.UnixRights(int(errChan.Fd()), int(bulkChan.Fd()))
	if _, _, err := conn.WriteMsgUnix(req.encode(), oob, nil); err != nil {
		return fmt.Errorf("sending request: %s: %w", err, sigmet.ErrIOFailure)
	}
	return nil
}

// RecvRequest reads one request and takes ownership of the two passed
// fds. Any deviation from the two-fd shape closes whatever arrived and
// fails with ErrProtocol.
func RecvRequest(conn *net.UnixConn) (Request, *os.File, *os.File, error) {
	buf := make([]byte, requestSize)
	oob := make([]byte, unix.CmsgSpace(2*4)+unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return Request{}, nil, nil, fmt.Errorf("receiving request: %s: %w", err, sigmet.ErrIOFailure)
	}

	var fds []int
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err == nil {
		for _, scm := range scms {
			got, err := unix.ParseUnixRights(&scm)
			if err != nil {
				continue
			}
			fds = append(fds, got...)
		}
	}
	if len(fds) != 2 {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return Request{}, nil, nil, fmt.Errorf("request carried %d fds, want 2: %w", len(fds), ErrProtocol)
	}
	errChan := os.NewFile(uintptr(fds[0]), "error-channel")
	bulkChan := os.NewFile(uintptr(fds[1]), "bulk-channel")

	req, err := decodeRequest(buf[:n])
	if err != nil {
		errChan.Close()
		bulkChan.Close()
		return Request{}, nil, nil, err
	}
	return req, errChan, bulkChan, nil
}

// VolumeHeaderBlock is the VolumeHeaders bulk artifact: the decoded
// volume-header value in its in-memory layout, byte-for-byte compatible
// between a daemon and client built from the same core.
type VolumeHeaderBlock struct {
	Product         sigmet.ProductHdr
	Ingest          sigmet.IngestHeader
	NumSweeps       uint32
	NumRaysPerSweep uint32
	NumBinsOut      uint32
	NumTypes        uint32
	TypeMask        [5]uint32
}

// SweepRecord is one SweepHeaders bulk record.
type SweepRecord struct {
	Time    float64
	Angle   float64
	NumRays uint32
	Spare   uint32
}

// WideRayHeader is one RayHeaders bulk record: the ray header augmented
// with the absolute ray time (extended header derived when available,
// else sweep time plus the coarse offset, NaN when unknown).
type WideRayHeader struct {
	Az0        float64
	El0        float64
	Az1        float64
	El1        float64
	NumBins    uint32
	Spare      uint32
	TimeOffset float64
	Time       float64
}
