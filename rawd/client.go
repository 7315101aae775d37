package rawd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/jddeal/go-sigmet/sigmet"
)

// Client talks to a running daemon. Every call is its own connection:
// connect, send the request plus two pipe fds, read the seven-slot
// reply, drain the bulk channel to EOF.
type Client struct {
	Path string
}

// Dial returns a client for the daemon at the socket path.
func Dial(path string) *Client {
	return &Client{Path: path}
}

// roundTrip runs one request. When wantBulk is false the daemon still
// gets a placeholder bulk fd (/dev/null) so the message shape stays
// constant.
func (c *Client) roundTrip(req Request, wantBulk bool) (Response, []byte, error) {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: c.Path, Net: "unix"})
	if err != nil {
		return Response{}, nil, fmt.Errorf("connecting to %s: %s: %w", c.Path, err, sigmet.ErrIOFailure)
	}
	defer conn.Close()

	errR, errW, err := os.Pipe()
	if err != nil {
		return Response{}, nil, fmt.Errorf("%s: %w", err, sigmet.ErrResourceExhausted)
	}
	defer errR.Close()

	var bulkR, bulkW *os.File
	if wantBulk {
		bulkR, bulkW, err = os.Pipe()
		if err != nil {
			errW.Close()
			return Response{}, nil, fmt.Errorf("%s: %w", err, sigmet.ErrResourceExhausted)
		}
		defer bulkR.Close()
	} else {
		bulkW, err = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			errW.Close()
			return Response{}, nil, fmt.Errorf("%s: %w", err, sigmet.ErrIOFailure)
		}
	}

	sendErr := SendRequest(conn, req, errW, bulkW)
	// the daemon holds its own copies now; drop ours so EOF propagates
	errW.Close()
	bulkW.Close()
	if sendErr != nil {
		return Response{}, nil, sendErr
	}

	resp, err := ReadResponse(conn)
	if err != nil {
		return Response{}, nil, err
	}

	var bulk []byte
	if wantBulk {
		bulk, err = io.ReadAll(bulkR)
		if err != nil {
			return resp, nil, fmt.Errorf("reading bulk channel: %s: %w", err, sigmet.ErrIOFailure)
		}
	}
	detail, _ := io.ReadAll(errR)

	if !resp.Ok() {
		msg := strings.TrimSpace(string(detail))
		if msg == "" {
			msg = "daemon reported an error"
		}
		return resp, bulk, fmt.Errorf("%s", msg)
	}
	if len(detail) > 0 {
		return resp, bulk, fmt.Errorf("%s", strings.TrimSpace(string(detail)))
	}
	return resp, bulk, nil
}

// Exit asks the daemon to shut down.
func (c *Client) Exit() error {
	_, _, err := c.roundTrip(Request{Cmd: CmdExit, Sweep: SweepAll}, false)
	return err
}

// VolumeHeaders fetches the decoded volume-header value.
func (c *Client) VolumeHeaders() (*VolumeHeaderBlock, Response, error) {
	resp, bulk, err := c.roundTrip(Request{Cmd: CmdVolumeHeaders, Sweep: SweepAll}, true)
	if err != nil {
		return nil, resp, err
	}
	block := &VolumeHeaderBlock{}
	if err := binary.Read(bytes.NewReader(bulk), binary.LittleEndian, block); err != nil {
		return nil, resp, fmt.Errorf("volume header block of %d bytes: %w", len(bulk), ErrProtocol)
	}
	return block, resp, nil
}

// SweepHeaders fetches every sweep header.
func (c *Client) SweepHeaders() ([]SweepRecord, Response, error) {
	resp, bulk, err := c.roundTrip(Request{Cmd: CmdSweepHeaders, Sweep: SweepAll}, true)
	if err != nil {
		return nil, resp, err
	}
	recs := make([]SweepRecord, resp.NumSweeps)
	if err := binary.Read(bytes.NewReader(bulk), binary.LittleEndian, recs); err != nil {
		return nil, resp, fmt.Errorf("sweep headers of %d bytes: %w", len(bulk), ErrProtocol)
	}
	return recs, resp, nil
}

// RayHeaders fetches wide ray headers for one sweep, or all sweeps with
// SweepAll. The records come back sweep-major, ray-minor.
func (c *Client) RayHeaders(sweep uint32, abbrev string) ([]WideRayHeader, Response, error) {
	resp, bulk, err := c.roundTrip(Request{Cmd: CmdRayHeaders, Abbrev: abbrev, Sweep: sweep}, true)
	if err != nil {
		return nil, resp, err
	}
	recs := make([]WideRayHeader, int(resp.NumSweeps)*int(resp.NumRays))
	if err := binary.Read(bytes.NewReader(bulk), binary.LittleEndian, recs); err != nil {
		return nil, resp, fmt.Errorf("ray headers of %d bytes: %w", len(bulk), ErrProtocol)
	}
	return recs, resp, nil
}

// Data fetches one sweep of one type as physical float32 values, rays
// concatenated; corrected selects the correction pipeline.
func (c *Client) Data(sweep uint32, abbrev string, corrected bool) ([]float32, Response, error) {
	cmd := CmdData
	if corrected {
		cmd = CmdCorrected
	}
	resp, bulk, err := c.roundTrip(Request{Cmd: cmd, Abbrev: abbrev, Sweep: sweep}, true)
	if err != nil {
		return nil, resp, err
	}
	values := make([]float32, resp.NumBins)
	if err := binary.Read(bytes.NewReader(bulk), binary.LittleEndian, values); err != nil {
		return nil, resp, fmt.Errorf("data stream of %d bytes: %w", len(bulk), ErrProtocol)
	}
	return values, resp, nil
}
