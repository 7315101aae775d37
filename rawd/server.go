package rawd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/jddeal/go-sigmet/sigmet"
)

// Server holds one decoded volume and serves it to short-lived clients
// over a unix socket, one connection per request. The volume is
// immutable so requests share it without locking.
type Server struct {
	vol  *sigmet.Volume
	path string
	ln   *net.UnixListener
	pool *pond.WorkerPool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer listens on the socket path. A stale socket file from an
// earlier daemon is removed first.
func NewServer(vol *sigmet.Volume, path string, workers int) (*Server, error) {
	if workers <= 0 {
		workers = 4
	}
	os.Remove(path)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %s: %w", path, err, sigmet.ErrIOFailure)
	}
	return &Server{
		vol:    vol,
		path:   path,
		ln:     ln,
		pool:   pond.New(workers, workers*4),
		closed: make(chan struct{}),
	}, nil
}

// Serve accepts until Close. Each accepted connection is handed to the
// worker pool; the accept loop waits only while the pool's bounded queue
// is full.
func (s *Server) Serve() error {
	logrus.Infof("serving %s on %s", s.vol.SiteName(), s.path)
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("accept: %s: %w", err, sigmet.ErrIOFailure)
			}
		}
		c := conn
		s.pool.Submit(func() { s.handle(c) })
	}
}

// Close stops accepting, drains in-flight requests, and removes the
// socket path.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.ln.Close()
		s.pool.StopAndWait()
		os.Remove(s.path)
	})
}

// handle runs one request. The two received fds are owned here and are
// closed on every path out.
func (s *Server) handle(conn *net.UnixConn) {
	defer conn.Close()

	req, errChan, bulkChan, err := RecvRequest(conn)
	if err != nil {
		logrus.Errorf("request rejected: %v", err)
		// still answer with the full seven slots so the client can parse
		WriteResponse(conn, Response{Status: StatusError, TimeZone: s.vol.TimeZone()})
		return
	}
	defer errChan.Close()
	defer bulkChan.Close()

	logrus.Debugf("request cmd=%d type=%q sweep=%#x", req.Cmd, req.Abbrev, req.Sweep)

	resp, bulk, err := s.dispatch(req)
	if err != nil {
		resp = Response{Status: StatusError, TimeZone: s.vol.TimeZone()}
		fmt.Fprintln(errChan, err.Error())
	}
	if werr := WriteResponse(conn, resp); werr != nil {
		logrus.Warnf("writing response: %v", werr)
		return
	}
	if req.Cmd == CmdExit {
		go s.Close()
		return
	}
	if err != nil || bulk == nil {
		return
	}

	if err := bulk(bulkChan); err != nil {
		// a client gone early must never take the daemon down
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe) {
			logrus.Warnf("client closed bulk channel early: %v", err)
		} else {
			logrus.Errorf("writing bulk data: %v", err)
		}
		fmt.Fprintln(errChan, "writing bulk data:", err)
	}
}

type bulkWriter func(w io.Writer) error

// dispatch validates the request and builds the response plus the bulk
// artifact writer. The response is complete before the first bulk byte
// so clients can size their reads from it.
func (s *Server) dispatch(req Request) (Response, bulkWriter, error) {
	v := s.vol
	resp := Response{
		Status:    StatusOkay,
		NumSweeps: uint32(v.NumSweeps),
		NumRays:   uint32(v.NumRaysPerSweep),
		TimeZone:  v.TimeZone(),
	}
	if v.NumSweeps > 0 {
		resp.SweepTime = v.Sweeps[0].Time
	}

	switch req.Cmd {
	case CmdExit:
		return resp, nil, nil

	case CmdVolumeHeaders:
		return resp, s.writeVolumeHeaders, nil

	case CmdSweepHeaders:
		return resp, s.writeSweepHeaders, nil

	case CmdRayHeaders:
		slot, err := s.resolveSlot(req.Abbrev)
		if err != nil {
			return resp, nil, err
		}
		sweeps, err := s.resolveSweeps(req.Sweep)
		if err != nil {
			return resp, nil, err
		}
		resp.NumSweeps = uint32(len(sweeps))
		resp.SweepTime = v.Sweeps[sweeps[0]].Time
		return resp, func(w io.Writer) error { return s.writeRayHeaders(w, sweeps, slot) }, nil

	case CmdData, CmdCorrected:
		slot, err := s.resolveSlot(req.Abbrev)
		if err != nil {
			return resp, nil, err
		}
		if v.Types[slot].IsExtendedHeader() {
			return resp, nil, fmt.Errorf("%s holds no sample data: %w", v.Types[slot].Abbrev, sigmet.ErrBadArgument)
		}
		if req.Sweep == SweepAll {
			return resp, nil, fmt.Errorf("a sweep index is required: %w", sigmet.ErrBadArgument)
		}
		sweep := int(req.Sweep)
		if sweep >= v.NumSweeps {
			return resp, nil, fmt.Errorf("sweep index %d of %d: %w", sweep, v.NumSweeps, sigmet.ErrBadArgument)
		}
		resp.NumSweeps = 1
		resp.SweepTime = v.Sweeps[sweep].Time
		resp.NumBins = s.countSweepBins(sweep, slot)
		corrected := req.Cmd == CmdCorrected
		return resp, func(w io.Writer) error { return s.writeData(w, sweep, slot, corrected) }, nil
	}
	return resp, nil, fmt.Errorf("subcommand %d: %w", req.Cmd, ErrProtocol)
}

// resolveSlot maps an abbreviation to its type slot in the volume. A
// blank abbreviation picks the volume's first real data type.
func (s *Server) resolveSlot(abbrev string) (int, error) {
	v := s.vol
	if abbrev == "" {
		for i, t := range v.Types {
			if !t.IsExtendedHeader() {
				return i, nil
			}
		}
		return 0, fmt.Errorf("volume holds no data types: %w", sigmet.ErrBadArgument)
	}
	t := sigmet.GetByAbbrev(abbrev)
	if t == nil {
		return 0, fmt.Errorf("%s is not a Sigmet data type.", abbrev)
	}
	slot := v.TypeSlot(t)
	if slot < 0 {
		return 0, fmt.Errorf("%s is not in this volume: %w", abbrev, sigmet.ErrBadArgument)
	}
	return slot, nil
}

func (s *Server) resolveSweeps(sel uint32) ([]int, error) {
	if sel == SweepAll {
		all := make([]int, s.vol.NumSweeps)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if int(sel) >= s.vol.NumSweeps {
		return nil, fmt.Errorf("sweep index %d of %d: %w", sel, s.vol.NumSweeps, sigmet.ErrBadArgument)
	}
	return []int{int(sel)}, nil
}

func (s *Server) countSweepBins(sweep, slot int) uint32 {
	var total uint32
	for _, n := range SweepBinCounts(s.vol, sweep, slot) {
		total += uint32(n)
	}
	return total
}

func (s *Server) writeVolumeHeaders(w io.Writer) error {
	v := s.vol
	block := VolumeHeaderBlock{
		Product:         v.Product,
		Ingest:          v.Ingest,
		NumSweeps:       uint32(v.NumSweeps),
		NumRaysPerSweep: uint32(v.NumRaysPerSweep),
		NumBinsOut:      uint32(v.NumBinsOut),
		NumTypes:        uint32(len(v.Types)),
	}
	m := v.Ingest.Task.DSP.DataMask
	block.TypeMask = [5]uint32{m.Word0, m.Word1, m.Word2, m.Word3, m.Word4}
	return binary.Write(w, binary.LittleEndian, &block)
}

func (s *Server) writeSweepHeaders(w io.Writer) error {
	for _, sh := range s.vol.Sweeps {
		rec := SweepRecord{
			Time:    sh.Time,
			Angle:   sh.Angle,
			NumRays: uint32(sh.NumRays),
		}
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) writeRayHeaders(w io.Writer, sweeps []int, slot int) error {
	for _, sweep := range sweeps {
		for ray := 0; ray < s.vol.NumRaysPerSweep; ray++ {
			r := &s.vol.Rays[sweep][ray][slot]
			rec := WideRayHeader{
				Az0:        r.Az0,
				El0:        r.El0,
				Az1:        r.Az1,
				El1:        r.El1,
				NumBins:    uint32(r.NumBins),
				TimeOffset: r.TimeOffset,
				Time:       r.Time,
			}
			if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeData streams one sweep of one type as physical float32 values,
// rays concatenated in order. Absent rays zero-fill.
func (s *Server) writeData(w io.Writer, sweep, slot int, corrected bool) error {
	return binary.Write(w, binary.LittleEndian, SweepValues(s.vol, sweep, slot, corrected))
}
