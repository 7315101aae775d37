package sigmet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// extHeaderMinSize is the smallest extended ray header the format
// defines; the 32-bit millisecond time word sits at its front.
const extHeaderMinSize = 20

// maxSampleBuffer caps the shared sample allocation at 1 GiB. A header
// asking for more is either corrupt or beyond what a decode should hold
// in memory.
const maxSampleBuffer = 1 << 30

// DecodeConfig carries decoder policy. Strict promotes soft anomalies
// (unknown mask bits, sweep number mismatches) to fatal errors; the CLI
// sets it from SIGMET_STRICT.
type DecodeConfig struct {
	Strict bool
}

// SweepHeader is one decoded sweep's identity.
type SweepHeader struct {
	Time           float64 // seconds since epoch in the stated zone
	Angle          float64 // fixed angle, radians
	StartAzimuth   float64
	StartElevation float64
	NumRays        int
}

// RayHeader is one decoded ray's identity. Angles are radians.
type RayHeader struct {
	Az0        float64
	El0        float64
	Az1        float64
	El1        float64
	NumBins    int
	TimeOffset float64 // seconds from sweep start
}

// Ray is one ray of one data type. DataOffset indexes the volume's
// shared sample buffer, -1 when the ray is absent. Time is the absolute
// ray time: extended header derived when available, otherwise sweep time
// plus the coarse offset, NaN when neither is known.
type Ray struct {
	RayHeader
	DataOffset int64
	Time       float64
}

// Absent reports a ray the file never filled in.
func (r *Ray) Absent() bool { return r.DataOffset < 0 }

// Volume is a fully decoded raw product file. It is immutable after
// Decode returns: Rays index into the shared Samples buffer, which holds
// every bin's storage-form value in file order.
type Volume struct {
	Product ProductHdr
	Ingest  IngestHeader

	// Types is the mask-ordered data type sequence. When the extended
	// header bit is set its pseudo type sits at slot 0.
	Types []*DataType

	Sweeps []SweepHeader
	// Rays is indexed [sweep][ray][type slot].
	Rays [][][]Ray

	// Samples holds the storage-form bins of every present ray.
	Samples []byte

	NumSweeps       int
	NumRaysPerSweep int
	NumBinsOut      int
}

// RayData returns the storage bytes of one ray, nil when absent.
func (v *Volume) RayData(sweep, ray, slot int) []byte {
	r := &v.Rays[sweep][ray][slot]
	if r.Absent() {
		return nil
	}
	n := v.Types[slot].RayDataSize(r.NumBins, v)
	return v.Samples[r.DataOffset : r.DataOffset+int64(n)]
}

// SiteName returns the ingest site name.
func (v *Volume) SiteName() string {
	return trimPadded(v.Ingest.Configuration.SiteName[:])
}

// TaskName returns the task that produced the volume.
func (v *Volume) TaskName() string {
	return trimPadded(v.Product.Configuration.TaskName[:])
}

// TimeZone returns the volume's zone in the 11 byte wire grammar,
// eg "UTC-05:00". Blank means radar local time.
func (v *Volume) TimeZone() string {
	name := trimPadded(v.Ingest.Configuration.TimeZoneName[:])
	return FormatZone(int(v.Ingest.Configuration.GMTOffsetMinutes), name != "")
}

// WavelengthCM returns the radar wavelength in centimeters.
func (v *Volume) WavelengthCM() float64 {
	w := v.Ingest.Task.Misc.Wavelength
	if w == 0 {
		w = v.Product.End.Wavelength
	}
	return float64(w) / 100
}

// NyquistVelocity returns the unambiguous velocity in m/s for the
// volume's PRF and wavelength.
func (v *Volume) NyquistVelocity() float64 {
	prf := v.Ingest.Task.DSP.PRF
	if prf == 0 {
		prf = v.Product.End.PRF
	}
	return float64(prf) * v.WavelengthCM() / 100 / 4
}

// RealTypes returns Types minus the extended header pseudo type.
func (v *Volume) RealTypes() []*DataType {
	out := make([]*DataType, 0, len(v.Types))
	for _, t := range v.Types {
		if !t.IsExtendedHeader() {
			out = append(out, t)
		}
	}
	return out
}

// TypeSlot returns the slot index of t in Types, -1 when not present.
func (v *Volume) TypeSlot(t *DataType) int {
	for i, vt := range v.Types {
		if vt == t {
			return i
		}
	}
	return -1
}

func trimPadded(b []byte) string {
	return strings.TrimRight(strings.TrimRight(string(b), "\x00"), " ")
}

// Decode reads an entire raw product volume from r in one forward pass.
//
// The logical layout (IRIS 3.5.1): record 1 is the product header,
// record 2 the ingest header, records 3.. the sweeps, each a run of
// compressed ray chunks with a raw_prod_bhdr at every record boundary.
func Decode(r io.Reader, cfg DecodeConfig) (*Volume, error) {
	rs := newRecordStream(r)
	v := &Volume{}

	rec, err := rs.rawRecord()
	if err != nil {
		return nil, err
	}
	if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &v.Product); err != nil {
		return nil, fmt.Errorf("product_hdr: %w", ErrTruncatedStream)
	}
	if v.Product.StructHeader.ID != StructIDProductHdr {
		return nil, fmt.Errorf("record 1 structure id %d, want %d: %w", v.Product.StructHeader.ID, StructIDProductHdr, ErrMalformedHeader)
	}

	rec, err = rs.rawRecord()
	if err != nil {
		return nil, err
	}
	if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &v.Ingest); err != nil {
		return nil, fmt.Errorf("ingest_header: %w", ErrTruncatedStream)
	}
	if v.Ingest.StructHeader.ID != StructIDIngestHeader {
		return nil, fmt.Errorf("record 2 structure id %d, want %d: %w", v.Ingest.StructHeader.ID, StructIDIngestHeader, ErrMalformedHeader)
	}

	numSweeps := int(v.Ingest.Task.Scan.NumSweeps)
	if numSweeps <= 0 || numSweeps > MaxSweeps {
		return nil, fmt.Errorf("num_sweeps %d: %w", numSweeps, ErrMalformedHeader)
	}
	v.NumRaysPerSweep = int(v.Ingest.Configuration.NumRaysPerSweep)
	if v.NumRaysPerSweep <= 0 {
		return nil, fmt.Errorf("num_rays_per_sweep %d: %w", v.NumRaysPerSweep, ErrMalformedHeader)
	}
	v.NumBinsOut = int(v.Ingest.Task.Range.NumBinsOut)
	if v.NumBinsOut <= 0 {
		return nil, fmt.Errorf("num_bins_out %d: %w", v.NumBinsOut, ErrMalformedHeader)
	}

	types, unknown := TypesFromMask(v.Ingest.Task.DSP.DataMask)
	for _, bit := range unknown {
		if cfg.Strict {
			return nil, fmt.Errorf("data mask bit %d: %w", bit, ErrUnknownDataType)
		}
		logrus.Warnf("data mask bit %d has no registered type, skipping", bit)
	}
	v.Types = types
	if len(v.RealTypes()) == 0 {
		return nil, fmt.Errorf("data mask holds no real data types: %w", ErrMalformedHeader)
	}

	rayHdrSize := int(v.Ingest.Configuration.RayHeaderSize)
	if rayHdrSize == 0 {
		rayHdrSize = RayHeaderSize
	}
	if rayHdrSize < RayHeaderSize {
		return nil, fmt.Errorf("ray header size %d below %d: %w", rayHdrSize, RayHeaderSize, ErrMalformedHeader)
	}

	numTypes := len(v.Types)
	widest := 0
	maxRayData := 0
	for _, t := range v.Types {
		if w := t.DatumBytes(v); w > widest {
			widest = w
		}
		if n := t.MaxRayDataSize(v); n > maxRayData {
			maxRayData = n
		}
	}
	bufSize := int64(numSweeps) * int64(v.NumRaysPerSweep) * int64(numTypes) * int64(v.NumBinsOut) * int64(widest)
	if bufSize > maxSampleBuffer {
		return nil, fmt.Errorf("sample buffer of %d bytes: %w", bufSize, ErrResourceExhausted)
	}
	v.Samples = make([]byte, bufSize)
	scratch := make([]byte, rayHdrSize+maxRayData)

	logrus.Infof("decoding %s task %s: %d sweeps x %d rays, %d bins, %d types",
		color.CyanString(v.SiteName()), v.TaskName(), numSweeps, v.NumRaysPerSweep, v.NumBinsOut, numTypes)

	var cursor int64
	xhdrSlot := -1
	if v.Types[0].IsExtendedHeader() {
		xhdrSlot = 0
	}

	for sweep := 0; sweep < numSweeps; sweep++ {
		if err := rs.nextDataRecord(); err != nil {
			if err == io.EOF {
				break // fewer sweeps on disk than declared
			}
			return nil, err
		}
		if int(rs.lastHdr.SweepNumber) != sweep+1 {
			if cfg.Strict {
				return nil, fmt.Errorf("record sweep number %d, expected %d: %w", rs.lastHdr.SweepNumber, sweep+1, ErrMalformedHeader)
			}
			logrus.Warnf("record sweep number %d, expected %d", rs.lastHdr.SweepNumber, sweep+1)
		}

		w, err := rs.peekWord()
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err == io.EOF || w == 0 {
			break // no more sweeps
		}

		var ish IngestSweepHeader
		hdr := make([]byte, SweepHdrSize)
		if err := rs.read(hdr); err != nil {
			return nil, err
		}
		if err := binary.Read(bytes.NewReader(hdr), binary.LittleEndian, &ish); err != nil {
			return nil, fmt.Errorf("sweep header: %w", ErrTruncatedStream)
		}

		sh := SweepHeader{
			Time:           ish.StartTime.Seconds64(),
			Angle:          Bin2ToRadians(ish.FixedAngle),
			StartAzimuth:   Bin2ToRadians(ish.StartAzimuth),
			StartElevation: Bin2ToRadians(ish.StartElevation),
			NumRays:        int(ish.NumRaysWritten),
		}
		v.Sweeps = append(v.Sweeps, sh)
		logrus.Debugf("sweep %d @ %s angle=%.2f rays=%d", sweep+1, ish.StartTime, sh.Angle, sh.NumRays)

		grid := make([][]Ray, v.NumRaysPerSweep)
		sweepDone := false
		for ray := 0; ray < v.NumRaysPerSweep; ray++ {
			grid[ray] = make([]Ray, numTypes)
			xhdrTime := math.NaN()
			for slot := 0; slot < numTypes; slot++ {
				entry := &grid[ray][slot]
				entry.DataOffset = -1
				entry.Time = math.NaN()
				if sweepDone {
					continue
				}

				typ := v.Types[slot]
				expected := rayHdrSize + typ.MaxRayDataSize(v)
				chunk := scratch[:expected]
				for i := range chunk {
					chunk[i] = 0
				}
				produced, endSweep, err := rs.decompressChunk(chunk)
				if err != nil {
					return nil, err
				}
				if endSweep {
					sweepDone = true
				}
				if produced == 0 {
					continue // absent ray
				}

				var rh RawRayHeader
				if err := binary.Read(bytes.NewReader(chunk[:RayHeaderSize]), binary.LittleEndian, &rh); err != nil {
					return nil, fmt.Errorf("ray header: %w", ErrTruncatedStream)
				}
				nbins := int(rh.NumBins)
				if nbins < 0 || nbins > v.NumBinsOut {
					return nil, fmt.Errorf("ray bin count %d of %d: %w", nbins, v.NumBinsOut, ErrMalformedHeader)
				}

				entry.RayHeader = RayHeader{
					Az0:        Bin2ToRadians(rh.StartAzimuth),
					El0:        Bin2ToRadians(rh.StartElevation),
					Az1:        Bin2ToRadians(rh.EndAzimuth),
					El1:        Bin2ToRadians(rh.EndElevation),
					NumBins:    nbins,
					TimeOffset: float64(rh.TimeOffset),
				}
				dataLen := typ.RayDataSize(nbins, v)
				copy(v.Samples[cursor:], chunk[rayHdrSize:rayHdrSize+dataLen])
				entry.DataOffset = cursor
				cursor += int64(dataLen)

				if slot == xhdrSlot && dataLen >= 4 {
					if msec, err := ReadU32(chunk[rayHdrSize:rayHdrSize+dataLen], 0); err == nil {
						xhdrTime = sh.Time + float64(msec)/1000
					}
				}
				entry.Time = sh.Time + entry.TimeOffset
			}
			if !math.IsNaN(xhdrTime) {
				for slot := range grid[ray] {
					if !grid[ray][slot].Absent() {
						grid[ray][slot].Time = xhdrTime
					}
				}
			}
		}
		v.Rays = append(v.Rays, grid)

		if !sweepDone {
			// drain to the end-of-sweep token; extra rays beyond the
			// declared count are skipped
			drain := scratch[:rayHdrSize]
			for i := 0; i < 4*v.NumRaysPerSweep*numTypes; i++ {
				_, endSweep, err := rs.decompressChunk(drain)
				if err != nil || endSweep {
					break
				}
			}
		}
		rs.skipToRecordBoundary()
	}

	v.NumSweeps = len(v.Sweeps)
	if v.NumSweeps == 0 {
		return nil, fmt.Errorf("volume holds no sweeps: %w", ErrTruncatedStream)
	}
	v.Samples = v.Samples[:cursor]
	logrus.Infof("decoded %d sweeps, %s of samples", v.NumSweeps, color.CyanString("%d bytes", cursor))
	return v, nil
}
