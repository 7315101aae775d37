package sigmet

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// Helpers to build a synthetic raw product file the decoder can walk.
// Records are assembled exactly the way the format describes them: two
// header records then token-compressed sweep data with a raw_prod_bhdr
// fronting every record.

type testRay struct {
	absent bool
	hdr    RawRayHeader
	data   []byte
}

type testVolumeSpec struct {
	numSweeps     int
	numRays       int
	numBins       int
	typeBits      []int
	extHeaderSize int16
	startSeconds  int32
	// ray returns the chunk for (sweep, ray, slot); nil means use a
	// generated default
	ray func(sweep, ray, slot int) *testRay
}

func binaryReadStruct(b []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

func structBytes(t *testing.T, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		t.Fatalf("encoding %T: %v", v, err)
	}
	return buf.Bytes()
}

func putWord(out []byte, w uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], w)
	return append(out, b[:]...)
}

// compressChunk emits one ray chunk as a single literal run plus the
// end-of-ray token. Odd byte counts get a pad byte the literal count
// covers; the decoder truncates it away.
func compressChunk(data []byte) []byte {
	var out []byte
	if len(data) > 0 {
		words := (len(data) + 1) / 2
		out = putWord(out, uint16(words))
		out = append(out, data...)
		if len(data)%2 == 1 {
			out = append(out, 0)
		}
	}
	return putWord(out, tokenEndOfRay)
}

func (spec *testVolumeSpec) defaults() {
	if spec.numSweeps == 0 {
		spec.numSweeps = 2
	}
	if spec.numRays == 0 {
		spec.numRays = 4
	}
	if spec.numBins == 0 {
		spec.numBins = 3
	}
	if len(spec.typeBits) == 0 {
		spec.typeBits = []int{2} // DB_DBZ
	}
	if spec.startSeconds == 0 {
		spec.startSeconds = 3600
	}
}

func (spec *testVolumeSpec) defaultRay(sweep, ray, slot int) *testRay {
	bit := spec.typeBits[slot]
	tr := &testRay{
		hdr: RawRayHeader{
			StartAzimuth:   uint16(ray * 0x1000),
			StartElevation: 0x0100,
			EndAzimuth:     uint16(ray*0x1000 + 0x0800),
			EndElevation:   0x0100,
			NumBins:        int16(spec.numBins),
			TimeOffset:     uint16(ray),
		},
	}
	if bit == 0 {
		size := int(spec.extHeaderSize)
		if size < extHeaderMinSize {
			size = extHeaderMinSize
		}
		tr.data = make([]byte, size)
		binary.LittleEndian.PutUint32(tr.data, uint32(ray*250)) // milliseconds
		return tr
	}
	tr.data = make([]byte, spec.numBins)
	for i := range tr.data {
		tr.data[i] = byte(64 + sweep*10 + ray + i)
	}
	return tr
}

func buildTestVolume(t *testing.T, spec testVolumeSpec) []byte {
	t.Helper()
	spec.defaults()

	var out []byte

	// record 1: product header
	prod := ProductHdr{}
	prod.StructHeader.ID = StructIDProductHdr
	prod.StructHeader.FormatVersion = 1
	copy(prod.Configuration.TaskName[:], "PPIVOL_A")
	prod.End.PRF = 1000
	prod.End.Wavelength = 530 // 5.30 cm
	rec := make([]byte, RecordSize)
	copy(rec, structBytes(t, &prod))
	out = append(out, rec...)

	// record 2: ingest header
	ing := IngestHeader{}
	ing.StructHeader.ID = StructIDIngestHeader
	copy(ing.Configuration.SiteName[:], "KXYZ")
	copy(ing.Configuration.TimeZoneName[:], "EST")
	ing.Configuration.GMTOffsetMinutes = -300
	ing.Configuration.NumSweepsCompleted = int16(spec.numSweeps)
	ing.Configuration.NumRaysPerSweep = int16(spec.numRays)
	ing.Configuration.RayHeaderSize = RayHeaderSize
	ing.Configuration.ExtendedHeaderSize = spec.extHeaderSize
	ing.Configuration.VolumeStartTime = YMDSTime{Seconds: spec.startSeconds, Year: 2024, Month: 3, Day: 15}
	ing.Task.Scan.ScanMode = ScanModePPIFull
	ing.Task.Scan.NumSweeps = int16(spec.numSweeps)
	for i := 0; i < spec.numSweeps; i++ {
		binary.LittleEndian.PutUint16(ing.Task.Scan.ScanParamsUnion[4+2*i:], uint16((i+1)*0x0123))
	}
	ing.Task.Range.NumBinsIn = int16(spec.numBins)
	ing.Task.Range.NumBinsOut = int16(spec.numBins)
	ing.Task.Range.StepOut = 100000
	ing.Task.DSP.PRF = 1000
	ing.Task.Misc.Wavelength = 530
	for _, bit := range spec.typeBits {
		ing.Task.DSP.DataMask.SetBit(bit)
	}
	rec = make([]byte, RecordSize)
	copy(rec, structBytes(t, &ing))
	out = append(out, rec...)

	// records 3..: sweeps
	recNum := int16(1)
	for sweep := 0; sweep < spec.numSweeps; sweep++ {
		var payload []byte

		ish := IngestSweepHeader{
			StartTime:       YMDSTime{Seconds: spec.startSeconds + int32(sweep*60), Year: 2024, Month: 3, Day: 15},
			SweepNumber:     int16(sweep + 1),
			FixedAngle:      uint16((sweep + 1) * 0x0123),
			NumRaysExpected: int16(spec.numRays),
			NumRaysWritten:  int16(spec.numRays),
		}
		payload = append(payload, structBytes(t, &ish)...)

		for ray := 0; ray < spec.numRays; ray++ {
			for slot := range spec.typeBits {
				var tr *testRay
				if spec.ray != nil {
					tr = spec.ray(sweep, ray, slot)
				}
				if tr == nil {
					tr = spec.defaultRay(sweep, ray, slot)
				}
				if tr.absent {
					payload = putWord(payload, tokenEndOfRay)
					continue
				}
				chunk := structBytes(t, &tr.hdr)
				chunk = append(chunk, tr.data...)
				payload = append(payload, compressChunk(chunk)...)
			}
		}
		payload = putWord(payload, tokenEndSweep)

		for len(payload) > 0 {
			rec = make([]byte, RecordSize)
			bhdr := RawProdBHdr{RecordNumber: recNum, SweepNumber: int16(sweep + 1)}
			copy(rec, structBytes(t, &bhdr))
			n := copy(rec[RawProdBHdrSize:], payload)
			payload = payload[n:]
			recNum++
			out = append(out, rec...)
		}
	}
	return out
}
