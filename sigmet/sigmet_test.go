package sigmet

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSmallVolume(t *testing.T) {
	require := require.New(t)

	// 2 sweeps x 4 rays x 3 bins of 8-bit DB_DBZ
	raw := buildTestVolume(t, testVolumeSpec{})
	vol, err := Decode(bytes.NewReader(raw), DecodeConfig{})
	require.NoError(err)

	require.Equal(2, vol.NumSweeps)
	require.Equal(4, vol.NumRaysPerSweep)
	require.Equal(3, vol.NumBinsOut)
	require.Len(vol.Types, 1)
	require.Equal("DB_DBZ", vol.Types[0].Abbrev)
	require.Len(vol.Sweeps, 2)
	require.Len(vol.Rays, 2)

	// every ray present with exactly 3 storage bytes; the sample
	// buffer holds 2*4*1*3 bytes
	require.Len(vol.Samples, 24)
	for s := 0; s < 2; s++ {
		for r := 0; r < 4; r++ {
			ray := &vol.Rays[s][r][0]
			require.False(ray.Absent())
			require.Equal(3, ray.NumBins)
			data := vol.RayData(s, r, 0)
			require.Len(data, 3)
			require.Equal(byte(64+s*10+r), data[0])
		}
	}

	angles := vol.Ingest.Task.Scan.SweepAngles()
	require.Len(angles, 2)
	require.InDelta(vol.Sweeps[0].Angle, angles[0], 1e-12)
	require.InDelta(vol.Sweeps[1].Angle, angles[1], 1e-12)

	require.Equal("KXYZ", vol.SiteName())
	require.Equal("PPIVOL_A", vol.TaskName())
	require.Equal("UTC-05:00", vol.TimeZone())
	require.Greater(vol.Sweeps[1].Time, vol.Sweeps[0].Time)
}

func TestDecodeInvariants(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{numSweeps: 3, numRays: 5, numBins: 7, typeBits: []int{1, 3}})
	vol, err := Decode(bytes.NewReader(raw), DecodeConfig{})
	require.NoError(err)

	require.LessOrEqual(vol.NumSweeps, MaxSweeps)
	require.LessOrEqual(len(vol.Types), NumTypes)

	seen := map[string]bool{}
	for _, typ := range vol.Types {
		require.False(seen[typ.Abbrev], "duplicate type %s", typ.Abbrev)
		seen[typ.Abbrev] = true
	}

	for s := range vol.Rays {
		for r := range vol.Rays[s] {
			for slot, ray := range vol.Rays[s][r] {
				for _, a := range []float64{ray.Az0, ray.Az1, ray.El0, ray.El1} {
					require.False(math.IsNaN(a) || math.IsInf(a, 0))
					require.GreaterOrEqual(a, 0.0)
					require.Less(a, 2*math.Pi)
				}
				require.LessOrEqual(ray.NumBins, vol.NumBinsOut)
				if !ray.Absent() {
					end := ray.DataOffset + int64(vol.Types[slot].RayDataSize(ray.NumBins, vol))
					require.LessOrEqual(end, int64(len(vol.Samples)))
				}
			}
		}
	}
}

func TestDecodeExtendedHeaderTime(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{typeBits: []int{0, 2}, extHeaderSize: 20})
	vol, err := Decode(bytes.NewReader(raw), DecodeConfig{})
	require.NoError(err)

	require.Len(vol.Types, 2)
	require.True(vol.Types[0].IsExtendedHeader(), "extended header type must be slot 0")
	require.Equal("DB_DBZ", vol.Types[1].Abbrev)

	// ray times come from the extended header milliseconds, not the
	// coarse ray header offset
	sweepTime := vol.Sweeps[0].Time
	for r := 0; r < vol.NumRaysPerSweep; r++ {
		ray := &vol.Rays[0][r][1]
		require.InDelta(sweepTime+float64(r)*0.250, ray.Time, 1e-9)
	}
}

func TestDecodeAbsentRays(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{
		ray: func(sweep, ray, slot int) *testRay {
			if sweep == 0 && ray == 2 {
				return &testRay{absent: true}
			}
			return nil
		},
	})
	vol, err := Decode(bytes.NewReader(raw), DecodeConfig{})
	require.NoError(err)

	require.True(vol.Rays[0][2][0].Absent())
	require.Nil(vol.RayData(0, 2, 0))
	require.True(math.IsNaN(vol.Rays[0][2][0].Time))
	require.False(vol.Rays[0][1][0].Absent())
	require.False(vol.Rays[1][2][0].Absent())
}

func TestDecodeTruncated(t *testing.T) {
	require := require.New(t)

	raw := buildTestVolume(t, testVolumeSpec{})

	// mid header record
	_, err := Decode(bytes.NewReader(raw[:10000]), DecodeConfig{})
	require.ErrorIs(err, ErrTruncatedStream)

	// mid data record
	_, err = Decode(bytes.NewReader(raw[:len(raw)-100]), DecodeConfig{})
	require.ErrorIs(err, ErrTruncatedStream)

	// empty stream
	_, err = Decode(bytes.NewReader(nil), DecodeConfig{})
	require.ErrorIs(err, ErrTruncatedStream)
}

func TestDecodeMalformedHeaders(t *testing.T) {
	require := require.New(t)

	// too many sweeps
	raw := buildTestVolume(t, testVolumeSpec{})
	patchIngest(t, raw, func(ing *IngestHeader) { ing.Task.Scan.NumSweeps = MaxSweeps + 1 })
	_, err := Decode(bytes.NewReader(raw), DecodeConfig{})
	require.ErrorIs(err, ErrMalformedHeader)

	// zero bins out
	raw = buildTestVolume(t, testVolumeSpec{})
	patchIngest(t, raw, func(ing *IngestHeader) { ing.Task.Range.NumBinsOut = 0 })
	_, err = Decode(bytes.NewReader(raw), DecodeConfig{})
	require.ErrorIs(err, ErrMalformedHeader)

	// no real data types: just the extended header bit
	raw = buildTestVolume(t, testVolumeSpec{})
	patchIngest(t, raw, func(ing *IngestHeader) { ing.Task.DSP.DataMask = DataMask{Word0: 1} })
	_, err = Decode(bytes.NewReader(raw), DecodeConfig{})
	require.ErrorIs(err, ErrMalformedHeader)

	// wrong structure id in record 1
	raw = buildTestVolume(t, testVolumeSpec{})
	raw[0] = 99
	_, err = Decode(bytes.NewReader(raw), DecodeConfig{})
	require.ErrorIs(err, ErrMalformedHeader)
}

func TestDecodeUnknownMaskBit(t *testing.T) {
	require := require.New(t)

	build := func() []byte {
		raw := buildTestVolume(t, testVolumeSpec{})
		patchIngest(t, raw, func(ing *IngestHeader) { ing.Task.DSP.DataMask.SetBit(120) })
		return raw
	}

	// soft by default: the unknown slot is skipped
	vol, err := Decode(bytes.NewReader(build()), DecodeConfig{})
	require.NoError(err)
	require.Len(vol.Types, 1)

	// fatal under strict
	_, err = Decode(bytes.NewReader(build()), DecodeConfig{Strict: true})
	require.ErrorIs(err, ErrUnknownDataType)
}

// patchIngest rewrites the ingest header record in place.
func patchIngest(t *testing.T, raw []byte, mutate func(*IngestHeader)) {
	t.Helper()
	var ing IngestHeader
	rec := raw[RecordSize : 2*RecordSize]
	require.NoError(t, binaryReadStruct(rec, &ing))
	mutate(&ing)
	copy(rec, structBytes(t, &ing))
}
