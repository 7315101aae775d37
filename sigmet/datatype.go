package sigmet

import (
	"encoding/binary"
	"math"

	"github.com/samber/lo"
)

// DataType describes one of the 89 IRIS measurement slots: where it sits
// in the data mask, how wide one bin is on disk, how to print it, and how
// storage values map to physical ones (IRIS 4.4). The decoder only ever
// goes through this table; it never branches on a concrete type.
type DataType struct {
	Abbrev string
	Descr  string
	Bit    int
	Format string // printf verb for physical values

	bits   int                 // storage bits per bin; 0 = volume dependent
	bitsFn func(v *Volume) int // set when bits == 0
	conv   func(dst []float32, src []byte, v *Volume)
	corr   func(dst []float32, v *Volume) // Corrected pipeline step, may be nil
}

// DatumBits returns the storage width of one bin in bits. Widths below 8
// mean bins are packed and unpacked with CopyBitsRightPacked.
func (t *DataType) DatumBits(v *Volume) int {
	if t.bits != 0 {
		return t.bits
	}
	return t.bitsFn(v)
}

// DatumBytes returns the storage width of one bin rounded up to whole
// bytes.
func (t *DataType) DatumBytes(v *Volume) int {
	return (t.DatumBits(v) + 7) / 8
}

// RayDataSize returns the storage bytes holding nbins bins of this type.
func (t *DataType) RayDataSize(nbins int, v *Volume) int {
	return (nbins*t.DatumBits(v) + 7) / 8
}

// MaxRayDataSize returns the storage bytes of a full-width ray.
func (t *DataType) MaxRayDataSize(v *Volume) int {
	return t.RayDataSize(v.NumBinsOut, v)
}

// StorageToValue converts len(dst) bins of storage data from src into
// physical values. Out-of-range storage values come back as NaN.
func (t *DataType) StorageToValue(dst []float32, src []byte, v *Volume) {
	t.conv(dst, src, v)
}

// Correct applies this type's correction pass in place. Types without a
// registered correction pass keep their values.
func (t *DataType) Correct(dst []float32, v *Volume) {
	if t.corr != nil {
		t.corr(dst, v)
	}
}

// IsExtendedHeader reports the extended ray header pseudo type.
func (t *DataType) IsExtendedHeader() bool { return t.Bit == 0 }

var nan32 = float32(math.NaN())

func conv8(f func(n uint8, v *Volume) float64) func([]float32, []byte, *Volume) {
	return func(dst []float32, src []byte, v *Volume) {
		for i := range dst {
			if i >= len(src) {
				dst[i] = nan32
				continue
			}
			dst[i] = float32(f(src[i], v))
		}
	}
}

func conv16(f func(n uint16, v *Volume) float64) func([]float32, []byte, *Volume) {
	return func(dst []float32, src []byte, v *Volume) {
		for i := range dst {
			if 2*i+2 > len(src) {
				dst[i] = nan32
				continue
			}
			dst[i] = float32(f(binary.LittleEndian.Uint16(src[2*i:]), v))
		}
	}
}

// The common IRIS storage encodings. Most treat 0 as "no data" and the
// top code of the range as reserved; width8 keeps the top code as a
// value, and raw8/raw16 map every code.

func db8(n uint8, _ *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return (float64(n) - 64) / 2
}

func db16(n uint16, _ *Volume) float64 {
	if n == 0 || n == 65535 {
		return math.NaN()
	}
	return (float64(n) - 32768) / 100
}

func vel8(n uint8, v *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return (float64(n) - 128) / 127 * v.NyquistVelocity()
}

func vel16(n uint16, _ *Volume) float64 {
	if n == 0 || n == 65535 {
		return math.NaN()
	}
	return (float64(n) - 32768) / 100
}

func width8(n uint8, v *Volume) float64 {
	if n == 0 {
		return math.NaN()
	}
	return float64(n) / 256 * v.NyquistVelocity()
}

func frac8(n uint8, _ *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return (float64(n) - 1) / 253
}

func rho8(n uint8, v *Volume) float64 {
	f := frac8(n, v)
	if math.IsNaN(f) {
		return f
	}
	return math.Sqrt(f)
}

func frac16(n uint16, _ *Volume) float64 {
	if n == 0 || n == 65535 {
		return math.NaN()
	}
	return (float64(n) - 1) / 65533
}

func deg8(n uint8, _ *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return 180 * (float64(n) - 1) / 254
}

func deg16(n uint16, _ *Volume) float64 {
	if n == 0 || n == 65535 {
		return math.NaN()
	}
	return 360 * (float64(n) - 1) / 65534
}

// kdp8 is the classic exponential specific-phase encoding, scaled by the
// radar wavelength in centimeters.
func kdp8(n uint8, v *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	w := v.WavelengthCM()
	if w == 0 {
		w = 10
	}
	switch {
	case n < 128:
		return -0.25 * math.Pow(600, (127-float64(n))/126) / w
	case n > 128:
		return 0.25 * math.Pow(600, (float64(n)-129)/126) / w
	}
	return 0
}

func ldr8(n uint8, _ *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return (float64(n)-1)/5 - 45
}

func rain8(n uint8, _ *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return math.Pow(10, (float64(n)-64)/32)
}

func raw8(n uint8, _ *Volume) float64   { return float64(n) }
func raw16(n uint16, _ *Volume) float64 { return float64(n) }

func milli16(n uint16, _ *Volume) float64 {
	if n == 0 || n == 65535 {
		return math.NaN()
	}
	return (float64(n) - 1) / 1000
}

func pct8(n uint8, _ *Volume) float64 {
	if n == 0 || n == 255 {
		return math.NaN()
	}
	return (float64(n) - 1) * 100 / 253
}

func convFloat32(dst []float32, src []byte, _ *Volume) {
	for i := range dst {
		if 4*i+4 > len(src) {
			dst[i] = nan32
			continue
		}
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
}

// convBits unpacks the 1-bit-per-bin flag type.
func convBits(dst []float32, src []byte, _ *Volume) {
	var b [1]byte
	for i := range dst {
		if err := CopyBitsRightPacked(src, i, 1, b[:]); err != nil {
			dst[i] = nan32
			continue
		}
		dst[i] = float32(b[0])
	}
}

// convNone is for pseudo types with no physical value.
func convNone(dst []float32, _ []byte, _ *Volume) {
	for i := range dst {
		dst[i] = nan32
	}
}

// correctDBZ is the reflectivity-family correction pass: apply the
// calibration offset and mask values under the noise threshold.
func correctDBZ(dst []float32, v *Volume) {
	calib := float32(v.Ingest.Task.Calib.CalibrationDBZ) / 16
	noise := float32(v.Ingest.Task.Calib.ReflectivityNoise) / 16
	for i, f := range dst {
		if math.IsNaN(float64(f)) {
			continue
		}
		f -= calib
		if f < noise {
			f = 0
		}
		dst[i] = f
	}
}

// correctZDR applies the differential-reflectivity bias.
func correctZDR(dst []float32, v *Volume) {
	bias := float32(v.Ingest.Task.Calib.ZDRBias) / 16
	for i, f := range dst {
		if !math.IsNaN(float64(f)) {
			dst[i] = f - bias
		}
	}
}

func xhdrBits(v *Volume) int {
	n := int(v.Ingest.Configuration.ExtendedHeaderSize)
	if n < extHeaderMinSize {
		n = extHeaderMinSize
	}
	return n * 8
}

type dtSpec struct {
	bit    int
	abbrev string
	descr  string
	bits   int
	format string
	conv   func([]float32, []byte, *Volume)
	corr   func([]float32, *Volume)
}

// The 89 IRIS data type slots, in mask bit order. Slot 0 is the extended
// ray header pseudo type and is not a real measurement.
var dtSpecs = []dtSpec{
	{0, "DB_XHDR", "extended ray headers", 0, "%g", convNone, nil},
	{1, "DB_DBT", "uncorrected reflectivity (dBZ)", 8, "%5.1f", conv8(db8), nil},
	{2, "DB_DBZ", "reflectivity (dBZ)", 8, "%5.1f", conv8(db8), correctDBZ},
	{3, "DB_VEL", "radial velocity (m/s)", 8, "%6.1f", conv8(vel8), nil},
	{4, "DB_WIDTH", "spectrum width (m/s)", 8, "%5.1f", conv8(width8), nil},
	{5, "DB_ZDR", "differential reflectivity (dB)", 8, "%5.2f", conv8(db8), correctZDR},
	{6, "DB_ORAIN", "rainfall rate (mm/hr)", 8, "%6.2f", conv8(rain8), nil},
	{7, "DB_DBZC", "corrected reflectivity (dBZ)", 8, "%5.1f", conv8(db8), nil},
	{8, "DB_DBT2", "uncorrected reflectivity (dBZ)", 16, "%6.2f", conv16(db16), nil},
	{9, "DB_DBZ2", "reflectivity (dBZ)", 16, "%6.2f", conv16(db16), correctDBZ},
	{10, "DB_VEL2", "radial velocity (m/s)", 16, "%7.2f", conv16(vel16), nil},
	{11, "DB_WIDTH2", "spectrum width (m/s)", 16, "%6.2f", conv16(vel16), nil},
	{12, "DB_ZDR2", "differential reflectivity (dB)", 16, "%6.2f", conv16(db16), correctZDR},
	{13, "DB_RAINRATE2", "rainfall rate (mm/hr)", 16, "%7.2f", conv16(db16), nil},
	{14, "DB_KDP", "specific differential phase (deg/km)", 8, "%6.2f", conv8(kdp8), nil},
	{15, "DB_KDP2", "specific differential phase (deg/km)", 16, "%6.2f", conv16(db16), nil},
	{16, "DB_PHIDP", "differential phase (deg)", 8, "%6.1f", conv8(deg8), nil},
	{17, "DB_VELC", "unfolded radial velocity (m/s)", 8, "%6.1f", conv8(vel8), nil},
	{18, "DB_SQI", "signal quality index", 8, "%5.3f", conv8(frac8), nil},
	{19, "DB_RHOHV", "cross correlation", 8, "%5.3f", conv8(rho8), nil},
	{20, "DB_RHOHV2", "cross correlation", 16, "%6.4f", conv16(frac16), nil},
	{21, "DB_DBZC2", "corrected reflectivity (dBZ)", 16, "%6.2f", conv16(db16), nil},
	{22, "DB_VELC2", "unfolded radial velocity (m/s)", 16, "%7.2f", conv16(vel16), nil},
	{23, "DB_SQI2", "signal quality index", 16, "%6.4f", conv16(frac16), nil},
	{24, "DB_PHIDP2", "differential phase (deg)", 16, "%6.1f", conv16(deg16), nil},
	{25, "DB_LDRH", "linear depolarization H (dB)", 8, "%5.1f", conv8(ldr8), nil},
	{26, "DB_LDRH2", "linear depolarization H (dB)", 16, "%6.2f", conv16(db16), nil},
	{27, "DB_LDRV", "linear depolarization V (dB)", 8, "%5.1f", conv8(ldr8), nil},
	{28, "DB_LDRV2", "linear depolarization V (dB)", 16, "%6.2f", conv16(db16), nil},
	{29, "DB_FLAGS", "bin flags", 1, "%g", convBits, nil},
	{30, "DB_FLAGS2", "bin flags", 16, "%g", conv16(raw16), nil},
	{31, "DB_FLOAT32", "raw floating point", 32, "%g", convFloat32, nil},
	{32, "DB_HEIGHT", "echo height (km)", 8, "%5.1f", conv8(func(n uint8, _ *Volume) float64 {
		if n == 0 || n == 255 {
			return math.NaN()
		}
		return (float64(n) - 1) / 10
	}), nil},
	{33, "DB_VIL2", "vertically integrated liquid (mm)", 16, "%6.3f", conv16(milli16), nil},
	{34, "DB_NULL", "unused slot", 8, "%g", convNone, nil},
	{35, "DB_SHEAR", "wind shear (m/s per km)", 8, "%6.2f", conv8(func(n uint8, _ *Volume) float64 {
		if n == 0 || n == 255 {
			return math.NaN()
		}
		return (float64(n) - 128) / 5
	}), nil},
	{36, "DB_DIVERGE2", "divergence (1e-4/s)", 16, "%6.2f", conv16(vel16), nil},
	{37, "DB_FLIQUID2", "floated liquid (kg/m2)", 16, "%6.3f", conv16(milli16), nil},
	{38, "DB_USER", "user type", 8, "%g", conv8(raw8), nil},
	{39, "DB_OTHER", "unspecified type", 8, "%g", conv8(raw8), nil},
	{40, "DB_DEFORM2", "deformation (1e-4/s)", 16, "%6.2f", conv16(vel16), nil},
	{41, "DB_VVEL2", "vertical velocity (m/s)", 16, "%7.2f", conv16(vel16), nil},
	{42, "DB_HVEL2", "horizontal velocity (m/s)", 16, "%7.2f", conv16(vel16), nil},
	{43, "DB_HDIR2", "horizontal wind direction (deg)", 16, "%6.1f", conv16(deg16), nil},
	{44, "DB_AXDIL2", "axis of dilation (deg)", 16, "%6.1f", conv16(deg16), nil},
	{45, "DB_TIME2", "time of data (seconds)", 16, "%g", conv16(raw16), nil},
	{46, "DB_RHOH", "Rho, H to V (unitless)", 8, "%5.3f", conv8(rho8), nil},
	{47, "DB_RHOH2", "Rho, H to V (unitless)", 16, "%6.4f", conv16(frac16), nil},
	{48, "DB_RHOV", "Rho, V to H (unitless)", 8, "%5.3f", conv8(rho8), nil},
	{49, "DB_RHOV2", "Rho, V to H (unitless)", 16, "%6.4f", conv16(frac16), nil},
	{50, "DB_PHIH", "Phi, H to V (deg)", 8, "%6.1f", conv8(deg8), nil},
	{51, "DB_PHIH2", "Phi, H to V (deg)", 16, "%6.1f", conv16(deg16), nil},
	{52, "DB_PHIV", "Phi, V to H (deg)", 8, "%6.1f", conv8(deg8), nil},
	{53, "DB_PHIV2", "Phi, V to H (deg)", 16, "%6.1f", conv16(deg16), nil},
	{54, "DB_USER2", "user type", 16, "%g", conv16(raw16), nil},
	{55, "DB_HCLASS", "hydrometeor class", 8, "%3.0f", conv8(raw8), nil},
	{56, "DB_HCLASS2", "hydrometeor class", 16, "%5.0f", conv16(raw16), nil},
	{57, "DB_ZDRC", "corrected differential reflectivity (dB)", 8, "%5.2f", conv8(db8), nil},
	{58, "DB_ZDRC2", "corrected differential reflectivity (dB)", 16, "%6.2f", conv16(db16), nil},
	{59, "DB_TEMPERATURE16", "temperature (C)", 16, "%6.2f", conv16(db16), nil},
	{60, "DB_VIR16", "vertically integrated reflectivity (dB)", 16, "%6.2f", conv16(db16), nil},
	{61, "DB_DBTV8", "total power vertical (dBZ)", 8, "%5.1f", conv8(db8), nil},
	{62, "DB_DBTV16", "total power vertical (dBZ)", 16, "%6.2f", conv16(db16), nil},
	{63, "DB_DBZV8", "clutter corrected reflectivity vertical (dBZ)", 8, "%5.1f", conv8(db8), correctDBZ},
	{64, "DB_DBZV16", "clutter corrected reflectivity vertical (dBZ)", 16, "%6.2f", conv16(db16), correctDBZ},
	{65, "DB_SNR8", "signal to noise (dB)", 8, "%5.1f", conv8(db8), nil},
	{66, "DB_SNR16", "signal to noise (dB)", 16, "%6.2f", conv16(db16), nil},
	{67, "DB_ALBEDO8", "albedo (percent)", 8, "%5.1f", conv8(pct8), nil},
	{68, "DB_ALBEDO16", "albedo (percent)", 16, "%6.2f", conv16(db16), nil},
	{69, "DB_VILD16", "VIL density (g/m3)", 16, "%6.3f", conv16(milli16), nil},
	{70, "DB_TURB16", "turbulence (1/cm^(2/3))", 16, "%6.3f", conv16(milli16), nil},
	{71, "DB_DBTE8", "total power enhanced (dBZ)", 8, "%5.1f", conv8(db8), nil},
	{72, "DB_DBTE16", "total power enhanced (dBZ)", 16, "%6.2f", conv16(db16), nil},
	{73, "DB_DBZE8", "clutter corrected reflectivity enhanced (dBZ)", 8, "%5.1f", conv8(db8), correctDBZ},
	{74, "DB_DBZE16", "clutter corrected reflectivity enhanced (dBZ)", 16, "%6.2f", conv16(db16), correctDBZ},
	{75, "DB_PMI8", "polarimetric meteo index", 8, "%5.3f", conv8(frac8), nil},
	{76, "DB_PMI16", "polarimetric meteo index", 16, "%6.4f", conv16(frac16), nil},
	{77, "DB_LOG8", "log receiver signal (dB)", 8, "%5.1f", conv8(db8), nil},
	{78, "DB_LOG16", "log receiver signal (dB)", 16, "%6.2f", conv16(db16), nil},
	{79, "DB_CSP8", "doppler channel clutter power (dB)", 8, "%5.1f", conv8(db8), nil},
	{80, "DB_CSP16", "doppler channel clutter power (dB)", 16, "%6.2f", conv16(db16), nil},
	{81, "DB_CCOR8", "clutter correction (dB)", 8, "%5.1f", conv8(db8), nil},
	{82, "DB_CCOR16", "clutter correction (dB)", 16, "%6.2f", conv16(db16), nil},
	{83, "DB_AH8", "specific attenuation H (dB/km)", 8, "%5.2f", conv8(db8), nil},
	{84, "DB_AH16", "specific attenuation H (dB/km)", 16, "%6.3f", conv16(db16), nil},
	{85, "DB_AV8", "specific attenuation V (dB/km)", 8, "%5.2f", conv8(db8), nil},
	{86, "DB_AV16", "specific attenuation V (dB/km)", 16, "%6.3f", conv16(db16), nil},
	{87, "DB_ADP8", "specific differential attenuation (dB/km)", 8, "%5.2f", conv8(db8), nil},
	{88, "DB_ADP16", "specific differential attenuation (dB/km)", 16, "%6.3f", conv16(db16), nil},
}

var dataTypes [NumTypes]*DataType
var dataTypesByAbbrev map[string]*DataType

func init() {
	for _, s := range dtSpecs {
		t := &DataType{
			Abbrev: s.abbrev,
			Descr:  s.descr,
			Bit:    s.bit,
			Format: s.format,
			bits:   s.bits,
			conv:   s.conv,
			corr:   s.corr,
		}
		if t.Bit == 0 {
			t.bitsFn = xhdrBits
		}
		dataTypes[s.bit] = t
	}
	dataTypesByAbbrev = lo.KeyBy(dataTypes[:], func(t *DataType) string { return t.Abbrev })
}

// GetByAbbrev looks up a data type by its DB_ abbreviation. Returns nil
// when name is not a Sigmet data type.
func GetByAbbrev(name string) *DataType {
	return dataTypesByAbbrev[name]
}

// Abbrevs returns every registered abbreviation in mask bit order.
func Abbrevs() []string {
	return lo.Map(dataTypes[:], func(t *DataType, _ int) string { return t.Abbrev })
}

// TypesFromMask enumerates the mask in ascending bit order and returns
// the present descriptors. When the extended header bit is set that
// pseudo type comes first. Set bits with no registered descriptor come
// back in unknown.
func TypesFromMask(m DataMask) (types []*DataType, unknown []int) {
	if m.Bit(0) {
		types = append(types, dataTypes[0])
	}
	for bit := 1; bit < 160; bit++ {
		if !m.Bit(bit) {
			continue
		}
		if bit >= NumTypes {
			unknown = append(unknown, bit)
			continue
		}
		types = append(types, dataTypes[bit])
	}
	return types, unknown
}
