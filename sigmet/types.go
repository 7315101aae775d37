// Package sigmet provides structs and functions for decoding Sigmet/IRIS
// raw product volume files.
//
// The format is described in the IRIS Programmer's Manual ("IRIS" below):
// little-endian throughout, 6144 byte physical records, and a word based
// run-length scheme for the ray data (IRIS 3.5).
package sigmet

const (
	// RecordSize is the size of every physical record regardless of its
	// contents (IRIS 3.5.1).
	RecordSize = 6144

	// RawProdBHdrSize sits in front of every data record.
	RawProdBHdrSize = 12

	// MaxSweeps is the most sweeps a volume may declare.
	MaxSweeps = 40

	// NumTypes is the number of data type slots in the data mask.
	NumTypes = 89

	// RayHeaderSize is the size of the ray header at the front of every
	// decompressed ray chunk.
	RayHeaderSize = 12

	// SweepHdrSize is the size of the sweep header at the front of the
	// first record of each sweep.
	SweepHdrSize = 28
)

// Scan modes (task_scan_info.scan_mode).
const (
	ScanModePPISector = 1
	ScanModeRHI       = 2
	ScanModeManual    = 3
	ScanModePPIFull   = 4
	ScanModeFile      = 5
)

// StructHeader fronts the product and ingest headers (IRIS 3.2.3).
type StructHeader struct {
	ID            int16
	FormatVersion int16
	BytesInStruct int32
	Reserved      int16
	Flags         int16
}

// Structure IDs for StructHeader.ID.
const (
	StructIDProductHdr   = 27
	StructIDIngestHeader = 28
)

// ColorScaleDef is the color scale attached to a product (IRIS 3.3.3).
type ColorScaleDef struct {
	Flags       uint32
	IStart      int32
	IStep       int32
	ColorCount  int16
	SetAndScale uint16
	ScaleLevels [16]uint16
}

// ProductConfiguration identifies the product and when it was made
// (IRIS 3.3.2).
type ProductConfiguration struct {
	StructHeader    StructHeader
	ProductType     uint16
	SchedulingCode  uint16
	SecondsToSkip   int32
	GenerationTime  YMDSTime
	IngestSweepTime YMDSTime
	IngestFileTime  YMDSTime
	Spare1          [6]byte
	ProductName     [12]byte
	TaskName        [12]byte
	Flags           uint16
	XScale          int32
	YScale          int32
	ZScale          int32
	XSize           int32
	YSize           int32
	ZSize           int32
	XLocation       int32
	YLocation       int32
	ZLocation       int32
	MaxRange        int32
	Spare2          [2]byte
	DataTypeOut     uint16
	ProjectionName  [12]byte
	InputDataType   uint16
	ProjectionType  uint8
	Spare3          [1]byte
	RadialSmoother  int16
	TimesRun        int16
	ZRConstant      int32
	ZRExponent      int32
	XSmoother       int16
	YSmoother       int16
	ProductSpecific [80]byte
	MinorTaskSuffix [16]byte
	Spare4          [12]byte
	ColorScale      ColorScaleDef
}

// ProductEnd describes the radar site and acquisition parameters of the
// product (IRIS 3.3.4). Lat and Lon are 32-bit binary angles.
type ProductEnd struct {
	SiteName          [16]byte
	IrisVersionProd   [8]byte
	IrisVersionIngest [8]byte
	IngestTime        YMDSTime
	Spare1            [28]byte
	GMTOffsetMinutes  int16
	HardwareName      [16]byte
	IngestSiteName    [16]byte
	RecordedGMTOffset int16
	Latitude          uint32
	Longitude         uint32
	GroundHeight      int16
	RadarHeight       int16
	PRF               int32 // hertz
	PulseWidth        int32 // 1/100 microseconds
	SignalProcessor   uint16
	TriggerRate       uint16
	SamplesUsed       int16
	ClutterFilter     [12]byte
	LinearFilterNum   uint16
	Wavelength        int32 // 1/100 centimeters
	TruncationHeight  int32
	FirstBinRange     int32 // centimeters
	LastBinRange      int32 // centimeters
	NumBinsOut        int32
	FlagWord          uint16
	PolarizationType  uint16
	HorizCalibration  int16
	VertCalibration   int16
	Spare2            [8]byte
	ProjectionRefLat  uint32
	ProjectionRefLon  uint32
	StandardParallel1 uint32
	StandardParallel2 uint32
	EquatorialRadius  uint32
	FlatteningInverse uint32
	FaultStatus       uint32
	SiteMask          uint32
	LogFilterFirstBin uint16
	DSPClutterMap     uint16
	ProjectionType2   uint16
	Spare3            [32]byte
}

// ProductHdr is the first record of a raw product file (IRIS 3.3.1).
type ProductHdr struct {
	StructHeader  StructHeader
	Configuration ProductConfiguration
	End           ProductEnd
}

// IngestConfiguration is the file-level bookkeeping inside the ingest
// header (IRIS 3.4.2).
type IngestConfiguration struct {
	FileName           [80]byte
	NumSweepsCompleted int16
	TotalSizeBytes     int32
	VolumeStartTime    YMDSTime
	Spare1             [12]byte
	RayHeaderSize      int16
	ExtendedHeaderSize int16
	NumRaysPerSweep    int16
	PlaybackVersion    int16
	Spare2             [4]byte
	IrisVersion        [8]byte
	HardwareSiteName   [16]byte
	GMTOffsetMinutes   int16
	SiteName           [16]byte
	RecordedGMTOffset  int16
	Latitude           uint32
	Longitude          uint32
	GroundHeight       int16
	RadarHeight        int16
	Resolution         uint16
	IndexOfFirstRay    uint16
	TimeZoneName       [8]byte
	Flags              uint32
	ConfigurationName  [16]byte
	Spare3             [228]byte
}

// TaskSchedInfo is when and how often the task runs (IRIS 3.4.4).
type TaskSchedInfo struct {
	StartSeconds   int32
	StopSeconds    int32
	SkipSeconds    int32
	LastRunSeconds int32
	TimeUsed       int32
	LastRunDay     int32
	Flag           uint16
	Spare          [94]byte
}

// DataMask identifies which of the 160 data type slots are present
// (IRIS 3.4.5.1). Only bits below NumTypes are meaningful. Bit 0 of
// Word0 is the extended header pseudo type, with ExtHeaderType giving
// its format code.
type DataMask struct {
	Word0         uint32
	ExtHeaderType uint32
	Word1         uint32
	Word2         uint32
	Word3         uint32
	Word4         uint32
}

// Words returns the five mask words in bit order.
func (m DataMask) Words() [5]uint32 {
	return [5]uint32{m.Word0, m.Word1, m.Word2, m.Word3, m.Word4}
}

// Bit reports whether type slot i is present.
func (m DataMask) Bit(i int) bool {
	if i < 0 || i >= 160 {
		return false
	}
	return m.Words()[i/32]&(1<<(i%32)) != 0
}

// SetBit sets type slot i.
func (m *DataMask) SetBit(i int) {
	switch i / 32 {
	case 0:
		m.Word0 |= 1 << (i % 32)
	case 1:
		m.Word1 |= 1 << (i % 32)
	case 2:
		m.Word2 |= 1 << (i % 32)
	case 3:
		m.Word3 |= 1 << (i % 32)
	case 4:
		m.Word4 |= 1 << (i % 32)
	}
}

// TaskDSPInfo is the signal processor configuration (IRIS 3.4.5).
type TaskDSPInfo struct {
	MajorMode        uint16
	DSPType          uint16
	DataMask         DataMask
	OriginalDataMask DataMask
	PRF              int32 // hertz
	PulseWidth       int32 // 1/100 microseconds
	MultiPRFMode     uint16
	DualPRFDelay     int16
	AGCFeedback      uint16
	SampleSize       int16
	GainControlFlag  uint16
	ClutterFileName  [12]byte
	LinearFilterNum  uint8
	LogFilterNum     uint8
	AttenuationFixed int16
	GasAttenuation   uint16
	ClutterFlag      uint16
	XmtPhaseSequence uint16
	RayHeaderMask    uint32
	TimeSeriesFlag   uint16
	Spare            [2]byte
	CustomRayHeader  [16]byte
}

// TaskCalibInfo is the calibration configuration (IRIS 3.4.6).
type TaskCalibInfo struct {
	ReflectivitySlope     int16 // 1/4096 dB/A/D count
	ReflectivityNoise     int16 // 1/16 dB noise threshold
	ClutterCorrection     int16 // 1/16 dB
	SQIThreshold          int16 // 1/256
	PowerThreshold        int16 // 1/16 dBZ
	Spare1                [8]byte
	CalibrationDBZ        int16 // 1/16 dBZ
	ThresholdFlagsDBT     uint16
	ThresholdFlagsDBZ     uint16
	ThresholdFlagsVel     uint16
	ThresholdFlagsWidth   uint16
	ThresholdFlagsZDR     uint16
	Spare2                [6]byte
	Flags                 uint16
	Spare3                [2]byte
	ZDRBias               int16 // 1/16 dB
	NoiseThresholdDBT     int16
	NoiseThresholdDBZ     int16
	NoiseThresholdVel     int16
	NoiseThresholdWidth   int16
	NoiseThresholdZDR     int16
	RadarConstantHoriz    int16
	RadarConstantVert     int16
	ReceiverBandwidthKHz  uint16
	Spare4                [50]byte
}

// TaskRangeInfo is the range bin configuration (IRIS 3.4.7).
type TaskRangeInfo struct {
	FirstBinRange  int32 // centimeters
	LastBinRange   int32 // centimeters
	NumBinsIn      int16
	NumBinsOut     int16
	StepIn         int32 // centimeters
	StepOut        int32 // centimeters
	AveragingFlag  uint16
	RangeSmoothing int16
}

// TaskScanInfo is the antenna scan strategy (IRIS 3.4.8). The union
// holds the per-mode angle lists; SweepAngles decodes it.
type TaskScanInfo struct {
	ScanMode        uint16
	Resolution      int16 // desired angular resolution in 1/1000 degrees
	ScanSpeed       uint16
	NumSweeps       int16
	ScanParamsUnion [200]byte
	Spare           [112]byte
}

// SweepAngles returns the per-sweep fixed angles (radians) from the scan
// union. For PPI modes these are the elevation list, for RHI the azimuth
// list; both are stored as bin2 values starting at byte 4 of the union
// (the first two words are the sector limits).
func (s TaskScanInfo) SweepAngles() []float64 {
	n := int(s.NumSweeps)
	if n < 0 {
		n = 0
	}
	if n > MaxSweeps {
		n = MaxSweeps
	}
	angles := make([]float64, n)
	for i := 0; i < n; i++ {
		u, err := ReadU16(s.ScanParamsUnion[:], 4+2*i)
		if err != nil {
			break
		}
		angles[i] = Bin2ToRadians(u)
	}
	return angles
}

// TaskMiscInfo holds transmitter and wavelength details (IRIS 3.4.9).
type TaskMiscInfo struct {
	Wavelength       int32 // 1/100 centimeters
	TRSerialNumber   [16]byte
	TransmitPower    int32 // watts
	Flags            uint16
	PolarizationType uint16
	TruncationHeight int32 // centimeters above radar
	Spare1           [18]byte
	CommentBytes     int16
	HorizBeamWidth   uint32 // bin4
	VertBeamWidth    uint32 // bin4
	CustomStorage    [40]byte
	Spare2           [8]byte
}

// TaskEndInfo closes out the task configuration (IRIS 3.4.10).
type TaskEndInfo struct {
	TaskMajorNumber int16
	TaskMinorNumber int16
	TaskConfigFile  [12]byte
	TaskDescription [80]byte
	NumTasks        int32
	TaskState       uint16
	Spare1          [2]byte
	DataTime        YMDSTime
	Spare2          [204]byte
}

// TaskConfiguration nests the task sub-configurations (IRIS 3.4.3).
type TaskConfiguration struct {
	StructHeader StructHeader
	Sched        TaskSchedInfo
	DSP          TaskDSPInfo
	Calib        TaskCalibInfo
	Range        TaskRangeInfo
	Scan         TaskScanInfo
	Misc         TaskMiscInfo
	End          TaskEndInfo
}

// IngestHeader is the second record of a raw product file (IRIS 3.4.1).
type IngestHeader struct {
	StructHeader  StructHeader
	Configuration IngestConfiguration
	Task          TaskConfiguration
}

// RawProdBHdr fronts every data record (IRIS 3.5.2). SweepNumber is
// 1-based; FirstRayByteOffset is the offset of the first ray header that
// starts in this record, or -1 when no ray starts here.
type RawProdBHdr struct {
	RecordNumber       int16
	SweepNumber        int16
	FirstRayByteOffset int16
	RayNumber          int16
	Flags              uint16
	Spare              int16
}

// IngestSweepHeader begins each sweep, immediately after the bhdr of the
// sweep's first record (IRIS 3.5.3). Angles are bin2.
type IngestSweepHeader struct {
	StartTime       YMDSTime
	SweepNumber     int16
	StartAzimuth    uint16
	StartElevation  uint16
	FixedAngle      uint16
	NumRaysExpected int16
	NumRaysWritten  int16
	Spare           [4]byte
}

// RawRayHeader is the header at the front of every decompressed ray
// chunk (IRIS 3.5.4). Angles are bin2; TimeOffset is whole seconds from
// the sweep start.
type RawRayHeader struct {
	StartAzimuth   uint16
	StartElevation uint16
	EndAzimuth     uint16
	EndElevation   uint16
	NumBins        int16
	TimeOffset     uint16
}
