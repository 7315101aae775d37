package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jddeal/go-sigmet/rawd"
	"github.com/jddeal/go-sigmet/sigmet"
)

var binaryOut bool
var correctedOut bool

var dataCmd = &cobra.Command{
	Use:   "data <type> <sweep> <file|socket>",
	Short: "print one sweep of one data type",
	Args:  cobra.ExactArgs(3),
	Run:   runData,
}

var rayHeadersCmd = &cobra.Command{
	Use:   "ray_headers <sweep|all> [<type>] <file|socket>",
	Short: "print ray headers",
	Args:  cobra.RangeArgs(2, 3),
	Run:   runRayHeaders,
}

var sweepHeadersCmd = &cobra.Command{
	Use:   "sweep_headers <file|socket>",
	Short: "print sweep headers",
	Args:  cobra.ExactArgs(1),
	Run:   runSweepHeaders,
}

var volumeHeadersCmd = &cobra.Command{
	Use:   "volume_headers <file|socket>",
	Short: "print the volume headers",
	Args:  cobra.ExactArgs(1),
	Run:   runVolumeHeaders,
}

var exitCmd = &cobra.Command{
	Use:   "exit <socket>",
	Short: "ask a daemon to shut down",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := rawd.Dial(args[0]).Exit(); err != nil {
			fatalf("%s", err)
		}
	},
}

func init() {
	dataCmd.Flags().BoolVarP(&binaryOut, "binary", "b", false, "write raw float32 values instead of text")
	dataCmd.Flags().BoolVar(&correctedOut, "corrected", false, "apply the per-type correction pipeline")
	rootCmd.AddCommand(dataCmd, rayHeadersCmd, sweepHeadersCmd, volumeHeadersCmd, exitCmd)
}

func isSocket(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeSocket != 0
}

func parseSweep(arg string) uint32 {
	if arg == "all" {
		return rawd.SweepAll
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		fatalf("%q: sweep index must be a non-negative integer or \"all\"", arg)
	}
	return uint32(n)
}

func trimz(b []byte) string {
	return strings.TrimRight(strings.TrimRight(string(b), "\x00"), " ")
}

// setZone points TZ at the volume's reported zone and returns the
// location used to format its times. Blank means radar local.
func setZone(tz string) *time.Location {
	if tz == "" {
		return time.Local
	}
	os.Setenv("TZ", tz)
	spec := strings.TrimPrefix(tz, "UTC")
	sign := 1
	switch {
	case strings.HasPrefix(spec, "-"):
		sign = -1
		spec = spec[1:]
	case strings.HasPrefix(spec, "+"):
		spec = spec[1:]
	}
	hh, mm, _ := strings.Cut(spec, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return time.FixedZone(tz, sign*(h*3600+m*60))
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }

// resolveSlot picks the type slot in a decoded volume; blank means the
// first real data type.
func resolveSlot(vol *sigmet.Volume, abbrev string) int {
	if abbrev == "" {
		for i, t := range vol.Types {
			if !t.IsExtendedHeader() {
				return i
			}
		}
		fatalf("volume holds no data types")
	}
	t := sigmet.GetByAbbrev(abbrev)
	if t == nil {
		fatalf("%s is not a Sigmet data type.", abbrev)
	}
	slot := vol.TypeSlot(t)
	if slot < 0 {
		fatalf("%s is not in this volume", abbrev)
	}
	return slot
}

func runData(cmd *cobra.Command, args []string) {
	abbrev, sweepArg, path := args[0], args[1], args[2]
	sweep := parseSweep(sweepArg)
	if sweep == rawd.SweepAll {
		fatalf("data needs a single sweep index")
	}

	var values []float32
	var counts []int
	var format string

	if isSocket(path) {
		c := rawd.Dial(path)
		vh, _, err := c.VolumeHeaders()
		if err != nil {
			fatalf("%s", err)
		}
		hdrs, _, err := c.RayHeaders(sweep, abbrev)
		if err != nil {
			fatalf("%s", err)
		}
		var resp rawd.Response
		values, resp, err = c.Data(sweep, abbrev, correctedOut)
		if err != nil {
			fatalf("%s", err)
		}
		setZone(resp.TimeZone)
		counts = make([]int, len(hdrs))
		for i, h := range hdrs {
			if math.IsNaN(h.Time) {
				counts[i] = int(vh.NumBinsOut)
			} else {
				counts[i] = int(h.NumBins)
			}
		}
		if t := sigmet.GetByAbbrev(abbrev); t != nil {
			format = t.Format
		}
	} else {
		vol, err := loadVolume(path)
		if err != nil {
			fatalf("%s: %s", path, err)
		}
		if int(sweep) >= vol.NumSweeps {
			fatalf("sweep index %d of %d", sweep, vol.NumSweeps)
		}
		setZone(vol.TimeZone())
		slot := resolveSlot(vol, abbrev)
		values = rawd.SweepValues(vol, int(sweep), slot, correctedOut)
		counts = rawd.SweepBinCounts(vol, int(sweep), slot)
		format = vol.Types[slot].Format
	}

	if binaryOut {
		if err := binary.Write(os.Stdout, binary.LittleEndian, values); err != nil {
			fatalf("writing values: %s", err)
		}
		return
	}
	if format == "" {
		format = "%g"
	}
	printSweepValues(values, counts, format)
}

func printSweepValues(values []float32, counts []int, format string) {
	pos := 0
	for ray, n := range counts {
		if pos+n > len(values) {
			n = len(values) - pos
		}
		fmt.Printf("ray %d: %d bins\n", ray, n)
		for i := 0; i < n; i++ {
			fmt.Printf(format, values[pos+i])
			if (i+1)%8 == 0 || i == n-1 {
				fmt.Println()
			} else {
				fmt.Print(" ")
			}
		}
		pos += n
	}
}

func runRayHeaders(cmd *cobra.Command, args []string) {
	sweepArg := args[0]
	abbrev := ""
	path := args[len(args)-1]
	if len(args) == 3 {
		abbrev = args[1]
	}
	sweep := parseSweep(sweepArg)

	if isSocket(path) {
		c := rawd.Dial(path)
		hdrs, resp, err := c.RayHeaders(sweep, abbrev)
		if err != nil {
			fatalf("%s", err)
		}
		loc := setZone(resp.TimeZone)
		first := 0
		if sweep != rawd.SweepAll {
			first = int(sweep)
		}
		for i, h := range hdrs {
			s := first + i/int(resp.NumRays)
			printWideRayHeader(s, i%int(resp.NumRays), h, loc)
		}
		return
	}

	vol, err := loadVolume(path)
	if err != nil {
		fatalf("%s: %s", path, err)
	}
	loc := setZone(vol.TimeZone())
	slot := resolveSlot(vol, abbrev)
	sweeps := []int{}
	if sweep == rawd.SweepAll {
		for s := 0; s < vol.NumSweeps; s++ {
			sweeps = append(sweeps, s)
		}
	} else {
		if int(sweep) >= vol.NumSweeps {
			fatalf("sweep index %d of %d", sweep, vol.NumSweeps)
		}
		sweeps = append(sweeps, int(sweep))
	}
	for _, s := range sweeps {
		for r := 0; r < vol.NumRaysPerSweep; r++ {
			ray := &vol.Rays[s][r][slot]
			printWideRayHeader(s, r, rawd.WideRayHeader{
				Az0:        ray.Az0,
				El0:        ray.El0,
				Az1:        ray.Az1,
				El1:        ray.El1,
				NumBins:    uint32(ray.NumBins),
				TimeOffset: ray.TimeOffset,
				Time:       ray.Time,
			}, loc)
		}
	}
}

func printWideRayHeader(sweep, ray int, h rawd.WideRayHeader, loc *time.Location) {
	if math.IsNaN(h.Time) && h.NumBins == 0 {
		fmt.Printf("sweep %2d ray %4d: absent\n", sweep, ray)
		return
	}
	when := "-"
	if !math.IsNaN(h.Time) {
		when = time.Unix(int64(h.Time), int64(math.Mod(h.Time, 1)*1e9)).In(loc).Format("15:04:05.000")
	}
	fmt.Printf("sweep %2d ray %4d: az %7.2f -> %7.2f  el %6.2f -> %6.2f  bins %4d  %s\n",
		sweep, ray, deg(h.Az0), deg(h.Az1), deg(h.El0), deg(h.El1), h.NumBins, when)
}

func runSweepHeaders(cmd *cobra.Command, args []string) {
	path := args[0]
	var recs []rawd.SweepRecord
	var loc *time.Location

	if isSocket(path) {
		var resp rawd.Response
		var err error
		recs, resp, err = rawd.Dial(path).SweepHeaders()
		if err != nil {
			fatalf("%s", err)
		}
		loc = setZone(resp.TimeZone)
	} else {
		vol, err := loadVolume(path)
		if err != nil {
			fatalf("%s: %s", path, err)
		}
		loc = setZone(vol.TimeZone())
		for _, sh := range vol.Sweeps {
			recs = append(recs, rawd.SweepRecord{Time: sh.Time, Angle: sh.Angle, NumRays: uint32(sh.NumRays)})
		}
	}

	for i, rec := range recs {
		when := time.Unix(int64(rec.Time), 0).In(loc).Format("2006-01-02 15:04:05")
		fmt.Printf("sweep %2d: %s  angle %6.2f  rays %d\n", i, when, deg(rec.Angle), rec.NumRays)
	}
}

func runVolumeHeaders(cmd *cobra.Command, args []string) {
	path := args[0]

	if isSocket(path) {
		block, resp, err := rawd.Dial(path).VolumeHeaders()
		if err != nil {
			fatalf("%s", err)
		}
		setZone(resp.TimeZone)
		mask := sigmet.DataMask{
			Word0: block.TypeMask[0], Word1: block.TypeMask[1], Word2: block.TypeMask[2],
			Word3: block.TypeMask[3], Word4: block.TypeMask[4],
		}
		types, _ := sigmet.TypesFromMask(mask)
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = t.Abbrev
		}
		printVolumeSummary(
			trimz(block.Ingest.Configuration.SiteName[:]),
			trimz(block.Product.Configuration.TaskName[:]),
			resp.TimeZone,
			int(block.NumSweeps), int(block.NumRaysPerSweep), int(block.NumBinsOut),
			names,
			block.Product.End.Latitude, block.Product.End.Longitude,
			block.Product.End.PRF, block.Product.End.Wavelength,
		)
		return
	}

	vol, err := loadVolume(path)
	if err != nil {
		fatalf("%s: %s", path, err)
	}
	setZone(vol.TimeZone())
	names := make([]string, len(vol.Types))
	for i, t := range vol.Types {
		names[i] = t.Abbrev
	}
	printVolumeSummary(vol.SiteName(), vol.TaskName(), vol.TimeZone(),
		vol.NumSweeps, vol.NumRaysPerSweep, vol.NumBinsOut, names,
		vol.Product.End.Latitude, vol.Product.End.Longitude,
		vol.Product.End.PRF, vol.Product.End.Wavelength)
}

func printVolumeSummary(site, task, tz string, sweeps, rays, bins int, types []string, lat, lon uint32, prf, wavelength int32) {
	fmt.Printf("site:        %s\n", site)
	fmt.Printf("task:        %s\n", task)
	if tz == "" {
		tz = "(radar local)"
	}
	fmt.Printf("time zone:   %s\n", tz)
	fmt.Printf("sweeps:      %d\n", sweeps)
	fmt.Printf("rays/sweep:  %d\n", rays)
	fmt.Printf("bins out:    %d\n", bins)
	fmt.Printf("location:    %.4f %.4f\n", deg(sigmet.Bin4ToRadians(lat)), deg(sigmet.Bin4ToRadians(lon)))
	fmt.Printf("prf:         %d Hz\n", prf)
	fmt.Printf("wavelength:  %.2f cm\n", float64(wavelength)/100)
	fmt.Printf("data types:  %s\n", strings.Join(types, " "))
}
