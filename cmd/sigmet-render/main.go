package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"

	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jddeal/go-sigmet/sigmet"
)

var cmd = &cobra.Command{
	Use:   "sigmet-render",
	Short: "sigmet-render generates PPI images from IRIS raw product files.",
	Run:   run,
}

var inputFile string
var outputFile string
var logLevel string
var directory string
var renderLabel bool
var product string
var sweepIndex int
var imageSize int32
var runners int

var colorSchemes map[string]func(float32) color.Color

func init() {
	cmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "raw product file to process")
	cmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output radar image")
	cmd.PersistentFlags().StringVarP(&product, "product", "p", "DB_DBZ", "data type to render. ex: DB_DBZ, DB_VEL")
	cmd.PersistentFlags().IntVarP(&sweepIndex, "sweep", "s", 0, "sweep index to render")
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level, debug, info, warn, error")
	cmd.PersistentFlags().Int32Var(&imageSize, "size", 1024, "size in pixel of the output image")
	cmd.PersistentFlags().IntVarP(&runners, "threads", "t", runtime.NumCPU(), "threads")
	cmd.PersistentFlags().StringVarP(&directory, "directory", "d", "", "directory of raw files to process")
	cmd.PersistentFlags().BoolVarP(&renderLabel, "label", "L", false, "label the image with site and date")

	colorSchemes = map[string]func(float32) color.Color{
		"DB_DBT":   dbzColorNOAA,
		"DB_DBZ":   dbzColorNOAA,
		"DB_DBT2":  dbzColorNOAA,
		"DB_DBZ2":  dbzColorNOAA,
		"DB_VEL":   velColor,
		"DB_VEL2":  velColor,
		"DB_WIDTH": dbzColorNOAA,
	}
}

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) {

	if _, ok := colorSchemes[product]; !ok {
		logrus.Fatalf("no color scheme for %s", product)
	}

	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("failed to parse level: %s", err)
	}
	logrus.SetLevel(lvl)

	if inputFile != "" {
		out := "radar.png"
		if outputFile != "" {
			out = outputFile
		}
		single(inputFile, out)
	} else if directory != "" {
		out := "out"
		if outputFile != "" {
			out = outputFile
		}
		animate(directory, out)
	}
}

func animate(dir, outdir string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		logrus.Fatal(err)
	}

	// create the output dir
	if _, err := os.Stat(outdir); os.IsNotExist(err) {
		os.Mkdir(outdir, os.ModePerm)
	}

	bar := pb.StartNew(len(files))

	source := make(chan string, runners)
	wg := sync.WaitGroup{}
	wg.Add(runners)
	for i := 0; i < runners; i++ {
		go func() {
			defer wg.Done()
			for fn := range source {
				vol, err := sigmet.Open(dir+"/"+fn, sigmet.DecodeConfig{})
				if err != nil {
					logrus.Error(err)
					bar.Increment()
					continue
				}
				render(fmt.Sprintf("%s/%s.png", outdir, fn), vol, label(vol))
				bar.Increment()
			}
		}()
	}

	for _, fn := range files {
		if strings.HasSuffix(fn.Name(), ".RAW") || strings.HasSuffix(fn.Name(), ".vol") {
			source <- fn.Name()
		} else {
			bar.Increment()
		}
	}
	close(source)
	wg.Wait()
	bar.Finish()
}

func single(in, out string) {
	fmt.Printf("Generating %s from %s -> %s\n", product, in, out)

	vol, err := sigmet.Open(in, sigmet.DecodeConfig{})
	if err != nil {
		logrus.Fatal(err)
	}
	render(out, vol, label(vol))
}

func label(vol *sigmet.Volume) string {
	when := time.Unix(int64(vol.Sweeps[0].Time), 0).UTC()
	return fmt.Sprintf("%s %s %s %s", vol.SiteName(), vol.TaskName(), product, when.Format(time.RFC3339))
}

func render(out string, vol *sigmet.Volume, label string) {

	typ := sigmet.GetByAbbrev(product)
	if typ == nil {
		logrus.Fatalf("%s is not a Sigmet data type.", product)
	}
	slot := vol.TypeSlot(typ)
	if slot < 0 {
		logrus.Fatalf("%s is not in this volume", product)
	}
	if sweepIndex >= vol.NumSweeps {
		logrus.Fatalf("sweep index %d of %d", sweepIndex, vol.NumSweeps)
	}

	width := float64(imageSize)
	height := float64(imageSize)

	canvas := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	gc := draw2dimg.NewGraphicContext(canvas)

	xc := width / 2
	yc := height / 2

	rangeKm := float64(vol.Ingest.Task.Range.LastBinRange) / 100 / 1000
	if rangeKm <= 0 {
		rangeKm = 250
	}
	pxPerKm := width / 2 / rangeKm
	firstGateKm := float64(vol.Ingest.Task.Range.FirstBinRange) / 100 / 1000
	gateIntervalKm := float64(vol.Ingest.Task.Range.StepOut) / 100 / 1000
	gateWidthPx := gateIntervalKm * pxPerKm
	firstGatePx := firstGateKm * pxPerKm

	logrus.Debugf("rendering sweep %d of %s", sweepIndex, product)

	scheme := colorSchemes[product]
	values := make([]float32, vol.NumBinsOut)

	gc.SetLineCap(draw2d.ButtCap)
	gc.SetLineWidth(gateWidthPx + 1)

	for ray := 0; ray < vol.NumRaysPerSweep; ray++ {
		r := &vol.Rays[sweepIndex][ray][slot]
		if r.Absent() {
			continue
		}

		gates := values[:r.NumBins]
		typ.StorageToValue(gates, vol.RayData(sweepIndex, ray, slot), vol)

		// bin2 azimuths run clockwise from north; draw2d angles run
		// clockwise from the +x axis
		theta := r.Az0 - math.Pi/2
		span := r.Az1 - r.Az0
		if span <= 0 {
			span += 2 * math.Pi
		}
		// adjacent rays share a wedge edge; antialiasing leaves a
		// hairline of background there unless each wedge is stroked a
		// touch wider than its span
		pad := span / 16

		for i, v := range gates {
			if math.IsNaN(float64(v)) {
				continue
			}
			radius := firstGatePx + float64(i)*gateWidthPx
			gc.MoveTo(xc+radius*math.Cos(theta-pad), yc+radius*math.Sin(theta-pad))
			gc.ArcTo(xc, yc, radius, radius, theta-pad, span+2*pad)
			gc.SetStrokeColor(scheme(v))
			gc.Stroke()
		}
	}

	if renderLabel {
		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(colornames.Gray),
			Face: inconsolata.Bold8x16,
			Dot:  fixed.P(10, int(height)-10),
		}
		d.DrawString(label)
	}

	draw2dimg.SaveToPngFile(out, canvas)
}

// dbzPalette is the standard NWS base reflectivity color curve in
// 5 dBZ steps from 5 through 70; everything below 5 dBZ stays
// transparent, everything from 75 up renders white.
var dbzPalette = []color.NRGBA{
	{0x40, 0xe8, 0xe3, 0xFF}, // 5
	{0x26, 0xa4, 0xfa, 0xFF}, // 10
	{0x00, 0x30, 0xed, 0xFF}, // 15
	{0x49, 0xfb, 0x3e, 0xFF}, // 20
	{0x36, 0xc2, 0x2e, 0xFF}, // 25
	{0x27, 0x8c, 0x1e, 0xFF}, // 30
	{0xfe, 0xf5, 0x43, 0xFF}, // 35
	{0xeb, 0xb4, 0x33, 0xFF}, // 40
	{0xf6, 0x95, 0x2e, 0xFF}, // 45
	{0xf8, 0x0a, 0x26, 0xFF}, // 50
	{0xcb, 0x05, 0x16, 0xFF}, // 55
	{0xa9, 0x08, 0x13, 0xFF}, // 60
	{0xee, 0x34, 0xfa, 0xFF}, // 65
	{0x91, 0x61, 0xc4, 0xFF}, // 70
}

func dbzColorNOAA(dbz float32) color.Color {
	if dbz < 5 {
		return color.NRGBA{}
	}
	step := int(dbz-5) / 5
	if step >= len(dbzPalette) {
		return color.NRGBA{0xff, 0xff, 0xff, 0xff}
	}
	return dbzPalette[step]
}

// velColor is a symmetric diverging ramp over ±64 m/s: inbound
// velocities shade green, outbound shade red, both brightening with
// speed, with a muted gray around zero.
func velColor(vel float32) color.Color {
	v := float64(vel) / 64
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	mag := math.Abs(v)
	if mag < 0.02 {
		return color.NRGBA{0x50, 0x50, 0x50, 0xFF}
	}
	hot := uint8(0x50 + 0xAF*mag)
	cold := uint8(0x40 * (1 - mag))
	if v < 0 {
		return color.NRGBA{cold, hot, cold, 0xFF}
	}
	return color.NRGBA{hot, cold, cold, 0xFF}
}
