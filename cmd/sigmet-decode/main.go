package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jddeal/go-sigmet/sigmet"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

var cli struct {
	Args struct {
		Filename string
	} `positional-args:"yes" required:"yes"`
	LogLevel  string `short:"l" long:"log-level" description:"logging level" choice:"error" choice:"warn" choice:"info" choice:"debug" choice:"trace" default:"info"`
	ShowRays  bool   `long:"show-rays" description:"dump every ray header"`
	Strict    bool   `long:"strict" description:"treat soft anomalies as fatal (SIGMET_STRICT does the same)"`
}

func main() {

	// parse the input args
	_, err := flags.Parse(&cli)
	if err != nil {
		os.Exit(1)
	}

	// set the logging level
	errorLevels := map[string]logrus.Level{
		"error": logrus.ErrorLevel,
		"warn":  logrus.WarnLevel,
		"info":  logrus.InfoLevel,
		"debug": logrus.DebugLevel,
		"trace": logrus.TraceLevel,
	}
	logrus.SetLevel(errorLevels[cli.LogLevel])

	cfg := sigmet.DecodeConfig{Strict: cli.Strict || os.Getenv("SIGMET_STRICT") != ""}

	// decode it
	logrus.Info(color.CyanString("decoding "), cli.Args.Filename)
	vol, err := sigmet.Open(cli.Args.Filename, cfg)
	if err != nil {
		logrus.Fatal(err)
	}

	fmt.Printf("%s task %s: %d sweeps x %d rays x %d bins\n",
		vol.SiteName(), vol.TaskName(), vol.NumSweeps, vol.NumRaysPerSweep, vol.NumBinsOut)
	for _, t := range vol.Types {
		fmt.Printf("  %-16s %s\n", t.Abbrev, t.Descr)
	}

	if cli.ShowRays {
		for s := range vol.Rays {
			for r := range vol.Rays[s] {
				for slot, ray := range vol.Rays[s][r] {
					if ray.Absent() {
						continue
					}
					fmt.Printf("sweep %2d ray %4d %-12s az %6.4f->%6.4f el %6.4f bins %4d\n",
						s, r, vol.Types[slot].Abbrev, ray.Az0, ray.Az1, ray.El0, ray.NumBins)
				}
			}
		}
	}
}
