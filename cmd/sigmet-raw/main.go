package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jddeal/go-sigmet/rawd"
)

var logLevel string
var httpAddr string
var workers int

var rootCmd = &cobra.Command{
	Use:   appName(),
	Short: "sigmet-raw reads IRIS raw product volumes and serves them over a local socket.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			fatalf("failed to parse level: %s", err)
		}
		logrus.SetLevel(lvl)
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon <file> <socket>",
	Short: "decode a volume and serve it until told to exit",
	Args:  cobra.ExactArgs(2),
	Run:   runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level, debug, info, warn, error")
	daemonCmd.Flags().StringVar(&httpAddr, "http", "", "also serve a JSON meta endpoint on this loopback address")
	daemonCmd.Flags().IntVar(&workers, "workers", 4, "request worker pool size")
	rootCmd.AddCommand(daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// appName is the program name used in error messages; APP_NAME
// overrides it.
func appName() string {
	if n := os.Getenv("APP_NAME"); n != "" {
		return n
	}
	return "sigmet-raw"
}

// strictMode reads SIGMET_STRICT: any value makes soft decode anomalies
// fatal.
func strictMode() bool {
	return os.Getenv("SIGMET_STRICT") != ""
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", appName(), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func runDaemon(cmd *cobra.Command, args []string) {
	vol, err := loadVolume(args[0])
	if err != nil {
		fatalf("%s: %s", args[0], err)
	}

	srv, err := rawd.NewServer(vol, args[1], workers)
	if err != nil {
		fatalf("%s", err)
	}
	if httpAddr != "" {
		go func() {
			if err := srv.ServeHTTPStatus(httpAddr); err != nil {
				logrus.Errorf("status endpoint: %v", err)
			}
		}()
	}
	if err := srv.Serve(); err != nil {
		fatalf("%s", err)
	}
}
