// grid-report 查看或打包 grid-monitor 写出的风机分区文件。
//
//	grid-report [--data-dir DIR] [--verbose]
//	grid-report --zip [--out metrics.zip]
package main

import (
	"fmt"
	"os"

	"smartgrid-monitor/common/logger"
	"smartgrid-monitor/internal/report"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir string
		zipOut  bool
		out     string
		verbose bool
	)

	defaultDir := os.Getenv("DATA_DIR")
	if defaultDir == "" {
		defaultDir = "data/metrics_data"
	}

	flagSet := pflag.NewFlagSet("grid-report", pflag.ContinueOnError)
	flagSet.StringVar(&dataDir, "data-dir", defaultDir, "directory holding turbine_{n}.txt partitions")
	flagSet.BoolVar(&zipOut, "zip", false, "zip all partitions instead of printing them")
	flagSet.StringVarP(&out, "out", "o", report.ArchiveName, "archive path used with --zip")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "print every record, not only the per-turbine summary")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	log, err := logger.NewLogger("warn", "console", "grid-report")
	if err != nil {
		return err
	}
	defer log.Sync()

	r := report.New(dataDir, log)
	if !zipOut {
		return r.Print(os.Stdout, verbose)
	}

	n, err := r.ArchiveFile(out)
	if err != nil {
		return err
	}
	fmt.Printf("archived %d partitions to %s\n", n, out)
	return nil
}
