// Command detect-shm runs the detector on one image and publishes the
// class-0 detections into the named shared memory region.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/srediag/detection-shm/internal/config"
	"github.com/srediag/detection-shm/internal/logger"
	"github.com/srediag/detection-shm/pkg/detection"
	"github.com/srediag/detection-shm/pkg/detector"
	"github.com/srediag/detection-shm/pkg/shm"
)

const usage = "Usage: detect-shm <image_path>"

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "detect-shm",
		Usage:     "publish detections for one image to shared memory",
		UsageText: "detect-shm [--config FILE] <image_path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{config.ConfigFileEnv},
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "write writer counters in Prometheus text format to this file",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c, out)
		},
		// main owns the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func run(c *cli.Context, out io.Writer) error {
	if c.NArg() != 1 {
		return cli.Exit(usage, 1)
	}
	imagePath := c.Args().First()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}
	// stdout carries only the summary line
	log, err := logger.NewStderr(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(fmt.Sprintf("logger: %v", err), 1)
	}
	defer func() { _ = log.Sync() }()

	// both were checked by config.Load
	layout, _ := detection.ParseLayout(cfg.SHM.Layout)
	perm, _ := cfg.SHM.PermBits()

	region, err := shm.Open(c.Context, shm.Options{
		Name:   cfg.SHM.Name,
		Size:   layout.Size(),
		Perm:   perm,
		Logger: log,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create shared memory: %v", err), 1)
	}
	// The mapping and the segment are left in place for readers.

	registry := prometheus.NewRegistry()
	writer, err := detection.NewWriter(region.Bytes(), layout,
		detection.WithMetrics(detection.NewMetrics(registry)))
	if err != nil {
		return cli.Exit(err, 1)
	}

	det, err := detector.New(cfg.DetectorOptions())
	if err != nil {
		return cli.Exit(fmt.Sprintf("detector: %v", err), 1)
	}
	defer det.Close()

	img, err := detector.LoadImage(imagePath)
	if err != nil {
		return cli.Exit(err, 1)
	}
	cands, err := det.Detect(c.Context, img)
	if err != nil {
		return cli.Exit(fmt.Sprintf("detect %s: %v", imagePath, err), 1)
	}

	batch := writer.Write(cands, img.Width, img.Height)
	log.Debug("batch published",
		zap.String("name", region.Name()),
		zap.Int("candidates", len(cands)),
		zap.Int32("count", batch.Count))

	if path := c.String("metrics-textfile"); path != "" {
		if err := prometheus.WriteToTextfile(path, registry); err != nil {
			log.Warn("write metrics textfile failed", zap.String("path", path), zap.Error(err))
		}
	}

	fmt.Fprintf(out, "Detections written to shared memory. Count = %d\n", batch.Count)
	return nil
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
