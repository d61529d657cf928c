// Command shmctl inspects, annotates, watches and tears down detection regions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/srediag/detection-shm/internal/config"
	"github.com/srediag/detection-shm/internal/logger"
	"github.com/srediag/detection-shm/internal/monitor"
	"github.com/srediag/detection-shm/pkg/annotate"
	"github.com/srediag/detection-shm/pkg/detection"
	"github.com/srediag/detection-shm/pkg/shm"
)

const shutdownTimeout = 5 * time.Second

func newApp(out io.Writer) *cli.App {
	var cfg *config.AppConfig

	nameFlag := &cli.StringFlag{Name: "name", Usage: "shared memory name (default from config)"}
	layoutFlag := &cli.StringFlag{Name: "layout", Usage: "plain or sequenced (default from config)"}

	return &cli.App{
		Name:  "shmctl",
		Usage: "inspect detection shared memory regions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{config.ConfigFileEnv},
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.Load(c.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("config: %v", err), 1)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "dump",
				Usage: "print the current batch of a region",
				Flags: []cli.Flag{nameFlag, layoutFlag},
				Action: func(c *cli.Context) error {
					name, layout, err := target(c, cfg)
					if err != nil {
						return err
					}
					return dump(c.Context, out, name, layout)
				},
			},
			{
				Name:  "annotate",
				Usage: "draw the current batch onto an image",
				Flags: []cli.Flag{
					nameFlag,
					layoutFlag,
					&cli.StringFlag{Name: "image", Required: true, Usage: "source image"},
					&cli.StringFlag{Name: "out", Value: "ipc_output.jpg", Usage: "annotated image (.png, .jpg, .bmp, .tiff)"},
				},
				Action: func(c *cli.Context) error {
					name, layout, err := target(c, cfg)
					if err != nil {
						return err
					}
					return annotateImage(c.Context, out, name, layout, c.String("image"), c.String("out"))
				},
			},
			{
				Name:  "remove",
				Usage: "unlink a region",
				Flags: []cli.Flag{nameFlag},
				Action: func(c *cli.Context) error {
					name, _, err := target(c, cfg)
					if err != nil {
						return err
					}
					if err := shm.Remove(name); err != nil {
						return cli.Exit(err, 1)
					}
					fmt.Fprintf(out, "removed %s\n", name)
					return nil
				},
			},
			{
				Name:  "watch",
				Usage: "poll regions and serve health, metrics and snapshots over HTTP",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "name", Usage: "region to watch, repeatable"},
					layoutFlag,
					&cli.StringFlag{Name: "listen", Value: ":9464", Usage: "HTTP listen address"},
					&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "poll interval"},
				},
				Action: func(c *cli.Context) error {
					return watch(c, cfg)
				},
			},
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func target(c *cli.Context, cfg *config.AppConfig) (string, detection.Layout, error) {
	name := cfg.SHM.Name
	if c.IsSet("name") {
		name = c.String("name")
	}
	layout, err := layoutFlagOrConfig(c, cfg)
	return name, layout, err
}

func layoutFlagOrConfig(c *cli.Context, cfg *config.AppConfig) (detection.Layout, error) {
	raw := cfg.SHM.Layout
	if c.IsSet("layout") {
		raw = c.String("layout")
	}
	layout, err := detection.ParseLayout(raw)
	if err != nil {
		return "", cli.Exit(err, 1)
	}
	return layout, nil
}

// readBatch attaches to name, takes one snapshot and unmaps again.
func readBatch(ctx context.Context, name string, layout detection.Layout) (detection.Batch, uint32, error) {
	region, err := shm.Attach(ctx, shm.Options{Name: name, Size: layout.Size()})
	if err != nil {
		return detection.Batch{}, 0, cli.Exit(err, 1)
	}
	defer region.Close()

	reader, err := detection.NewReader(region.Bytes(), layout)
	if err != nil {
		return detection.Batch{}, 0, cli.Exit(err, 1)
	}
	batch, err := reader.Snapshot(ctx)
	if err != nil {
		return detection.Batch{}, 0, cli.Exit(fmt.Sprintf("read %s: %v", name, err), 1)
	}
	return batch, reader.Sequence(), nil
}

func dump(ctx context.Context, out io.Writer, name string, layout detection.Layout) error {
	batch, seq, err := readBatch(ctx, name, layout)
	if err != nil {
		return err
	}
	if layout == detection.LayoutSequenced {
		fmt.Fprintf(out, "sequence=%d\n", seq)
	}
	fmt.Fprint(out, detection.FormatBatch(batch))
	return nil
}

func annotateImage(ctx context.Context, out io.Writer, name string, layout detection.Layout, in, dst string) error {
	batch, _, err := readBatch(ctx, name, layout)
	if err != nil {
		return err
	}
	if err := annotate.File(in, dst, batch.Valid()); err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Fprintf(out, "Detections read from shared memory: %d\nOutput saved as %s\n", batch.Count, dst)
	return nil
}

func watch(c *cli.Context, cfg *config.AppConfig) error {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(fmt.Sprintf("logger: %v", err), 1)
	}
	defer func() { _ = log.Sync() }()

	layout, err := layoutFlagOrConfig(c, cfg)
	if err != nil {
		return err
	}
	names := c.StringSlice("name")
	if len(names) == 0 {
		names = []string{cfg.SHM.Name}
	}
	targets := make([]monitor.Target, 0, len(names))
	for _, n := range names {
		targets = append(targets, monitor.Target{Name: n, Layout: layout})
	}

	mon, err := monitor.New(monitor.Options{
		Targets:  targets,
		Interval: c.Duration("interval"),
		Logger:   log,
	})
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer mon.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              c.String("listen"),
		Handler:           mon.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("serving region monitor", zap.String("addr", srv.Addr), zap.Strings("regions", names))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	polling := make(chan struct{})
	go func() {
		defer close(polling)
		_ = mon.Run(ctx)
	}()
	// regions are unmapped by mon.Close only after polling stops
	defer func() {
		stop()
		<-polling
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return cli.Exit(fmt.Sprintf("listen: %v", err), 1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
	return nil
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
