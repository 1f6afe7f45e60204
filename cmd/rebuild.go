// Copyright 2026 The restitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/restitch/restitch/internal"
	"github.com/restitch/restitch/pkg/daemon"
	"github.com/restitch/restitch/rebuild"
)

func cmdRebuild() *cli.Command {
	selfFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "ref",
			Usage:    "path of the intact reference file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "path of the damaged block device or disk image",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "path of the reconstructed output file",
			Value: "restitch.out",
		},
		&cli.StringFlag{
			Name:  "start",
			Usage: "device byte address to start skimming from, e.g. 0x1f000000",
			Value: "0x0",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "number of concurrent expansion workers",
			Value: 4,
		},
		&cli.IntFlag{
			Name:  "oversample",
			Usage: "skim density: probes per reference sector",
			Value: 4,
		},
		&cli.IntFlag{
			Name:  "tolerance",
			Usage: "max consecutive mismatches bridged inside one chain",
			Value: 2,
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "where sectors come from: device/s3",
			Value: "device",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "endpoint of the S3 service holding the disk image",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "region of the S3 service",
			Value: "us-east-1",
		},
		&cli.StringFlag{
			Name:  "s3-bucket",
			Usage: "bucket holding the disk image object",
		},
		&cli.StringFlag{
			Name:  "s3-key",
			Usage: "object key of the disk image",
		},
		&cli.StringFlag{
			Name:  "meta-addr",
			Usage: "the address of the checkpoint metadata storage, e.g. 127.0.0.1:6379/1",
		},
		&cli.StringFlag{
			Name:  "session",
			Usage: "session ID; generated when empty",
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "resume the given --session from its last checkpoint",
		},
		&cli.StringFlag{
			Name:  "checkpoint",
			Usage: "checkpoint interval, e.g. 30s/5m; 0 disables periodic checkpoints",
			Value: "30s",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "write the recovery report to this file",
		},
		&cli.StringFlag{
			Name:  "logdir",
			Usage: "path for the rebuild log",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "log level for rebuild: trace/info/warn/error",
			Value: "info",
		},
		&cli.BoolFlag{
			Name:    "background",
			Aliases: []string{"d"},
			Usage:   "run in background",
		},
	}

	return &cli.Command{
		Name:      "rebuild",
		Action:    rebuildAction,
		Category:  "RECOVERY",
		Usage:     "Reconstruct a file from its scattered sectors on a damaged device",
		ArgsUsage: "",
		Description: `
			Skims the device for sectors of the reference file, expands every
			match into contiguous chains and assembles the recovered bytes
			into --out, padding unlocatable sectors with zeros.

			The device is only ever read. When --source=s3 the damaged image
			is fetched with ranged GETs; set RESTITCH_ACCESS_KEY and
			RESTITCH_SECRET_KEY environment variables for the S3 credentials.

			Examples:
			$ restitch rebuild --ref backup.tar --device /dev/sdb --out recovered.tar
			$ restitch rebuild --ref backup.tar --device /dev/sdb --start 0x1f000000 \
			    --meta-addr 127.0.0.1:6379/1 --session job-42
			$ restitch rebuild --ref backup.tar --session job-42 --resume \
			    --meta-addr 127.0.0.1:6379/1 --device /dev/sdb`,
		Flags: selfFlags,
	}
}

func rebuildAction(c *cli.Context) error {
	// Handle daemonization first. If this returns true, the current process
	// is the parent and should exit gracefully.
	if shouldExit, err := handleBackgroundMode(c); err != nil {
		logger.Fatalf("Failed to start in background: %v", err)
	} else if shouldExit {
		return nil
	}

	setupLogging(c)

	conf, err := buildConfig(c)
	if err != nil {
		return err
	}

	ref, err := rebuild.LoadReference(conf.ReferencePath)
	if err != nil {
		return err
	}
	logger.Infof("reference %s: %s in %d sectors",
		conf.ReferencePath, internal.FormatBytes(uint64(ref.Length())), ref.SectorCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifySignals(cancel)

	src, err := openSource(ctx, conf)
	if err != nil {
		return err
	}
	defer src.Close()

	store, err := openSessionStore(conf)
	if err != nil {
		return err
	}

	engine, err := rebuild.New(&conf, ref, src, store)
	if err != nil {
		return err
	}
	engine.OnProgress = func(p rebuild.Progress) {
		logger.Infof("%s: %d/%d chunks resolved, %d workers, %d sectors read, ETA %.0fs",
			p.State, p.ResolvedChunks, p.TotalChunks, p.ActiveWorkers, p.SectorsRead, p.ETASeconds)
	}
	logger.Infof("session %s: rebuilding onto %s", engine.SessionID(), conf.OutputPath)

	sink, err := rebuild.NewFileSink(conf.OutputPath)
	if err != nil {
		return err
	}

	res, err := engine.Run(ctx, sink)
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	return finishReport(c, res)
}

type closableSource interface {
	rebuild.SectorSource
	Close() error
}

func openSource(ctx context.Context, conf internal.Config) (closableSource, error) {
	switch conf.Source {
	case "", "device":
		if conf.DevicePath == "" {
			return nil, fmt.Errorf("--device is required when --source=device")
		}
		return rebuild.OpenDevice(conf.DevicePath)
	case "s3":
		return rebuild.NewS3ImageSource(ctx, &conf)
	default:
		return nil, fmt.Errorf("unknown source type: %s", conf.Source)
	}
}

func openSessionStore(conf internal.Config) (rebuild.SessionStore, error) {
	if conf.MetaAddr == "" {
		if conf.Resume {
			return nil, fmt.Errorf("--resume requires --meta-addr")
		}
		return nil, nil
	}
	return rebuild.NewRedisSessionStore(conf.MetaDriver, conf.MetaAddr)
}

func buildConfig(c *cli.Context) (internal.Config, error) {
	startAddr, err := strconv.ParseInt(c.String("start"), 0, 64)
	if err != nil {
		return internal.Config{}, fmt.Errorf("invalid start address %s: %w", c.String("start"), err)
	}
	if startAddr < 0 || startAddr%rebuild.SectorSize != 0 {
		return internal.Config{}, fmt.Errorf("start address %s is not %d-byte aligned", c.String("start"), rebuild.SectorSize)
	}

	return internal.Config{
		ReferencePath:   c.String("ref"),
		DevicePath:      c.String("device"),
		OutputPath:      c.String("out"),
		StartSector:     startAddr / rebuild.SectorSize,
		Concurrency:     c.Int("concurrency"),
		Oversample:      c.Int("oversample"),
		Tolerance:       c.Int("tolerance"),
		ReadOnly:        true,
		MetaDriver:      "redis",
		MetaAddr:        c.String("meta-addr"),
		SessionID:       c.String("session"),
		Resume:          c.Bool("resume"),
		CheckpointEvery: internal.Duration(c.String("checkpoint")),
		Source:          c.String("source"),
		S3Endpoint:      c.String("s3-endpoint"),
		S3Region:        c.String("s3-region"),
		S3Bucket:        c.String("s3-bucket"),
		S3Key:           c.String("s3-key"),
	}, nil
}

func setupLogging(c *cli.Context) {
	if logDir := c.String("logdir"); logDir != "" {
		internal.SetOutFile(path.Join(logDir, "restitch.log"))
	} else if !isatty.IsTerminal(os.Stderr.Fd()) {
		internal.DisableLogColor()
	}

	switch c.String("loglevel") {
	case "trace":
		internal.SetLogLevel(logrus.TraceLevel)
	case "debug":
		internal.SetLogLevel(logrus.DebugLevel)
	case "info":
		internal.SetLogLevel(logrus.InfoLevel)
	case "warn":
		internal.SetLogLevel(logrus.WarnLevel)
	case "error":
		internal.SetLogLevel(logrus.ErrorLevel)
	default:
		internal.SetLogLevel(logrus.InfoLevel)
	}
	if c.Bool("verbose") {
		internal.SetLogLevel(logrus.DebugLevel)
	} else if c.Bool("quiet") {
		internal.SetLogLevel(logrus.WarnLevel)
	}
}

func notifySignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Warnf("received %s, draining and checkpointing", sig)
		cancel()
	}()
}

func finishReport(c *cli.Context, res *rebuild.Result) error {
	if res.Interrupted {
		logger.Warnf("session %s interrupted: recovered %s of %s so far, resume with --resume --session %s",
			res.SessionID, internal.FormatBytes(uint64(res.RecoveredBytes)),
			internal.FormatBytes(uint64(res.TotalBytes)), res.SessionID)
	} else {
		logger.Infof("session %s done: recovered %s of %s in %d chains, crc32 %08x",
			res.SessionID, internal.FormatBytes(uint64(res.RecoveredBytes)),
			internal.FormatBytes(uint64(res.TotalBytes)), len(res.Chains), res.OutputCRC32)
	}

	if err := rebuild.WriteReport(os.Stdout, res); err != nil {
		return err
	}
	if reportPath := c.String("report"); reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("failed to create report %s: %w", reportPath, err)
		}
		defer f.Close()
		if err := rebuild.WriteReport(f, res); err != nil {
			return err
		}
	}
	return nil
}

// handleBackgroundMode checks for the --background flag and daemonizes the
// process if set. It returns true if the current process is the parent and
// should exit.
func handleBackgroundMode(c *cli.Context) (shouldExit bool, err error) {
	// If we are the child daemon process (marked by the env var), just clean up and continue.
	if daemon.WasReborn() {
		daemon.UnsetMark()
		return false, nil
	}

	// If the background flag is not set, do nothing.
	if !c.Bool("background") {
		return false, nil
	}

	// --- This block is only executed by the initial parent process. ---

	logDir := c.String("logdir")
	if logDir == "" {
		return false, fmt.Errorf("logdir must be specified when running in background mode")
	}
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return false, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	pidFile := filepath.Join(logDir, "restitch.pid")
	// Check for stale PID file before attempting to daemonize.
	if _, statErr := os.Stat(pidFile); statErr == nil {
		pid, readErr := daemon.ReadPidFile(pidFile)
		if readErr == nil {
			proc, findErr := os.FindProcess(pid)
			if findErr == nil {
				// Sending signal 0 to a process on POSIX systems checks if it exists.
				if err := proc.Signal(syscall.Signal(0)); err != nil {
					// Process does not exist, so the PID file is stale.
					logger.Warnf("Found stale PID file for dead process %d. Removing it.", pid)
					if err := os.Remove(pidFile); err != nil {
						return false, fmt.Errorf("failed to remove stale PID file %s: %w", pidFile, err)
					}
				} else {
					// Process exists, so we cannot start a new daemon.
					return false, fmt.Errorf("daemon already running with PID %d", pid)
				}
			}
		}
	}

	// The arguments for the child process should be the same as the current
	// one, but without the --background flag to avoid an infinite loop.
	var newArgs []string
	for _, arg := range os.Args {
		if arg != "--background" && arg != "-d" {
			newArgs = append(newArgs, arg)
		}
	}

	d, err := daemon.Daemonize(
		pidFile,
		filepath.Join(logDir, "restitch.log"),
		newArgs,
	)
	if err != nil {
		return false, fmt.Errorf("unable to run in background: %w", err)
	}

	// If d is not nil, we are in the parent process and should exit.
	return d != nil, nil
}
