// cmd/memtest/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crslab/memtest/internal/config"
	"github.com/crslab/memtest/internal/device"
	"github.com/crslab/memtest/internal/device/serialport"
	"github.com/crslab/memtest/internal/monitor"
	"github.com/crslab/memtest/internal/program"
	"github.com/crslab/memtest/internal/run"
	"github.com/crslab/memtest/internal/sink"
	"github.com/crslab/memtest/internal/status"
	statusmodbus "github.com/crslab/memtest/internal/status/modbus"
)

var Version = "1.0.0"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", "memtest.yaml", "config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("memtest v%s\n", Version)
		return 0
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		return 1
	}
	config.Normalize(cfg)

	m := cfg.MemTest
	log := setupLogger(m.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// --------------------
	// Device link
	// --------------------

	readTimeout := time.Duration(m.ReadTimeoutMs) * time.Millisecond

	link, err := device.NewLink(device.Config{
		Address:          m.Port,
		Baud:             m.Baud,
		HandshakeTimeout: time.Duration(m.HandshakeTimeoutMs) * time.Millisecond,
		ReadTimeout:      readTimeout,
		Settle:           time.Duration(m.SettleMs) * time.Millisecond,
		MaxPulseWidth:    uint8(m.MaxPulseWidthMs),
	}, serialport.Opener(readTimeout), log.WithField("component", "device"))
	if err != nil {
		log.Errorf("device link: %v", err)
		return 1
	}

	// --------------------
	// Orchestrator
	// --------------------

	fileSink := sink.NewFile()

	runCfg, err := runConfig(m)
	if err != nil {
		log.Errorf("run config: %v", err)
		return 1
	}

	orch := run.New(runCfg, link, fileSink, log.WithField("component", "run"))

	// --------------------
	// Optional run-status memory
	// --------------------

	statusDone := make(chan struct{})
	var progCh chan run.Progress
	if m.StatusMemory != nil {
		cli, err := statusmodbus.NewEndpointClient(statusmodbus.Config{
			Endpoint: m.StatusMemory.Endpoint,
			UnitID:   m.StatusMemory.UnitID,
			Timeout:  time.Duration(m.StatusMemory.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			log.Errorf("status memory connect failed: %v", err)
			return 1
		}
		defer cli.Close()

		writer := status.NewWriter(cli, m.StatusMemory.Slot)

		progCh = make(chan run.Progress, 64)
		orch.SetProgressFunc(func(p run.Progress) {
			select {
			case progCh <- p:
			default:
				// Status memory is best-effort; never stall the run.
			}
		})

		go func() {
			defer close(statusDone)
			// Full block write on start (identity re-assert).
			if err := writer.WriteStatus(status.Snapshot{}); err != nil {
				log.Warnf("status write failed on start: %v", err)
			}
			for p := range progCh {
				if err := writer.WriteStatus(status.SnapshotOf(p)); err != nil {
					log.Warnf("status write failed: %v", err)
				}
			}
		}()
	} else {
		close(statusDone)
	}

	// --------------------
	// Optional metrics endpoint
	// --------------------

	if m.Monitor.Enabled {
		mon := monitor.NewMonitor(log.WithField("component", "monitor"))
		mon.StartMetricsServer(m.Monitor.MetricsPort)
	}

	// --------------------
	// Operator console: Enter resumes the gate, q cancels
	// --------------------

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			switch strings.TrimSpace(scanner.Text()) {
			case "q", "quit":
				orch.Gate().Cancel()
				return
			default:
				orch.Gate().Resume()
			}
		}
	}()

	// --------------------
	// Run + event loop
	// --------------------

	errCh := make(chan error, 1)
	go func() { errCh <- orch.Run(ctx) }()

	for ev := range orch.Events() {
		switch ev.Kind {
		case run.EventError:
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", ev.Text)
		case run.EventAwaitOperator:
			fmt.Printf("\n%s\n", ev.Text)
		default:
			fmt.Println(ev.Text)
		}
	}

	runErr := <-errCh

	// --------------------
	// Persist collected blocks
	// --------------------

	if fileSink.Len() > 0 {
		name := fmt.Sprintf("%s_%d.txt", m.Output.Name, 1)
		path, err := fileSink.Save(m.Output.Dir, name)
		if err != nil {
			log.Errorf("save failed: %v", err)
		} else {
			fmt.Printf("Saved as: %s\n", path)
		}
	}

	if progCh != nil {
		close(progCh)
	}
	<-statusDone

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, run.ErrCancelled):
		return 130
	default:
		return 1
	}
}

// runConfig maps the file config onto one run.
func runConfig(m config.MemTestConfig) (run.Config, error) {
	cfg := run.Config{
		Mode:          run.Mode(m.Run.Mode),
		Wordline:      uint8(m.Run.Wordline),
		ArraySize:     m.Run.ArraySize,
		Pattern:       m.Run.Pattern,
		WritePW:       uint8(m.Run.WritePWMs),
		PrechargePW:   uint8(m.Run.PrechargePWMs),
		GroundPW:      uint8(m.Run.GroundPWMs),
		Loop:          uint8(m.Run.Loop),
		MaxPulseWidth: uint8(m.MaxPulseWidthMs),
	}

	if cfg.Mode == run.ModeSingle {
		kind, err := program.ParseKind(m.Run.Single.Program)
		if err != nil {
			return run.Config{}, err
		}
		req := program.New(kind)
		req.Wordline = uint8(m.Run.Single.Wordline)
		req.Bitline = uint8(m.Run.Single.Bitline)
		req.Pattern = uint8(m.Run.Single.Pattern)
		req.ReadWriteTimeMs = cfg.WritePW
		req.FormTimeMs = cfg.PrechargePW
		req.GroundTimeMs = cfg.GroundPW
		req.LoopCount = cfg.Loop
		cfg.Single = &req
	}

	return cfg, nil
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}
