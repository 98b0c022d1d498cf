package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dbw-can-bridge/dbw"
	"dbw-can-bridge/utils"
)

// cliFlags are the command-line overrides. Only flags given explicitly are
// applied over file and environment.
type cliFlags struct {
	fs *flag.FlagSet

	cfgPath  *string
	driver   *string
	debug    *bool
	iface    *string
	bitrate  *uint
	fixture  *string
	logLevel *string
	logFile  *string
	httpAddr *string
	shell    *bool
	script   *string
}

func newCLIFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		fs:       fs,
		cfgPath:  fs.String("config", "", "YAML config file"),
		driver:   fs.String("driver", "", "bus driver: socketcan|brutella|sim"),
		debug:    fs.Bool("debug", false, "simulate the bus and print commands instead of sending them"),
		iface:    fs.String("iface", "", "CAN interface name"),
		bitrate:  fs.Uint("bitrate", 0, "bring the interface up at this bitrate, 0 leaves the link as it is"),
		fixture:  fs.String("fixture", "", "seed inbound frames from this file"),
		logLevel: fs.String("log", "", "trace|debug|info|warn|error|critical"),
		logFile:  fs.String("logfile", "", "log file path"),
		httpAddr: fs.String("http", "", "serve the HTTP API on this address"),
		shell:    fs.Bool("shell", false, "run the interactive operator console"),
		script:   fs.String("script", "", "replay a JSON intent script"),
	}
}

func (f *cliFlags) apply(cfg Config) Config {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "driver":
			cfg.Driver = *f.driver
		case "iface":
			cfg.Interface = *f.iface
		case "bitrate":
			cfg.Bitrate = uint32(*f.bitrate)
		case "fixture":
			cfg.FixturePath = *f.fixture
		case "log":
			cfg.LogLevel = *f.logLevel
		case "logfile":
			cfg.LogPath = *f.logFile
		case "http":
			cfg.HTTPAddr = *f.httpAddr
		case "shell":
			cfg.Shell = *f.shell
		case "script":
			cfg.ScriptPath = *f.script
		}
	})
	// Visit goes in lexical order; -debug wins over -driver wherever it appears.
	if *f.debug {
		cfg.Driver = DriverSim
	}
	return cfg
}

func main() {
	flags := newCLIFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := LoadConfig(*flags.cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: " + err.Error() + "\n")
		os.Exit(2)
	}
	cfg = flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		_, _ = os.Stderr.WriteString("ERROR: " + err.Error() + "\n")
		os.Exit(2)
	}

	// The console owns stdout, so only log there without it.
	log, err := utils.NewFileLogger(cfg.LogPath, utils.ParseLevel(cfg.LogLevel), !cfg.Shell)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + cfg.LogPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Critical("%v", err)
		log.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log *utils.Logger) error {
	var sc *Script
	if cfg.ScriptPath != "" {
		s, err := LoadScript(cfg.ScriptPath)
		if err != nil {
			return fmt.Errorf("load script %s: %w", cfg.ScriptPath, err)
		}
		sc = s
	}

	t, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	ctrl, err := dbw.NewController(cfg.Controller(), t, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	log.Info("Bridge running driver=%s iface=%s", cfg.Driver, cfg.Interface)

	runner := NewRunner(RunnerConfig{
		Period:      cfg.OperatorPeriod,
		MaxSteerDeg: cfg.MaxSteerDeg,
		Hold:        cfg.SpeedHold,
		Script:      sc,
	}, ctrl, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = runner.Run(ctx)
	}()

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           NewAPI(ctrl, runner, log, cfg.OperatorPeriod).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			log.Info("HTTP API listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server: %v", err)
				cancel()
			}
		}()
		go func() {
			defer wg.Done()
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if cfg.Shell {
		sh := newShell(operatorCommands(runner, ctrl))
		go func() {
			<-ctx.Done()
			sh.Stop()
		}()
		sh.Run()
		cancel()
	}

	<-ctx.Done()
	wg.Wait()
	log.Info("Shutting down")
	return nil
}

func openTransport(ctx context.Context, cfg Config, log *utils.Logger) (dbw.Transport, error) {
	switch cfg.Driver {
	case DriverSim:
		return dbw.NewSimulated(os.Stdout), nil
	case DriverBrutella:
		b, err := dbw.NewBrutella(cfg.Interface, cfg.RxBuffer, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		s, err := dbw.NewSocketCAN(ctx, dbw.SocketCANConfig{
			Interface: cfg.Interface,
			Bitrate:   cfg.Bitrate,
			RxBuffer:  cfg.RxBuffer,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
