package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"pwmfan/api"
	"pwmfan/config"
	"pwmfan/device"
	"pwmfan/device/fan"
	"pwmfan/device/temperature"
	"pwmfan/jsonrpc"
	"pwmfan/log"
	"pwmfan/system"
	"pwmfan/telemetry"
	"pwmfan/version"
)

const shutdownTimeout = 2 * time.Second

var runOpts struct {
	configPath  string
	envFile     string
	debug       bool
	csvPath     string
	sqlitePath  string
	httpAddr    string
	apiAddr     string
	tachPin     int
	tachPPR     int
	tachBackend string
	tempSource  string
	logTicks    bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fan controller until SIGINT or SIGTERM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log.Init(runOpts.debug)

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runController(cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&runOpts.envFile, "env-file", "", "dotenv file with PWM_FAN_* variables")
	f.BoolVarP(&runOpts.debug, "debug", "d", false, "enable debug logging")
	f.StringVar(&runOpts.csvPath, "csv", "", "write one CSV row per tick to this file")
	f.StringVar(&runOpts.sqlitePath, "sqlite", "", "record ticks in this SQLite database")
	f.StringVar(&runOpts.httpAddr, "http", "", "serve /metrics, /healthz and /api on this address")
	f.StringVar(&runOpts.apiAddr, "api", "", "serve the TCP JSON API on this address")
	f.IntVar(&runOpts.tachPin, "tach-pin", 0, "tachometer GPIO line, 0 disables")
	f.IntVar(&runOpts.tachPPR, "tach-ppr", 0, "tachometer pulses per revolution")
	f.StringVar(&runOpts.tachBackend, "tach-backend", "", "tachometer backend: gpiod, periph or sysfs")
	f.StringVar(&runOpts.tempSource, "temp-source", "", "temperature source: thermal, lm75 or hostsensor")
	f.BoolVar(&runOpts.logTicks, "log-ticks", false, "log every tick instead of mode changes only")

	rootCmd.AddCommand(runCmd)
}

// loadConfig layers the command line flags that were set over config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(runOpts.configPath, runOpts.envFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("csv") {
		cfg.CSVPath = runOpts.csvPath
	}
	if f.Changed("sqlite") {
		cfg.SQLitePath = runOpts.sqlitePath
	}
	if f.Changed("http") {
		cfg.HTTPAddr = runOpts.httpAddr
	}
	if f.Changed("api") {
		cfg.APIAddr = runOpts.apiAddr
	}
	if f.Changed("tach-pin") {
		cfg.TachPin = runOpts.tachPin
	}
	if f.Changed("tach-ppr") {
		cfg.TachPulsesPerRev = runOpts.tachPPR
	}
	if f.Changed("tach-backend") {
		cfg.TachBackend = runOpts.tachBackend
	}
	if f.Changed("temp-source") {
		cfg.TempSource = runOpts.tempSource
	}
	if f.Changed("log-ticks") {
		cfg.LogTicks = runOpts.logTicks
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openSinks(cfg *config.Config, metrics *telemetry.Metrics) (telemetry.Multi, error) {
	sinks := telemetry.Multi{telemetry.NewLogSink(cfg.LogTicks), metrics}

	if cfg.CSVPath != "" {
		s, err := telemetry.NewCSVSink(cfg.CSVPath, cfg.TachEnabled())
		if err != nil {
			return nil, err
		}
		log.Infof("Writing CSV telemetry to %s", cfg.CSVPath)
		sinks = append(sinks, s)
	}

	if cfg.SQLitePath != "" {
		s, err := telemetry.NewSQLiteSink(cfg.SQLitePath, 40)
		if err != nil {
			if cerr := sinks.Close(); cerr != nil {
				log.Errorf("Failed to close telemetry sinks: %s", cerr)
			}
			return nil, err
		}
		log.Infof("Recording ticks to %s as run %s", cfg.SQLitePath, s.RunID())
		sinks = append(sinks, s)
	}

	return sinks, nil
}

// releaseAll drives the fan to max and runs every closer, logging each
// failure. The joined failures are returned.
func releaseAll(out interface{ SetMaxDutyCycle() error }, closers []func() error) error {
	var errs []error
	if err := out.SetMaxDutyCycle(); err != nil {
		log.Errorf("Failed to set fan to max: %s", err)
		errs = append(errs, err)
	}
	for _, c := range closers {
		if err := c(); err != nil {
			log.Errorf("Failed to release resource: %s", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runController(cfg *config.Config) (err error) {
	log.Infof("=============== %s start ===============", version.Agent)
	if info, err := system.GetSystemInfo(); err == nil {
		log.Infof("Host %s (%s), %s %s, kernel %s", info.Hostname, info.BoardModel, info.Platform, info.PlatformVersion, info.KernelVersion)
	}
	cfg.Dump()

	out := fan.New(cfg)
	if err := out.Setup(); err != nil {
		return fmt.Errorf("pwm setup: %w", err)
	}

	// Until the manager owns the hardware, any failure leaves the fan at max.
	var closers []func() error
	started := false
	defer func() {
		if !started {
			releaseAll(out, closers)
		}
	}()

	temp, err := temperature.Open(cfg)
	if err != nil {
		return fmt.Errorf("temperature source: %w", err)
	}
	closers = append(closers, temp.Close)

	var edges fan.EdgeWaiter
	if cfg.TachEnabled() {
		edges, err = fan.OpenEdgeWaiter(cfg)
		if err != nil {
			return fmt.Errorf("tachometer: %w", err)
		}
		closers = append(closers, edges.Close)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(cfg.MetricsName, reg)

	sinks, err := openSinks(cfg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Errorf("Failed to close telemetry sinks: %s", err)
		}
	}()

	mgr := device.NewManager(cfg, device.Deps{
		Fan:   out,
		Temp:  temp,
		Edges: edges,
		Sink:  sinks,
	})
	if edges != nil {
		metrics.WatchCapture(func() fan.CaptureStats {
			stats, _ := mgr.CaptureStats()
			return stats
		})
	}

	a := api.New(mgr, reg)

	var httpLn net.Listener
	if cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return err
		}
		closers = append(closers, httpLn.Close)
	}

	var tcpSrv *jsonrpc.Server
	if cfg.APIAddr != "" {
		tcpSrv, err = jsonrpc.NewServer(cfg.APIAddr, a.HandleCommand, true)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		return mgr.Run(ctx)
	}, func(error) {
		cancel()
	})

	if httpLn != nil {
		srv := &http.Server{Handler: a.Router(), ReadHeaderTimeout: 5 * time.Second}
		log.Infof("HTTP API listening on %s", httpLn.Addr())
		g.Add(func() error {
			return srv.Serve(httpLn)
		}, func(error) {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Errorf("HTTP API shutdown: %s", err)
			}
		})
	}

	if tcpSrv != nil {
		log.Infof("TCP API listening on %s", tcpSrv.Addr())
		g.Add(tcpSrv.ListenAndServe, func(error) {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := tcpSrv.Shutdown(sctx); err != nil {
				log.Errorf("TCP API shutdown: %s", err)
			}
		})
	}

	started = true
	err = g.Run()

	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Infof("Received %s", sig.Signal)
		err = nil
	}

	log.Infof("=============== %s stop ===============", version.Agent)
	return err
}
