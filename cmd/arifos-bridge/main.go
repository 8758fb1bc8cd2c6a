// Command arifos-bridge connects OpenClaw to the arifOS governance server. It can serve the HTTP
// shim or run single operations from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
	"github.com/ariffazil/openclaw-arifos-bridge/config"
	"github.com/ariffazil/openclaw-arifos-bridge/judge"
	"github.com/ariffazil/openclaw-arifos-bridge/telemetry"
)

const usage = `usage: arifos-bridge <command> [flags]

commands:
  serve           run the HTTP shim
  judge <query>   evaluate a query with apex_judge
  tools           list upstream tools
  route <text>    route a message and dispatch it
  batch <file>    evaluate one query per line ("-" reads stdin)`

// app bundles everything a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	client   *mcp.Client
	judge    *judge.Judge
	tracer   *telemetry.TracerProvider
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "judge":
		return runJudge(args[1:], stdout, stderr)
	case "tools":
		return runTools(args[1:], stdout, stderr)
	case "route":
		return runRoute(args[1:], stdout, stderr)
	case "batch":
		return runBatch(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func newApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = telemetry.NewMetrics(a.registry)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider(cfg.Tracing.ServiceName, "1.0.0", logOut)
		if err != nil {
			return nil, err
		}
		a.tracer = tp
	}

	a.client = mcp.NewClient(cfg.Upstream.Endpoint,
		mcp.WithCallTimeout(cfg.Upstream.Timeout),
		mcp.WithBearerToken(cfg.Upstream.BearerToken),
		mcp.WithSessionReuse(cfg.Upstream.SessionReuse),
		mcp.WithMaxEventSize(cfg.Upstream.MaxEventSize),
		mcp.WithClientLogger(logger),
		mcp.WithClientMetrics(a.metrics),
	)
	a.judge = judge.New(a.client,
		judge.WithActorID(cfg.Upstream.ActorID),
		judge.WithLogger(logger),
		judge.WithMetrics(a.metrics),
	)

	return a, nil
}

func (a *app) close() {
	if a.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shutdown tracer", slog.String("err", err.Error()))
	}
}
