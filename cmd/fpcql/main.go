/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command fpcql runs continuous queries against a simulated or OPC UA device.
//
//	fpcql run -config queries.yaml
//	fpcql validate -config queries.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rulego/fpcql"
	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/device/opcua"
	"github.com/rulego/fpcql/device/sim"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/sink"
	"github.com/rulego/fpcql/stream"
	"github.com/rulego/fpcql/types"
	"github.com/rulego/fpcql/utils/timex"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error
	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("fpcql %s: %v", cmd, err)
	}
}

func printUsage() {
	fmt.Println(`usage: fpcql <command> [flags]

commands:
  run       run the configured queries until they end or SIGINT
  validate  check a configuration file
  help      show this message`)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./fpcql.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	for _, q := range cfg.Queries {
		if _, err := fpcql.Compile(&q); err != nil {
			return fmt.Errorf("query %s: %w", q.Name, err)
		}
	}
	fmt.Printf("config %s: %d queries ok\n", *cfgPath, len(cfg.Queries))
	return nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./fpcql.yaml", "Path to configuration file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	format := fs.String("format", "", "Row output format, json or table; overrides the config")
	metricsAddr := fs.String("metrics", "", "Metrics listen address; overrides the config")
	deviceKind := fs.String("device", "", "Device kind, sim or opcua; overrides the config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *format != "" {
		cfg.Sink.Format = *format
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *deviceKind != "" {
		cfg.Device.Kind = *deviceKind
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	z, err := newZap(*debug)
	if err != nil {
		return err
	}
	defer func() { _ = z.Sync() }()
	lg := logger.NewZapLogger(z)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, lg, os.Stdout)
}

func newZap(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run starts every query and blocks until they all ended or ctx is cancelled
func run(ctx context.Context, cfg *Config, lg logger.Logger, out io.Writer) error {
	dev, closeDevice, err := openDevice(ctx, cfg.Device, lg)
	if err != nil {
		return err
	}
	defer closeDevice()

	engine, err := fpcql.New(dev,
		fpcql.WithLogger(lg),
		fpcql.WithCustomPerformance(cfg.Performance),
		fpcql.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	var sqlSink *sink.SQLSink
	if cfg.Sink.Postgres != "" {
		db, err := sink.OpenPostgres(ctx, cfg.Sink.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		if sqlSink, err = sink.NewSQLSink(db, cfg.Sink.Table, lg); err != nil {
			return err
		}
	}

	var printer stream.Handler = &rowPrinter{enc: json.NewEncoder(out), quiet: cfg.Sink.Quiet}
	if cfg.Sink.Format == FormatTable && !cfg.Sink.Quiet {
		printer = sink.NewTableHandler(out)
	}
	var wg sync.WaitGroup
	var failed error
	var failMu sync.Mutex
	for i := range cfg.Queries {
		wg.Add(1)
		handlers := sink.Multi{printer, sink.FuncHandler{
			Error: func(q *stream.Query, err error) {
				failMu.Lock()
				failed = errors.Join(failed, fmt.Errorf("query %s: %w", q.Name(), err))
				failMu.Unlock()
				wg.Done()
			},
			Complete: func(*stream.Query) { wg.Done() },
		}}
		if sqlSink != nil {
			handlers = append(sink.Multi{sqlSink}, handlers...)
		}
		if _, err := engine.Execute(&cfg.Queries[i], handlers); err != nil {
			return fmt.Errorf("start query %s: %w", cfg.Queries[i].Name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	if cfg.Metrics.Addr != "" {
		srv := metricsServer(cfg.Metrics.Addr)
		g.Go(func() error {
			lg.Info("metrics listening on %s", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-finished:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			lg.Info("shutting down")
			engine.Close()
		case <-finished:
			lg.Info("all queries ended")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	failMu.Lock()
	defer failMu.Unlock()
	return failed
}

func openDevice(ctx context.Context, cfg DeviceConfig, lg logger.Logger) (device.Device, func(), error) {
	switch cfg.Kind {
	case DeviceOPCUA:
		d, err := opcua.New(cfg.OPCUA, lg)
		if err != nil {
			return nil, nil, err
		}
		if err := d.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return d, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.Close(closeCtx); err != nil {
				lg.Warn("opcua close: %v", err)
			}
		}, nil
	default:
		d, timers, err := sim.NewFromConfig(cfg.Sim, sim.WithLogger(lg))
		if err != nil {
			return nil, nil, err
		}
		return d, func() { stopTimers(timers) }, nil
	}
}

func stopTimers(timers []timex.Timer) {
	for _, t := range timers {
		t.Stop()
	}
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

// rowPrinter writes one JSON line per row
type rowPrinter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	quiet bool
}

func (p *rowPrinter) OnRow(q *stream.Query, row types.Row) {
	if p.quiet {
		return
	}
	r := sink.Result{Query: q.Name(), Columns: q.Columns(), Row: row, At: time.Now()}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(map[string]interface{}{"query": r.Query, "at": r.At, "row": r.Map()})
}

func (p *rowPrinter) OnError(*stream.Query, error) {}

func (p *rowPrinter) OnComplete(*stream.Query) {}
