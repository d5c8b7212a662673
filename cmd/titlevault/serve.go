package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/api"
	"github.com/Mindburn-Labs/titlevault/pkg/chainsync"
)

func runServe(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		addr     string
		autoPush bool
		noSync   bool
		rps      int
	)
	cmd.StringVar(&addr, "addr", "", "Listen address (default :$PORT)")
	cmd.BoolVar(&autoPush, "auto-push", false, "Push to the ledger as soon as a record reaches quorum")
	cmd.BoolVar(&noSync, "no-sync", false, "Disable the background ledger sync")
	cmd.IntVar(&rps, "rate-limit", 20, "Per-IP requests per second (0 disables)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, profile, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
		return 2
	}
	logger := newLogger(cfg, stderr)
	if addr == "" {
		addr = ":" + cfg.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, profile, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()
	a.svc.WithAutoPush(autoPush)

	srv := api.NewServer(a.svc).
		WithAudit(a.audit).
		WithRateLimit(rps, rps*2).
		WithTelemetry(a.telemetry).
		WithLogger(logger.With("component", "api"))
	for name, fn := range a.health {
		srv.WithHealthCheck(name, fn)
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("listen failed", "addr", addr, "error", err)
		return 1
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	if !noSync {
		poller := chainsync.NewPoller(a.sync, a.records, cfg.SyncInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = poller.Run(ctx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()
	fmt.Fprintf(stdout, "%stitlevault%s listening on %s (ledger=%s, content=%s)\n",
		ColorBold+ColorBlue, ColorReset, ln.Addr(), cfg.LedgerMode, cfg.ContentStore)

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			code = 1
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		code = 1
	}
	wg.Wait()
	return code
}
