package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/chainsync"
)

// withApp loads configuration, builds the app and runs fn with it.
func withApp(stderr io.Writer, fn func(ctx context.Context, a *app) int) int {
	cfg, profile, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
		return 2
	}
	logger := newLogger(cfg, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, profile, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
		return 1
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

func runSyncCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sync", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOutput := cmd.Bool("json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return withApp(stderr, func(ctx context.Context, a *app) int {
		changed, err := chainsync.NewPoller(a.sync, a.records, a.cfg.SyncInterval).RunOnce(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "%sSync failed:%s %v\n", ColorRed, ColorReset, err)
			return 1
		}
		if *jsonOutput {
			printJSON(stdout, map[string]any{"changed": changed})
		} else {
			fmt.Fprintf(stdout, "%s✓%s synced, %d record(s) updated\n", ColorGreen, ColorReset, changed)
		}
		return 0
	})
}

func runPushPendingCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("push-pending", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOutput := cmd.Bool("json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return withApp(stderr, func(ctx context.Context, a *app) int {
		pushed, failed, err := a.svc.PushPending(ctx)
		errs := make([]string, 0, len(failed))
		for _, f := range failed {
			errs = append(errs, f.Error())
		}
		if *jsonOutput {
			printJSON(stdout, map[string]any{"pushed": pushed, "failed": errs})
		} else {
			fmt.Fprintf(stdout, "pushed %d record(s)\n", pushed)
			for _, e := range errs {
				fmt.Fprintf(stderr, "  %s✗%s %s\n", ColorRed, ColorReset, e)
			}
		}
		if err != nil || len(failed) > 0 {
			return 1
		}
		return 0
	})
}

func runIssueCodeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("issue-code", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	wallet := cmd.String("wallet", "", "Destination wallet address (REQUIRED)")
	jsonOutput := cmd.Bool("json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *wallet == "" {
		fmt.Fprintln(stderr, "Error: --wallet is required")
		cmd.Usage()
		return 2
	}

	return withApp(stderr, func(ctx context.Context, a *app) int {
		c, err := a.svc.GenerateTransferCode(ctx, *wallet)
		if err != nil {
			fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
			return 1
		}
		if *jsonOutput {
			printJSON(stdout, c)
		} else {
			fmt.Fprintf(stdout, "%s%s%s for %s, expires %s\n",
				ColorBold, c.Code, ColorReset, c.Wallet, c.ExpiresAt.Format(time.RFC3339))
		}
		return 0
	})
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	url := cmd.String("url", "http://localhost:8080/health", "Health endpoint")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*url)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fmt.Fprintf(stderr, "Health check failed: status %d %s\n", resp.StatusCode, body)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}
