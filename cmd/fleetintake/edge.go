package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/fleet-intake/pkg/api"
	"github.com/hazyhaar/fleet-intake/pkg/edge"
)

// serveEdge runs the TLS edge until ctx is done.
func serveEdge(ctx context.Context, cfg config, svc *api.Service, logger *slog.Logger) error {
	tlsCfg, err := edge.ServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return err
	}
	if cfg.TLS.CertFile == "" {
		logger.Warn("TLS: using a self-signed development certificate")
	}

	srv, err := edge.New(edge.Config{
		Addr:      cfg.Addr,
		TLS:       tlsCfg,
		Handler:   api.NewRouter(svc),
		MCPServer: newMCPServer(svc),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	err = srv.ListenAndServe(ctx)
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func cmdProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8430", "edge address (host:port)")
	insecure := fs.Bool("insecure", false, "skip certificate verification (self-signed dev servers)")
	tool := fs.String("tool", "", "tool to call; lists tools when empty")
	argsJSON := fs.String("args", "{}", "tool arguments as a JSON object")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	fs.Parse(args)

	logger := newLogger()
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(*argsJSON), &toolArgs); err != nil {
		logger.Error("invalid -args", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := edge.NewClient(*addr, edge.ClientTLSConfig(*insecure))
	if err := c.Connect(ctx, "fleetintake-probe", version); err != nil {
		logger.Error("connect", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if *tool == "" {
		tools, err := c.ListTools(ctx)
		if err != nil {
			logger.Error("list tools", "error", err)
			os.Exit(1)
		}
		for _, t := range tools {
			fmt.Printf("%-16s  %s\n", t.Name, t.Description)
		}
		return
	}

	text, err := c.CallTool(ctx, *tool, toolArgs)
	if err != nil {
		logger.Error("call tool", "tool", *tool, "error", err)
		os.Exit(1)
	}
	fmt.Println(text)
}
