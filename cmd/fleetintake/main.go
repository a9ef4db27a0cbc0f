package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/fleet-intake/pkg/api"
	"github.com/hazyhaar/fleet-intake/pkg/bulk"
	"github.com/hazyhaar/fleet-intake/pkg/history"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "normalize":
		cmdNormalize(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	case "probe":
		cmdProbe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: fleetintake <command>

Commands:
  serve       Start the HTTP server
  normalize   Normalize a spreadsheet and print the result as JSON
  mcp         Serve the MCP tools over stdio
  runs        List recent import runs
  probe       Call the MCP tools of a TLS edge over QUIC
`)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func mustConfig(path string, logger *slog.Logger) config {
	cfg, err := loadConfig(path)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func mustEngine(cfg config, logger *slog.Logger) *bulk.Engine {
	engine := bulk.NewEngine(cfg.AliasesFile)
	if err := engine.Load(); err != nil {
		logger.Error("failed to load aliases", "path", cfg.AliasesFile, "error", err)
		os.Exit(1)
	}
	return engine
}

// openHistory opens the import ledger. An empty path disables it.
func openHistory(cfg config, logger *slog.Logger) *history.Store {
	if cfg.HistoryDB == "" {
		logger.Info("import history disabled")
		return nil
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		logger.Error("open history", "path", cfg.HistoryDB, "error", err)
		os.Exit(1)
	}
	return store
}

func newService(cfg config, logger *slog.Logger) *api.Service {
	return &api.Service{
		Engine:         mustEngine(cfg, logger),
		History:        openHistory(cfg, logger),
		Logger:         logger,
		MaxRows:        cfg.MaxRows,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	logger := newLogger()
	cfg := mustConfig(*cfgPath, logger)
	svc := newService(cfg, logger)
	if svc.History != nil {
		defer svc.History.Close()
	}

	// SIGHUP: reload the alias file.
	// SIGINT/SIGTERM: graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reloadOnSIGHUP(svc.Engine, cfg, logger)

	if cfg.TLS.Enabled {
		if err := serveEdge(ctx, cfg, svc, logger); err != nil {
			logger.Error("edge error", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("fleetintake listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMCPServer(svc *api.Service) *server.MCPServer {
	srv := server.NewMCPServer("fleetintake", version, server.WithToolCapabilities(false))
	api.RegisterMCPTools(srv, svc)
	return srv
}

func reloadOnSIGHUP(engine *bulk.Engine, cfg config, logger *slog.Logger) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	for range sighup {
		logger.Info("SIGHUP received, reloading aliases")
		if err := engine.Reload(); err != nil {
			logger.Error("reload failed, keeping previous aliases", "error", err)
		} else {
			logger.Info("aliases reloaded", "path", cfg.AliasesFile)
		}
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	// stdout carries the protocol; logs stay on stderr.
	logger := newLogger()
	cfg := mustConfig(*cfgPath, logger)
	svc := newService(cfg, logger)
	if svc.History != nil {
		defer svc.History.Close()
	}

	if err := server.ServeStdio(newMCPServer(svc)); err != nil {
		logger.Error("mcp stdio", "error", err)
		os.Exit(1)
	}
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	limit := fs.Int("limit", 20, "number of runs to list")
	fs.Parse(args)

	logger := newLogger()
	cfg := mustConfig(*cfgPath, logger)
	store := openHistory(cfg, logger)
	if store == nil {
		os.Exit(1)
	}
	defer store.Close()

	runs, err := store.List(context.Background(), *limit)
	if err != nil {
		logger.Error("list runs", "error", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No import runs recorded.")
		return
	}
	for _, r := range runs {
		at := time.UnixMilli(r.CreatedAt).Format(time.DateTime)
		fmt.Printf("%s  %s  %-7s  in=%-5d out=%-5d dup=%-4d invalid=%-4d  %s\n",
			r.ID, at, r.Mode, r.Input, r.Output, r.Duplicates, r.Invalid, r.Source)
	}
}
