package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
	"github.com/hazyhaar/fleet-intake/pkg/history"
	"github.com/hazyhaar/fleet-intake/pkg/sheet"
)

var errTooManyRows = errors.New("too many rows")

type sheetOutput struct {
	RunID string `json:"run_id,omitempty"`
	*bulk.Result
}

func cmdNormalize(args []string) {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	modeStr := fs.String("mode", "vehicle", "import mode: vehicle or driver")
	delimiter := fs.String("delimiter", "", "CSV delimiter (sniffed when empty)")
	encoding := fs.String("encoding", "", "CSV text encoding, e.g. windows-1252 (default utf-8)")
	record := fs.Bool("record", false, "record the run in the import history")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fleetintake normalize [-mode vehicle|driver] [-record] <file.xlsx|file.csv>")
		os.Exit(1)
	}

	logger := newLogger()
	mode, err := bulk.ParseMode(*modeStr)
	if err != nil {
		logger.Error("invalid mode", "error", err)
		os.Exit(1)
	}
	cfg := mustConfig(*cfgPath, logger)
	engine := mustEngine(cfg, logger)

	var store *history.Store
	if *record {
		if store = openHistory(cfg, logger); store != nil {
			defer store.Close()
		}
	}

	opts := sheet.Options{Delimiter: *delimiter, Encoding: *encoding}
	if cfg.MaxRows > 0 {
		// One row past the cap is enough for normalizeSheets to reject the sheet.
		opts.MaxRows = cfg.MaxRows + 1
	}
	sets, err := sheet.ReadFile(fs.Arg(0), opts)
	if err != nil {
		logger.Error("read input", "path", fs.Arg(0), "error", err)
		os.Exit(1)
	}

	out, err := normalizeSheets(context.Background(), engine, store, sets, mode, cfg.MaxRows)
	if err != nil {
		logger.Error("normalize", "error", err)
		os.Exit(1)
	}
	for _, o := range out {
		logger.Info("sheet processed", "source", o.Source, "input", o.Summary.Input,
			"output", o.Summary.Output, "duplicates", o.Summary.Duplicates, "invalid", o.Summary.Invalid)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("write output", "error", err)
		os.Exit(1)
	}
}

// normalizeSheets processes every dataset concurrently. Output keeps the
// input order. store may be nil; maxRows 0 means no limit.
func normalizeSheets(ctx context.Context, engine *bulk.Engine, store *history.Store, sets []bulk.Dataset, mode bulk.Mode, maxRows int) ([]sheetOutput, error) {
	for _, ds := range sets {
		if maxRows > 0 && len(ds.Rows) > maxRows {
			return nil, fmt.Errorf("%s: %w: %d rows, max %d", ds.Source, errTooManyRows, len(ds.Rows), maxRows)
		}
	}

	out := make([]sheetOutput, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ds := range sets {
		g.Go(func() error {
			res, err := engine.Process(ds, mode)
			if err != nil {
				return fmt.Errorf("%s: %w", ds.Source, err)
			}
			out[i] = sheetOutput{Result: res}
			if store == nil {
				return nil
			}
			run, err := store.Record(gctx, res)
			if err != nil {
				return fmt.Errorf("%s: record run: %w", ds.Source, err)
			}
			out[i].RunID = run.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
