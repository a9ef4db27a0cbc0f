package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
	"github.com/hazyhaar/fleet-intake/pkg/history"
	"github.com/hazyhaar/fleet-intake/pkg/kit"
	"github.com/hazyhaar/fleet-intake/pkg/sheet"
)

// Service bundles what the endpoints need. History may be nil, in which
// case runs are not recorded.
type Service struct {
	Engine  *bulk.Engine
	History *history.Store
	Logger  *slog.Logger
	// MaxRows caps rows per dataset; 0 means no limit.
	MaxRows int
	// MaxUploadBytes caps multipart uploads; 0 means 16 MiB.
	MaxUploadBytes int64
}

// Shared request/response types used by both HTTP and MCP transports.

type normalizeReq struct {
	Mode    bulk.Mode
	Dataset bulk.Dataset
}

type uploadReq struct {
	Mode     bulk.Mode
	Filename string
	Data     []byte
	Options  sheet.Options
}

type revalidateReq struct {
	Mode bulk.Mode
	Rows []map[string]any
}

type listImportsReq struct {
	Limit int
}

type getImportReq struct {
	ID string
}

type importResponse struct {
	RunID string `json:"run_id,omitempty"`
	*bulk.Result
}

type uploadResponse struct {
	Results []importResponse `json:"results"`
}

type revalidateResponse struct {
	Rows   []bulk.NormalizedRow `json:"rows"`
	Issues [][]string           `json:"issues"`
}

type importsResponse struct {
	Runs []history.Run `json:"runs"`
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// wrap applies the standard middleware stack to an endpoint.
func (s *Service) wrap(action string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.RequestID(), kit.Logging(s.logger(), action))(ep)
}

func (s *Service) process(ctx context.Context, ds bulk.Dataset, mode bulk.Mode) (importResponse, error) {
	if s.MaxRows > 0 && len(ds.Rows) > s.MaxRows {
		return importResponse{}, fmt.Errorf("%w: %d rows, max %d", errTooManyRows, len(ds.Rows), s.MaxRows)
	}
	res, err := s.Engine.Process(ds, mode)
	if err != nil {
		return importResponse{}, err
	}
	out := importResponse{Result: res}
	if s.History == nil {
		return out, nil
	}
	run, err := s.History.Record(ctx, res)
	if err != nil {
		// The import succeeded; report it without a run id.
		s.logger().Error("record import run", "source", ds.Source, "error", err)
		return out, nil
	}
	out.RunID = run.ID
	return out, nil
}

func normalizeEndpoint(s *Service) kit.Endpoint {
	return s.wrap("normalize", func(ctx context.Context, request any) (any, error) {
		req := request.(*normalizeReq)
		return s.process(ctx, req.Dataset, req.Mode)
	})
}

// uploadEndpoint reads every sheet of the uploaded file and processes them
// concurrently; results keep the workbook's sheet order.
func uploadEndpoint(s *Service) kit.Endpoint {
	return s.wrap("upload", func(ctx context.Context, request any) (any, error) {
		req := request.(*uploadReq)
		opts := req.Options
		if s.MaxRows > 0 {
			// One row past the cap is enough for process to reject the sheet.
			opts.MaxRows = s.MaxRows + 1
		}
		sets, err := sheet.Read(bytes.NewReader(req.Data), req.Filename, opts)
		if err != nil {
			return nil, err
		}

		results := make([]importResponse, len(sets))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, ds := range sets {
			g.Go(func() error {
				r, err := s.process(gctx, ds, req.Mode)
				if err != nil {
					return fmt.Errorf("%s: %w", ds.Source, err)
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return uploadResponse{Results: results}, nil
	})
}

func revalidateEndpoint(s *Service) kit.Endpoint {
	return s.wrap("revalidate", func(_ context.Context, request any) (any, error) {
		req := request.(*revalidateReq)
		rows, issues, err := s.Engine.Revalidate(req.Mode, req.Rows)
		if err != nil {
			return nil, err
		}
		return revalidateResponse{Rows: rows, Issues: issues}, nil
	})
}

func listImportsEndpoint(s *Service) kit.Endpoint {
	return s.wrap("list_imports", func(ctx context.Context, request any) (any, error) {
		if s.History == nil {
			return nil, errNoHistory
		}
		req := request.(*listImportsReq)
		runs, err := s.History.List(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		return importsResponse{Runs: runs}, nil
	})
}

func getImportEndpoint(s *Service) kit.Endpoint {
	return s.wrap("get_import", func(ctx context.Context, request any) (any, error) {
		if s.History == nil {
			return nil, errNoHistory
		}
		req := request.(*getImportReq)
		return s.History.Get(ctx, req.ID)
	})
}

// datasetFromOrdered builds a dataset from JSON rows whose key order was
// preserved. Keys missing from headers are appended in first-seen order.
func datasetFromOrdered(source string, headers []string, rows []*orderedmap.OrderedMap[string, any]) bulk.Dataset {
	ds := bulk.Dataset{Source: source, Rows: make([]bulk.RawRow, 0, len(rows))}
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if !seen[h] {
			seen[h] = true
			ds.Headers = append(ds.Headers, h)
		}
	}
	for _, om := range rows {
		row := make(bulk.RawRow)
		if om != nil {
			for pair := om.Oldest(); pair != nil; pair = pair.Next() {
				row[pair.Key] = pair.Value
				if !seen[pair.Key] {
					seen[pair.Key] = true
					ds.Headers = append(ds.Headers, pair.Key)
				}
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}
