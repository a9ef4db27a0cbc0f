package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
	"github.com/hazyhaar/fleet-intake/pkg/kit"
)

// RegisterMCPTools registers the bulk intake MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, svc *Service) {
	registerNormalizeRows(srv, svc)
	registerListImports(srv, svc)
}

func registerNormalizeRows(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool("normalize_rows",
		mcp.WithDescription("Map, normalize, deduplicate and validate spreadsheet rows for a bulk vehicle or driver import."),
		mcp.WithString("mode", mcp.Required(), mcp.Description("Import mode: vehicle or driver")),
		mcp.WithString("rows", mcp.Required(), mcp.Description("JSON array of row objects keyed by column header")),
		mcp.WithString("headers", mcp.Description("Comma-separated column order, leftmost first")),
		mcp.WithString("source", mcp.Description("Label recorded with the import (file or sheet name)")),
	)

	kit.RegisterMCPTool(srv, tool, normalizeEndpoint(svc), func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		modeStr, _ := args["mode"].(string)
		mode, err := bulk.ParseMode(modeStr)
		if err != nil {
			return nil, err
		}

		rowsStr, _ := args["rows"].(string)
		raw := []byte(rowsStr)
		if err := validateBody(normalizeSchema, wrapRows(raw)); err != nil {
			return nil, err
		}
		var rows []*orderedmap.OrderedMap[string, any]
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("rows: %w", err)
		}

		var headers []string
		if v, _ := args["headers"].(string); v != "" {
			for _, h := range strings.Split(v, ",") {
				if h = strings.TrimSpace(h); h != "" {
					headers = append(headers, h)
				}
			}
		}
		source, _ := args["source"].(string)
		return &normalizeReq{Mode: mode, Dataset: datasetFromOrdered(source, headers, rows)}, nil
	})
}

func registerListImports(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool("list_imports",
		mcp.WithDescription("List recent bulk import runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 50)")),
	)

	kit.RegisterMCPTool(srv, tool, listImportsEndpoint(svc), func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		limit := 0
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		return &listImportsReq{Limit: limit}, nil
	})
}

// wrapRows embeds a bare rows array in a normalize request body so the
// same schema checks both transports.
func wrapRows(rows []byte) []byte {
	out := make([]byte, 0, len(rows)+10)
	out = append(out, `{"rows":`...)
	out = append(out, rows...)
	return append(out, '}')
}
