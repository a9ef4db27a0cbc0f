package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
	"github.com/hazyhaar/fleet-intake/pkg/history"
)

func newTestService(t *testing.T, withHistory bool) *Service {
	t.Helper()
	svc := &Service{Engine: bulk.NewEngine("")}
	if withHistory {
		store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		svc.History = store
	}
	return svc
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type resultBody struct {
	RunID   string           `json:"run_id"`
	Mode    string           `json:"mode"`
	Rows    []map[string]any `json:"rows"`
	Issues  [][]string       `json:"issues"`
	Summary bulk.Summary     `json:"summary"`
}

func TestNormalize_Vehicle(t *testing.T) {
	h := NewRouter(newTestService(t, true))

	w := doJSON(t, h, http.MethodPost, "/v1/bulk/vehicle/normalize", `{
		"source": "fleet.csv",
		"rows": [
			{"Vehicle No": "ka01ab1234", "Model No": "Truck", "Chassis No": "jhmcm56557c400123"}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, "vehicle", got.Mode)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "KA01AB1234", got.Rows[0]["registration_no"])
	assert.Equal(t, "Truck", got.Rows[0]["vehicle_type"])
	assert.Equal(t, "JHMCM56557C400123", got.Rows[0]["chassis_number"])
	assert.Equal(t, map[string]any{}, got.Rows[0]["extra"])
	assert.Equal(t, [][]string{{}}, got.Issues)
	assert.Equal(t, bulk.Summary{Input: 1, Output: 1}, got.Summary)
}

func TestNormalize_KeepsJSONKeyOrderForTies(t *testing.T) {
	h := NewRouter(newTestService(t, false))

	// Both columns are aliases of the registration field; the leftmost wins.
	w := doJSON(t, h, http.MethodPost, "/v1/bulk/vehicle/normalize", `{
		"rows": [{"Vehicle No": "KA01AB1234", "Reg No": "MH12XY9876", "Chassis No": "JHMCM56557C400123"}]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Empty(t, got.RunID)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "KA01AB1234", got.Rows[0]["registration_no"])
	assert.Equal(t, map[string]any{"Reg No": "MH12XY9876"}, got.Rows[0]["extra"])
}

func TestNormalize_Driver(t *testing.T) {
	h := NewRouter(newTestService(t, false))

	w := doJSON(t, h, http.MethodPost, "/v1/bulk/driver/normalize", `{
		"headers": ["name", "role"],
		"rows": [{"name": "", "role": "Super Admin"}]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, [][]string{{bulk.IssueName, bulk.IssueSuperAdmin}}, got.Issues)
	assert.Equal(t, 1, got.Summary.Invalid)
}

func TestNormalize_RejectsBadBodies(t *testing.T) {
	h := NewRouter(newTestService(t, false))

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown mode", "/v1/bulk/trailer/normalize", `{"rows":[]}`, http.StatusNotFound},
		{"not json", "/v1/bulk/vehicle/normalize", `rows`, http.StatusBadRequest},
		{"missing rows", "/v1/bulk/vehicle/normalize", `{"source":"x"}`, http.StatusBadRequest},
		{"nested cell", "/v1/bulk/vehicle/normalize", `{"rows":[{"a":{"b":1}}]}`, http.StatusBadRequest},
		{"unknown property", "/v1/bulk/vehicle/normalize", `{"rows":[],"extra":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestNormalize_MaxRows(t *testing.T) {
	svc := newTestService(t, false)
	svc.MaxRows = 1
	h := NewRouter(svc)

	w := doJSON(t, h, http.MethodPost, "/v1/bulk/vehicle/normalize",
		`{"rows":[{"reg":"KA01AB1234"},{"reg":"KA01AB1235"}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Vehicle No", "Chassis No"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"ka 01 ab 1234", "jhmcm56557c400123"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"KA01AB1234", ""}))
	var xlsx bytes.Buffer
	require.NoError(t, f.Write(&xlsx))

	h := NewRouter(newTestService(t, true))
	body, ct := multipartUpload(t, "fleet.xlsx", xlsx.Bytes(), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/bulk/vehicle/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Results []resultBody `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	res := got.Results[0]
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, bulk.Summary{Input: 2, Output: 1, Duplicates: 1}, res.Summary)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "KA01AB1234", res.Rows[0]["registration_no"])
}

func TestUpload_CSVWithOptions(t *testing.T) {
	h := NewRouter(newTestService(t, false))
	csv := []byte("Driver Name;Role\nRamesh Kumar;driver\n")
	body, ct := multipartUpload(t, "drivers.csv", csv, map[string]string{"delimiter": ";"})
	req := httptest.NewRequest(http.MethodPost, "/v1/bulk/driver/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Results []resultBody `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	require.Len(t, got.Results[0].Rows, 1)
	assert.Equal(t, "Ramesh Kumar", got.Results[0].Rows[0]["name"])
	assert.Equal(t, "Driver", got.Results[0].Rows[0]["role"])
}

func TestUpload_Errors(t *testing.T) {
	h := NewRouter(newTestService(t, false))

	t.Run("unsupported format", func(t *testing.T) {
		body, ct := multipartUpload(t, "fleet.pdf", []byte("%PDF"), nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/bulk/vehicle/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("delimiter", ","))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/v1/bulk/vehicle/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRevalidate(t *testing.T) {
	h := NewRouter(newTestService(t, false))

	w := doJSON(t, h, http.MethodPost, "/v1/bulk/vehicle/validate", `{
		"rows": [
			{"registration_no": "ka01ab1234", "chassis_number": "", "extra": {"Owner": "Acme"}},
			{"registration_no": "ab"}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Rows   []map[string]any `json:"rows"`
		Issues [][]string       `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "KA01AB1234", got.Rows[0]["registration_no"])
	assert.Equal(t, map[string]any{"Owner": "Acme"}, got.Rows[0]["extra"])
	assert.Equal(t, [][]string{{}, {bulk.IssueRegistration}}, got.Issues)
}

func TestImports(t *testing.T) {
	h := NewRouter(newTestService(t, true))

	w := doJSON(t, h, http.MethodPost, "/v1/bulk/vehicle/normalize",
		`{"source":"a.csv","rows":[{"Vehicle No":"KA01AB1234"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var created resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, h, http.MethodGet, "/v1/imports?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []history.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, created.RunID, list.Runs[0].ID)
	assert.Equal(t, "a.csv", list.Runs[0].Source)

	w = doJSON(t, h, http.MethodGet, "/v1/imports/"+created.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/v1/imports/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/v1/imports?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImports_NoHistory(t *testing.T) {
	h := NewRouter(newTestService(t, false))
	w := doJSON(t, h, http.MethodGet, "/v1/imports", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndCORS(t *testing.T) {
	h := NewRouter(newTestService(t, false))

	w := doJSON(t, h, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","history":false}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(t, h, http.MethodOptions, "/v1/bulk/vehicle/normalize", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)
	resp := srv.HandleMessage(context.Background(), msg)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var out toolResponse
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	require.NotEmpty(t, out.Result.Content, string(data))
	return out
}

func TestMCPTools(t *testing.T) {
	srv := server.NewMCPServer("fleet-intake-test", "0.0.0", server.WithToolCapabilities(false))
	RegisterMCPTools(srv, newTestService(t, true))

	out := callTool(t, srv, "normalize_rows", map[string]any{
		"mode":    "vehicle",
		"rows":    `[{"Vehicle No":"ka01ab1234","Chassis No":"jhmcm56557c400123"}]`,
		"headers": "Vehicle No, Chassis No",
		"source":  "mcp",
	})
	require.False(t, out.Result.IsError, out.Result.Content[0].Text)
	var got resultBody
	require.NoError(t, json.Unmarshal([]byte(out.Result.Content[0].Text), &got))
	assert.NotEmpty(t, got.RunID)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "KA01AB1234", got.Rows[0]["registration_no"])

	out = callTool(t, srv, "list_imports", map[string]any{"limit": 10})
	require.False(t, out.Result.IsError, out.Result.Content[0].Text)
	assert.Contains(t, out.Result.Content[0].Text, got.RunID)

	out = callTool(t, srv, "normalize_rows", map[string]any{"mode": "trailer", "rows": "[]"})
	assert.True(t, out.Result.IsError)

	out = callTool(t, srv, "normalize_rows", map[string]any{"mode": "driver", "rows": "not json"})
	assert.True(t, out.Result.IsError)
}
