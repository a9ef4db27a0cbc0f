package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/hazyhaar/fleet-intake/pkg/bulk"
	"github.com/hazyhaar/fleet-intake/pkg/history"
	"github.com/hazyhaar/fleet-intake/pkg/kit"
	"github.com/hazyhaar/fleet-intake/pkg/sheet"
)

var (
	errTooManyRows = errors.New("too many rows")
	errNoHistory   = errors.New("import history is disabled")
)

const (
	maxJSONBody         = 8 << 20  // 8 MiB
	defaultMaxUploadLen = 16 << 20 // 16 MiB
)

// NewRouter returns an http.Handler with all bulk intake routes.
func NewRouter(svc *Service) http.Handler {
	mux := http.NewServeMux()
	h := &handler{
		normalize:   normalizeEndpoint(svc),
		upload:      uploadEndpoint(svc),
		revalidate:  revalidateEndpoint(svc),
		listImports: listImportsEndpoint(svc),
		getImport:   getImportEndpoint(svc),
		svc:         svc,
	}

	mux.HandleFunc("POST /v1/bulk/{mode}/normalize", h.handleNormalize)
	mux.HandleFunc("POST /v1/bulk/{mode}/upload", h.handleUpload)
	mux.HandleFunc("POST /v1/bulk/{mode}/validate", h.handleRevalidate)
	mux.HandleFunc("GET /v1/imports", h.handleListImports)
	mux.HandleFunc("GET /v1/imports/{id}", h.handleGetImport)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	return cors(mux)
}

type handler struct {
	normalize   kit.Endpoint
	upload      kit.Endpoint
	revalidate  kit.Endpoint
	listImports kit.Endpoint
	getImport   kit.Endpoint
	svc         *Service
}

// --- normalize JSON rows ---

type httpNormalizeRequest struct {
	Source  string                                `json:"source"`
	Headers []string                              `json:"headers"`
	Rows    []*orderedmap.OrderedMap[string, any] `json:"rows"`
}

func (h *handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	mode, ok := pathMode(w, r)
	if !ok {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(normalizeSchema, raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req httpNormalizeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.normalize(r.Context(), &normalizeReq{
		Mode:    mode,
		Dataset: datasetFromOrdered(req.Source, req.Headers, req.Rows),
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- upload xlsx/csv ---

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	mode, ok := pathMode(w, r)
	if !ok {
		return
	}
	limit := h.svc.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadLen
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	resp, err := h.upload(r.Context(), &uploadReq{
		Mode:     mode,
		Filename: header.Filename,
		Data:     data,
		Options: sheet.Options{
			Delimiter: r.FormValue("delimiter"),
			Encoding:  r.FormValue("encoding"),
		},
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- revalidate edited rows ---

type httpRevalidateRequest struct {
	Rows []map[string]any `json:"rows"`
}

func (h *handler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	mode, ok := pathMode(w, r)
	if !ok {
		return
	}
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(validateSchema, raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req httpRevalidateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.revalidate(r.Context(), &revalidateReq{Mode: mode, Rows: req.Rows})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- import ledger ---

func (h *handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	resp, err := h.listImports(r.Context(), &listImportsReq{Limit: limit})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleGetImport(w http.ResponseWriter, r *http.Request) {
	resp, err := h.getImport(r.Context(), &getImportReq{ID: r.PathValue("id")})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status  string `json:"status"`
	History bool   `json:"history"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", History: h.svc.History != nil})
}

// --- helpers ---

func pathMode(w http.ResponseWriter, r *http.Request) (bulk.Mode, bool) {
	mode, err := bulk.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return mode, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		} else {
			writeError(w, http.StatusBadRequest, "read body")
		}
		return nil, false
	}
	return raw, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bulk.ErrUnknownMode):
		return http.StatusNotFound
	case errors.Is(err, history.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoHistory):
		return http.StatusServiceUnavailable
	case errors.Is(err, errTooManyRows):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, sheet.ErrNoHeader):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// cors is a simple CORS middleware for the browser console.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
