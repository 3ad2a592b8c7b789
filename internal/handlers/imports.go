package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/models"
	"it-inventory-api/pkg/importer"
)

// ExcelImporter runs a spreadsheet import on behalf of a principal.
type ExcelImporter interface {
	ImportExcel(ctx context.Context, p *auth.Principal, meta models.RequestMeta, r io.Reader, opts importer.ImportOptions) (importer.ImportSummary, error)
}

// ImportsHandler handles Excel import operations
type ImportsHandler struct {
	Importer ExcelImporter
	Mapping  *importer.MappingConfig
	// MappingPath is read on each upload when Mapping is nil.
	MappingPath string
	MaxBytes    int64
	Log         *zap.Logger
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(im ExcelImporter, mapping *importer.MappingConfig, maxBytes int64, log *zap.Logger) *ImportsHandler {
	if maxBytes <= 0 {
		maxBytes = 20 << 20 // 20 MB
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ImportsHandler{Importer: im, Mapping: mapping, MaxBytes: maxBytes, Log: log}
}

// UploadExcel handles Excel file uploads for inventory import
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if err := auth.Require(p); err != nil {
		auth.WriteError(w, err)
		return
	}

	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	// Require multipart
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		badRequest(w, "INVALID_CONTENT_TYPE", "content-type must be multipart/form-data")
		return
	}

	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		badRequest(w, "INVALID_FORM", "invalid multipart form: %v", err)
		return
	}

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))
	maxErrors := importer.DefaultMaxErrors
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	// File
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "MISSING_FILE", "file is required")
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		badRequest(w, "INVALID_FILE_TYPE", "only .xlsx files are accepted")
		return
	}

	sum, impErr := h.Importer.ImportExcel(r.Context(), p, requestMeta(r), file, importer.ImportOptions{
		Mapping:     h.Mapping,
		MappingPath: h.MappingPath,
		DryRun:      dryRun,
		MaxErrors:   maxErrors,
	})
	if impErr != nil {
		status, code := auth.ErrorStatus(impErr)
		message := apperr.Message(impErr)
		switch {
		case errors.Is(impErr, apperr.ErrStorage):
			h.Log.Error("spreadsheet import failed", zap.String("file", header.Filename), zap.Error(impErr))
		case status == http.StatusInternalServerError:
			// unreadable workbooks and the error cutoff
			status, code, message = http.StatusUnprocessableEntity, "IMPORT_FAILED", impErr.Error()
		}
		writeJSON(w, status, map[string]any{
			"error": message,
			"code":  code,
			"data":  sum, // partial counts
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"file":      header.Filename,
		},
	})
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	return strings.HasSuffix(strings.ToLower(h.Filename), ".xlsx")
}

func requestMeta(r *http.Request) models.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return models.RequestMeta{IPAddress: ip, UserAgent: r.UserAgent()}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func badRequest(w http.ResponseWriter, code, format string, args ...any) {
	auth.WriteError(w, auth.WithCode(apperr.Validationf(format, args...), code))
}
