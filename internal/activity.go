package internal

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/pkg/importer"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// me returns the principal carried by the bearer token.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p == nil {
		s.sendError(w, r, apperr.Unauthorizedf("authentication required"))
		return
	}
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject": p.Subject,
		"name":    p.Name,
		"roles":   roles,
	})
}

func (s *Server) actorHistory(w http.ResponseWriter, r *http.Request) {
	page, err := parseHistoryPage(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	entries, err := s.Query.ActorHistory(r.Context(), principal(r), r.URL.Query().Get("actor"), page)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendEntries(w, entries)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Query.Stats(r.Context(), principal(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) recentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.sendError(w, r, apperr.Validationf("limit must be a positive integer"))
			return
		}
		limit = v
	}
	entries, err := s.Query.RecentActivity(r.Context(), principal(r), limit)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendEntries(w, entries)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Query.Export(r.Context(), principal(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// exportXLSX renders the export snapshot as a workbook download.
func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Query.Export(r.Context(), principal(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	// Render fully before writing headers so a failure can still become a 500.
	var buf bytes.Buffer
	if err := importer.WriteExport(&buf, snap); err != nil {
		s.sendError(w, r, err)
		return
	}
	filename := fmt.Sprintf("inventory-export-%s.xlsx", snap.GeneratedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
