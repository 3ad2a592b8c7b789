package internal

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"it-inventory-api/internal/models"
)

// LIST with filters & pagination
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	page, err := parseListParams(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	filter, err := parseItemFilter(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	res, err := s.Query.ListItems(r.Context(), principal(r), filter, page)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendListResponse(w, res)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.Query.GetItem(r.Context(), principal(r), chi.URLParam(r, "asset_tag"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var in models.CreateItemRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, r, err)
		return
	}

	it, err := s.Mutator.CreateItem(r.Context(), principal(r), in, requestMeta(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// updateItem applies a partial update. The changed field names are returned
// in the X-Changed-Fields header.
func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	patch := models.Patch{}
	if err := decodeJSON(w, r, &patch); err != nil {
		s.sendError(w, r, err)
		return
	}

	it, changed, err := s.Mutator.UpdateItem(r.Context(), principal(r), chi.URLParam(r, "asset_tag"), patch, requestMeta(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	setChangedFields(w, changed)
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "asset_tag")
	if err := s.Mutator.DeleteItem(r.Context(), principal(r), tag, requestMeta(r)); err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messagef("inventory item %s deleted", tag))
}

func (s *Server) toggleLoaner(w http.ResponseWriter, r *http.Request) {
	it, err := s.Mutator.ToggleLoaner(r.Context(), principal(r), chi.URLParam(r, "asset_tag"), requestMeta(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) itemHistory(w http.ResponseWriter, r *http.Request) {
	page, err := parseHistoryPage(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	entries, err := s.Query.AssetHistory(r.Context(), principal(r), chi.URLParam(r, "asset_tag"), page)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendEntries(w, entries)
}

func setChangedFields(w http.ResponseWriter, changed []string) {
	if len(changed) == 0 {
		return
	}
	names := append([]string(nil), changed...)
	sort.Strings(names)
	w.Header().Set("X-Changed-Fields", strings.Join(names, ","))
}
