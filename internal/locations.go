package internal

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"it-inventory-api/internal/models"
)

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	page, err := parseListParams(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	res, err := s.Query.ListLocations(r.Context(), principal(r), parseLocationFilter(r), page)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendListResponse(w, res)
}

func (s *Server) getLocation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	l, err := s.Query.GetLocation(r.Context(), principal(r), id)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) createLocation(w http.ResponseWriter, r *http.Request) {
	var in models.CreateLocationRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.sendError(w, r, err)
		return
	}

	l, err := s.Mutator.CreateLocation(r.Context(), principal(r), in, requestMeta(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	patch := models.Patch{}
	if err := decodeJSON(w, r, &patch); err != nil {
		s.sendError(w, r, err)
		return
	}

	l, changed, err := s.Mutator.UpdateLocation(r.Context(), principal(r), id, patch, requestMeta(r))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	setChangedFields(w, changed)
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if err := s.Mutator.DeleteLocation(r.Context(), principal(r), id, requestMeta(r)); err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messagef("location %d deleted", id))
}

func (s *Server) locationHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	page, err := parseHistoryPage(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	entries, err := s.Query.LocationHistory(r.Context(), principal(r), id, page)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendEntries(w, entries)
}
