package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type lexiconRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Words       []string `json:"words"`
}

type conceptRequest struct {
	Name  string   `json:"name"`
	Terms []string `json:"terms"`
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) changed() {
	if s.deps.OnLexiconChange != nil {
		s.deps.OnLexiconChange()
	}
}

func (s *Server) handleListLexicons(w http.ResponseWriter, r *http.Request) {
	lexicons, err := s.deps.Lexicons.ListLexicons(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lexicons)
}

func (s *Server) handleCreateLexicon(w http.ResponseWriter, r *http.Request) {
	var req lexiconRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	lex, err := s.deps.Lexicons.CreateLexicon(r.Context(), req.Name, req.Description, req.Words)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusCreated, lex)
}

func (s *Server) handleGetLexicon(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	lex, err := s.deps.Lexicons.GetLexicon(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lex)
}

func (s *Server) handleDeleteLexicon(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Lexicons.DeleteLexicon(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.changed()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := s.deps.Lexicons.ListConcepts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, concepts)
}

func (s *Server) handleCreateConcept(w http.ResponseWriter, r *http.Request) {
	var req conceptRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	c, err := s.deps.Lexicons.CreateConcept(r.Context(), req.Name, req.Terms)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.changed()
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetConcept(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := s.deps.Lexicons.GetConcept(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteConcept(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Lexicons.DeleteConcept(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.changed()
	w.WriteHeader(http.StatusNoContent)
}
