package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/abkit/pkg/flags"
)

func (s *Server) listFlags(w http.ResponseWriter, r *http.Request) {
	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}
	list, err := s.deps.Flags.ListFlags(r.Context(), tags...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*flags.Flag{}
	}
	respondMeta(w, http.StatusOK, list, map[string]any{"total": len(list)})
}

func (s *Server) getFlag(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Flags.GetFlag(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (s *Server) createFlag(w http.ResponseWriter, r *http.Request) {
	var f flags.Flag
	if err := decodeJSON(r, &f); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Flags.CreateFlag(r.Context(), &f); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondFlag(w, r, http.StatusCreated, f.Name)
}

func (s *Server) updateFlag(w http.ResponseWriter, r *http.Request) {
	var f flags.Flag
	if err := decodeJSON(r, &f); err != nil {
		s.fail(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	if f.Name == "" {
		f.Name = name
	}
	if f.Name != name {
		s.fail(w, r, fmt.Errorf("%w: body name %q does not match path %q", ErrBadRequest, f.Name, name))
		return
	}
	if err := s.deps.Flags.UpdateFlag(r.Context(), &f); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondFlag(w, r, http.StatusOK, name)
}

func (s *Server) deleteFlag(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Flags.DeleteFlag(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondFlag answers with the stored flag so timestamps set by the provider
// are visible to the caller.
func (s *Server) respondFlag(w http.ResponseWriter, r *http.Request, status int, name string) {
	stored, err := s.deps.Flags.GetFlag(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, status, stored)
}
