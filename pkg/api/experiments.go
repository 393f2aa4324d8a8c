package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/abkit/pkg/decision"
	"github.com/dmitrymomot/abkit/pkg/experiment"
)

type variantsRequest struct {
	Variants []experiment.Variant `json:"variants"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type assignmentResponse struct {
	ExperimentID  string         `json:"experiment_id"`
	ParticipantID string         `json:"participant_id"`
	VariantID     string         `json:"variant_id"`
	Params        map[string]any `json:"params,omitempty"`
}

func (s *Server) listExperiments(w http.ResponseWriter, r *http.Request) {
	var states []experiment.State
	if raw := r.URL.Query().Get("state"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			states = append(states, experiment.State(strings.TrimSpace(st)))
		}
	}
	list := s.deps.Registry.List(r.Context(), states...)
	respondMeta(w, http.StatusOK, list, map[string]any{"total": len(list)})
}

func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var exp experiment.Experiment
	if err := decodeJSON(r, &exp); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.deps.Registry.Create(r.Context(), &exp)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/experiments/"+created.ID)
	respond(w, http.StatusCreated, created)
}

func (s *Server) getExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.deps.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, exp)
}

func (s *Server) updateVariants(w http.ResponseWriter, r *http.Request) {
	var req variantsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	exp, err := s.deps.Registry.UpdateVariants(r.Context(), chi.URLParam(r, "id"), req.Variants)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, exp)
}

func (s *Server) startExperiment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Registry.Start)
}

func (s *Server) rejectExperiment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Registry.Reject)
}

func (s *Server) archiveExperiment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Registry.Archive)
}

func (s *Server) confirmExperiment(w http.ResponseWriter, r *http.Request) {
	s.actionTransition(w, r, s.deps.Registry.Confirm)
}

func (s *Server) concludeExperiment(w http.ResponseWriter, r *http.Request) {
	s.actionTransition(w, r, s.deps.Registry.Conclude)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*experiment.Experiment, error)) {
	exp, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, exp)
}

func (s *Server) actionTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string, action experiment.Action) (*experiment.Experiment, error)) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	action, err := experiment.ParseAction(req.Action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	exp, err := fn(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, exp)
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Analyzer.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	meta := map[string]any{
		"state":       report.State,
		"events":      report.Events,
		"analyzed_at": report.AnalyzedAt,
	}
	if len(report.Omnibus) > 0 {
		meta["omnibus"] = report.Omnibus
	}
	respondMeta(w, http.StatusOK, report.Results, meta)
}

func (s *Server) decisions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Registry.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	var history []decision.Decision
	if s.deps.Decisions != nil {
		history = s.deps.Decisions.History(id)
	}
	if history == nil {
		history = []decision.Decision{}
	}
	respondMeta(w, http.StatusOK, history, map[string]any{"total": len(history)})
}

func (s *Server) assignment(w http.ResponseWriter, r *http.Request) {
	id, participant := chi.URLParam(r, "id"), chi.URLParam(r, "participant")
	v, err := s.deps.Assigner.AssignVariant(r.Context(), id, participant)
	if err != nil {
		s.fail(w, r, fmt.Errorf("assign %s: %w", id, err))
		return
	}
	respond(w, http.StatusOK, assignmentResponse{
		ExperimentID:  id,
		ParticipantID: participant,
		VariantID:     v.ID,
		Params:        v.Params,
	})
}
