package api

import (
	"net/http"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

type recordResponse struct {
	Recorded bool `json:"recorded"`
}

// recordEvent accepts one metric event. A duplicate or an event dropped by a
// closing store is still acknowledged with 202 and recorded=false.
func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var ev experiment.Event
	if err := decodeJSON(r, &ev); err != nil {
		s.fail(w, r, err)
		return
	}
	recorded, err := s.deps.Events.Record(r.Context(), ev)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, recordResponse{Recorded: recorded})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	params, err := requireQuery(r, "flag", "participant_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Resolver.Resolve(r.Context(), params[0], params[1])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}
