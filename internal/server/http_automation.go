package server

import (
	"encoding/json"
	"net/http"

	"github.com/harborview/pulse/internal/catalog"
)

// automationEventRequest is the body of POST /v1/automation/events. The
// consumer synthesizes a named event into a workspace; it reaches live
// streams and the catch-up buffer but is not delivered back to the
// consumer.
type automationEventRequest struct {
	ScopeID   string         `json:"scope_id"`
	SubjectID string         `json:"subject_id"`
	Name      string         `json:"name"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// handleAutomationEvent handles POST /v1/automation/events.
func (s *PulseServer) handleAutomationEvent(w http.ResponseWriter, r *http.Request) {
	var req automationEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	scopeID, ok := trimNonEmpty(req.ScopeID)
	if !ok {
		writeError(w, http.StatusBadRequest, "scope_id is required")
		return
	}
	name, ok := trimNonEmpty(req.Name)
	if !ok {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	env, err := catalog.NewEnvelope(catalog.KindAutomationEvent, scopeID, req.SubjectID, catalog.AutomationEvent{
		Name:   name,
		Fields: req.Fields,
	}, catalog.System())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.dispatcher.Inject(env)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// jobCompleteRequest is the body of POST /v1/automation/jobs/{id}/complete.
type jobCompleteRequest struct {
	ScopeID string `json:"scope_id"`
	Result  string `json:"result,omitempty"`
}

// handleJobComplete handles POST /v1/automation/jobs/{id}/complete.
func (s *PulseServer) handleJobComplete(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req jobCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	scopeID, ok := trimNonEmpty(req.ScopeID)
	if !ok {
		writeError(w, http.StatusBadRequest, "scope_id is required")
		return
	}

	env, err := catalog.NewEnvelope(catalog.KindJobCompleted, scopeID, jobID, catalog.JobCompleted{
		JobID:  jobID,
		Result: req.Result,
	}, catalog.System())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.dispatcher.Inject(env)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
