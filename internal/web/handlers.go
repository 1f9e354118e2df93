package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/definitions"
	"github.com/switchyard-dev/switchyard/internal/metrics"
	"github.com/switchyard-dev/switchyard/internal/selector"
)

// SelectRequest is the request body for workflow selection.
type SelectRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Labels   []string `json:"labels"`
	Platform string   `json:"platform,omitempty"`
}

// SelectResponse describes a completed selection.
type SelectResponse struct {
	ChosenName     string   `json:"chosen_name"`
	Mode           string   `json:"mode"`
	Classification string   `json:"classification,omitempty"`
	Reasoning      string   `json:"reasoning"`
	Source         string   `json:"source,omitempty"`
	Steps          []string `json:"steps,omitempty"`
}

// WorkflowSummary is one catalog entry in the list view.
type WorkflowSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Source      string   `json:"source"`
	Steps       []string `json:"steps"`
}

// WorkflowStep is one step in the detail view.
type WorkflowStep struct {
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	InstructionRef     string   `json:"instruction_ref,omitempty"`
	SingleTurn         bool     `json:"single_turn,omitempty"`
	UsesValidationLoop bool     `json:"uses_validation_loop,omitempty"`
	RequiresApproval   bool     `json:"requires_approval,omitempty"`
	DisallowAllTools   bool     `json:"disallow_all_tools,omitempty"`
	DisallowedTools    []string `json:"disallowed_tools,omitempty"`
	PostsOutput        bool     `json:"posts_output"`
}

// WorkflowDetail is the full view of one workflow.
type WorkflowDetail struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Source      string         `json:"source"`
	Steps       []WorkflowStep `json:"steps"`
}

// WorkflowListResponse is the catalog list view.
type WorkflowListResponse struct {
	Workflows     []WorkflowSummary `json:"workflows"`
	ExternalCount int               `json:"external_count"`
	Errors        map[string]string `json:"errors,omitempty"`
	LoadedAt      time.Time         `json:"loaded_at"`
}

// RefreshResponse reports the outcome of a definitions refresh.
type RefreshResponse struct {
	Workflows     int               `json:"workflows"`
	ExternalCount int               `json:"external_count"`
	Errors        map[string]string `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSelect runs one workflow selection.
// POST /api/v1/select
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}

	platform := s.platform
	if req.Platform != "" {
		parsed, err := core.ParsePlatform(req.Platform)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		platform = parsed
	}

	text := req.Title
	if req.Body != "" {
		text += "\n\n" + req.Body
	}

	decision := s.selector.Select(r.Context(), selector.Request{
		Text:     text,
		Labels:   req.Labels,
		Platform: platform,
		Catalog:  s.catalog(),
	})
	s.metrics.RecordSelectionOutcome(string(decision.Mode))

	resp := SelectResponse{
		ChosenName:     decision.ChosenName,
		Mode:           string(decision.Mode),
		Classification: string(decision.Classification),
		Reasoning:      decision.Reasoning,
	}
	if decision.Procedure != nil {
		resp.Source = string(decision.Procedure.Source)
		for _, step := range decision.Procedure.Steps {
			resp.Steps = append(resp.Steps, step.Name)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleListWorkflows returns the merged catalog.
// GET /api/v1/workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		respondError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}

	procs := snap.Procedures()
	resp := WorkflowListResponse{
		Workflows:     make([]WorkflowSummary, 0, len(procs)),
		ExternalCount: snap.ExternalCount(),
		Errors:        errorStrings(snap.Errors()),
		LoadedAt:      snap.LoadedAt(),
	}
	for _, p := range procs {
		summary := WorkflowSummary{
			Name:        p.Name,
			Description: p.Description,
			Source:      string(p.Source),
			Steps:       make([]string, 0, len(p.Steps)),
		}
		for _, step := range p.Steps {
			summary.Steps = append(summary.Steps, step.Name)
		}
		resp.Workflows = append(resp.Workflows, summary)
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleGetWorkflow returns one workflow with its full step list.
// GET /api/v1/workflows/{name}
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		respondError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}

	name := chi.URLParam(r, "name")
	proc, ok := snap.Procedure(name)
	if !ok {
		err := core.ErrNotFound("workflow", name)
		respondError(w, statusForError(err), err.Error())
		return
	}

	detail := WorkflowDetail{
		Name:        proc.Name,
		Description: proc.Description,
		Source:      string(proc.Source),
		Steps:       make([]WorkflowStep, 0, len(proc.Steps)),
	}
	for i := range proc.Steps {
		step := &proc.Steps[i]
		detail.Steps = append(detail.Steps, WorkflowStep{
			Name:               step.Name,
			Description:        step.Description,
			InstructionRef:     step.InstructionRef,
			SingleTurn:         step.IsSingleTurn(),
			UsesValidationLoop: step.HasValidationLoop(),
			RequiresApproval:   step.NeedsApproval(),
			DisallowAllTools:   step.ToolsDisallowed(),
			DisallowedTools:    step.DisallowedTools,
			PostsOutput:        step.PostsOutput(),
		})
	}

	respondJSON(w, http.StatusOK, detail)
}

// handleRefreshDefinitions re-fetches and reloads external definitions.
// POST /api/v1/definitions/refresh
func (s *Server) handleRefreshDefinitions(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		respondError(w, http.StatusServiceUnavailable, "no definition source configured")
		return
	}

	snap, err := s.loader.Refresh(r.Context())
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	s.metrics.RecordDefinitionLoad(len(snap.Errors()))
	s.recordCatalogSize(snap)

	respondJSON(w, http.StatusOK, RefreshResponse{
		Workflows:     len(snap.Procedures()),
		ExternalCount: snap.ExternalCount(),
		Errors:        errorStrings(snap.Errors()),
	})
}

// catalog returns the current snapshot as a selection catalog, or nil when
// nothing is loaded yet.
func (s *Server) catalog() selector.Catalog {
	if snap := s.snapshot(); snap != nil {
		return snap
	}
	return nil
}

func (s *Server) snapshot() *definitions.Snapshot {
	if s.loader == nil {
		return nil
	}
	return s.loader.Snapshot()
}

// recordCatalogSize updates the loaded-definitions gauges from the merged
// view, where external definitions have already replaced same-named
// builtins.
func (s *Server) recordCatalogSize(snap *definitions.Snapshot) {
	builtin, external := 0, 0
	for _, p := range snap.Procedures() {
		if p.Source == core.SourceExternal {
			external++
		} else {
			builtin++
		}
	}
	s.metrics.SetLoadedDefinitions(metrics.SourceBuiltin, builtin)
	s.metrics.SetLoadedDefinitions(metrics.SourceExternal, external)
}

func errorStrings(errs map[string]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for file, err := range errs {
		out[file] = err.Error()
	}
	return out
}
