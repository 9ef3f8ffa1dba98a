package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/causal/internal/causal"
	"github.com/Harshitk-cp/causal/internal/domain"
	"github.com/Harshitk-cp/causal/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CausalHandler struct {
	svc    *service.CausalService
	logger *zap.Logger
}

func NewCausalHandler(svc *service.CausalService, logger *zap.Logger) *CausalHandler {
	return &CausalHandler{svc: svc, logger: logger}
}

type addVariableRequest struct {
	ID         string              `json:"id" validate:"required"`
	Label      string              `json:"label"`
	Type       domain.VariableType `json:"type" validate:"omitempty,oneof=continuous binary categorical"`
	Categories []string            `json:"categories"`
	Latent     bool                `json:"latent"`
	Value      *float64            `json:"value"`
}

type addEdgeRequest struct {
	Cause    string           `json:"cause" validate:"required"`
	Effect   string           `json:"effect" validate:"required"`
	Equation *domain.Equation `json:"equation"`
	Strength *float64         `json:"strength" validate:"omitempty,gte=0,lte=1"`
}

type interveneRequest struct {
	Intervention domain.Intervention `json:"intervention" validate:"required"`
	Target       string              `json:"target" validate:"required"`
}

type counterfactualRequest struct {
	Evidence  domain.Evidence   `json:"evidence"`
	Scenarios []domain.Scenario `json:"scenarios" validate:"required,min=1,dive"`
	Outcome   string            `json:"outcome" validate:"required"`
}

type counterfactualResponse struct {
	Outcome string                  `json:"outcome"`
	Results []causal.ScenarioResult `json:"results"`
}

type effectRequest struct {
	Treatment  string   `json:"treatment" validate:"required"`
	Outcome    string   `json:"outcome" validate:"required"`
	Control    *float64 `json:"control"`
	Treated    *float64 `json:"treated"`
	Adjustment []string `json:"adjustment"`
}

type ruleRequest struct {
	Rule causal.Rule `json:"rule" validate:"required,oneof=1 2 3"`
	causal.RuleQuery
}

type ruleResponse struct {
	Rule  causal.Rule `json:"rule"`
	Holds bool        `json:"holds"`
}

type listGraphsResponse struct {
	Graphs []domain.GraphSummary `json:"graphs"`
	Count  int                   `json:"count"`
}

type pathsResponse struct {
	From  string              `json:"from"`
	To    string              `json:"to"`
	Paths []causal.CausalPath `json:"paths"`
}

func (h *CausalHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var spec domain.GraphSpec
	if !decodeBody(w, r, &spec) {
		return
	}

	sum, err := h.svc.CreateGraph(r.Context(), spec)
	if err != nil {
		writeServiceError(w, h.logger, "create graph", err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (h *CausalHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs := h.svc.ListGraphs(r.Context())
	writeJSON(w, http.StatusOK, listGraphsResponse{Graphs: graphs, Count: len(graphs)})
}

func (h *CausalHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.GetGraph(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get graph", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *CausalHandler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteGraph(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "delete graph", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CausalHandler) AddVariable(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	var req addVariableRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sum, err := h.svc.AddVariable(r.Context(), id, domain.Variable{
		ID:         req.ID,
		Label:      req.Label,
		Type:       req.Type,
		Categories: req.Categories,
		Latent:     req.Latent,
		Value:      req.Value,
	})
	if err != nil {
		writeServiceError(w, h.logger, "add variable", err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (h *CausalHandler) RemoveVariable(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.RemoveVariable(r.Context(), id, chi.URLParam(r, "variable")); err != nil {
		writeServiceError(w, h.logger, "remove variable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CausalHandler) AddEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	var req addEdgeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sum, err := h.svc.AddEdge(r.Context(), id, domain.CausalEdge{
		Cause:    req.Cause,
		Effect:   req.Effect,
		Equation: req.Equation,
		Strength: req.Strength,
	})
	if err != nil {
		writeServiceError(w, h.logger, "add edge", err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (h *CausalHandler) Intervene(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	var req interveneRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.Intervene(r.Context(), id, req.Intervention, req.Target)
	if err != nil {
		writeServiceError(w, h.logger, "intervene", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CausalHandler) Counterfactual(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	var req counterfactualRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results, err := h.svc.Counterfactual(r.Context(), id, req.Evidence, req.Scenarios, req.Outcome)
	if err != nil {
		writeServiceError(w, h.logger, "evaluate counterfactual", err)
		return
	}
	writeJSON(w, http.StatusOK, counterfactualResponse{Outcome: req.Outcome, Results: results})
}

func (h *CausalHandler) EstimateEffect(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	var req effectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	est, err := h.svc.EstimateEffect(r.Context(), id, causal.EffectQuery{
		Treatment:  req.Treatment,
		Outcome:    req.Outcome,
		Control:    req.Control,
		Treated:    req.Treated,
		Adjustment: req.Adjustment,
	})
	if err != nil {
		writeServiceError(w, h.logger, "estimate effect", err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (h *CausalHandler) AdjustmentSet(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	treatment := r.URL.Query().Get("treatment")
	outcome := r.URL.Query().Get("outcome")
	if treatment == "" || outcome == "" {
		writeError(w, http.StatusBadRequest, "treatment and outcome are required")
		return
	}

	res, err := h.svc.AdjustmentSet(r.Context(), id, treatment, outcome)
	if err != nil {
		writeServiceError(w, h.logger, "find adjustment set", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CausalHandler) ExplainPaths(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	paths, err := h.svc.ExplainPaths(r.Context(), id, from, to)
	if err != nil {
		writeServiceError(w, h.logger, "explain paths", err)
		return
	}
	writeJSON(w, http.StatusOK, pathsResponse{From: from, To: to, Paths: paths})
}

func (h *CausalHandler) CheckRule(w http.ResponseWriter, r *http.Request) {
	id, ok := graphID(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	holds, err := h.svc.CheckRule(r.Context(), id, req.Rule, req.RuleQuery)
	if err != nil {
		writeServiceError(w, h.logger, "check rule", err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResponse{Rule: req.Rule, Holds: holds})
}

func graphID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid graph id")
		return uuid.Nil, false
	}
	return id, true
}
