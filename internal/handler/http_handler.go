package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/service"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// HTTPHandler exposes the hazard workflow over HTTP.
type HTTPHandler struct {
	hazards    *service.HazardService
	extensions *service.ExtensionService
	configs    *service.WorkflowConfigService
	autoReject *service.AutoRejectService
	log        zerolog.Logger
}

func NewHTTPHandler(hazards *service.HazardService, extensions *service.ExtensionService, configs *service.WorkflowConfigService, autoReject *service.AutoRejectService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		hazards:    hazards,
		extensions: extensions,
		configs:    configs,
		autoReject: autoReject,
		log:        log,
	}
}

// Register wires all routes onto the router.
func (h *HTTPHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/hazards", h.ReportHazard).Methods(http.MethodPost)
	api.HandleFunc("/hazards", h.ListHazards).Methods(http.MethodGet)
	api.HandleFunc("/hazards/{id}", h.GetHazard).Methods(http.MethodGet)
	api.HandleFunc("/hazards/{id}/actions", h.DispatchAction).Methods(http.MethodPost)
	api.HandleFunc("/hazards/{id}/actions", h.AvailableActions).Methods(http.MethodGet)
	api.HandleFunc("/hazards/{id}/void", h.VoidHazard).Methods(http.MethodPost)
	api.HandleFunc("/hazards/{id}/workflow", h.PreviewWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/hazards/{id}/logs", h.ListLogs).Methods(http.MethodGet)
	api.HandleFunc("/hazards/{id}/extensions", h.RequestExtension).Methods(http.MethodPost)
	api.HandleFunc("/hazards/{id}/extensions", h.ListExtensions).Methods(http.MethodGet)
	api.HandleFunc("/hazards/{id}/extensions/approve", h.ApproveExtension).Methods(http.MethodPost)
	api.HandleFunc("/hazards/{id}/extensions/reject", h.RejectExtension).Methods(http.MethodPost)

	api.HandleFunc("/users/{id}/deactivate", h.DeactivateUser).Methods(http.MethodPost)

	api.HandleFunc("/workflow-config", h.ActiveConfig).Methods(http.MethodGet)
	api.HandleFunc("/workflow-config", h.PublishConfig).Methods(http.MethodPut)
	api.HandleFunc("/workflow-config/{version}", h.ConfigVersion).Methods(http.MethodGet)
}

// userID extracts the caller's identity.
// TODO: replace the X-User-ID header with JWT claims once the identity
// service is wired in.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (h *HTTPHandler) ReportHazard(w http.ResponseWriter, r *http.Request) {
	var req service.ReportHazardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	hz, err := h.hazards.ReportHazard(r.Context(), userID(r), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, hz)
}

func (h *HTTPHandler) ListHazards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	filter := repository.HazardFilter{
		Status:    q.Get("status"),
		RiskLevel: q.Get("risk_level"),
		Type:      q.Get("type"),
		Location:  q.Get("location"),
		Page:      page,
		PageSize:  pageSize,
	}

	hazards, total, err := h.hazards.List(r.Context(), userID(r), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hazards": hazards,
		"total":   total,
	})
}

func (h *HTTPHandler) GetHazard(w http.ResponseWriter, r *http.Request) {
	hz, err := h.hazards.Get(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hz)
}

func (h *HTTPHandler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	var req service.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	hz, err := h.hazards.Dispatch(r.Context(), mux.Vars(r)["id"], userID(r), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hz)
}

func (h *HTTPHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.hazards.AvailableActions(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if actions == nil {
		actions = []workflow.Action{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *HTTPHandler) VoidHazard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	hz, err := h.hazards.Void(r.Context(), mux.Vars(r)["id"], userID(r), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hz)
}

func (h *HTTPHandler) PreviewWorkflow(w http.ResponseWriter, r *http.Request) {
	steps, err := h.hazards.PreviewWorkflow(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	// StepResolution carries error values; flatten for JSON.
	type stepView struct {
		StepIndex  int                    `json:"stepIndex"`
		StepID     string                 `json:"stepId"`
		StepName   string                 `json:"stepName"`
		Success    bool                   `json:"success"`
		Mode       workflow.ApprovalMode  `json:"approvalMode,omitempty"`
		Candidates []workflow.Candidate   `json:"candidates,omitempty"`
		CCUserIDs  []string               `json:"ccUserIds,omitempty"`
		Error      string                 `json:"error,omitempty"`
	}
	out := make([]stepView, 0, len(steps))
	for _, s := range steps {
		v := stepView{
			StepIndex:  s.StepIndex,
			StepID:     s.StepID,
			StepName:   s.StepName,
			Success:    s.Success,
			Mode:       s.Mode,
			Candidates: s.Candidates,
			CCUserIDs:  s.CCUserIDs,
		}
		if s.Err != nil {
			v.Error = s.Err.Error()
		}
		out = append(out, v)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"steps": out})
}

func (h *HTTPHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.hazards.Logs(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *HTTPHandler) RequestExtension(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewDeadline time.Time `json:"newDeadline"`
		Reason      string    `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	ext, err := h.extensions.Request(r.Context(), mux.Vars(r)["id"], userID(r), req.NewDeadline, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ext)
}

func (h *HTTPHandler) ListExtensions(w http.ResponseWriter, r *http.Request) {
	// Visibility piggybacks on hazard read access.
	if _, err := h.hazards.Get(r.Context(), mux.Vars(r)["id"], userID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	exts, err := h.extensions.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"extensions": exts})
}

func (h *HTTPHandler) ApproveExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := h.extensions.Approve(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ext)
}

func (h *HTTPHandler) RejectExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := h.extensions.Reject(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ext)
}

// DeactivateUser is the hook the identity side calls when an account goes
// away: every open hazard waiting on that user is sent back a step.
func (h *HTTPHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	rejected, err := h.autoReject.HandleUserDeactivated(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rejected": rejected})
}

func (h *HTTPHandler) ActiveConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.Active(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *HTTPHandler) ConfigVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil {
		h.writeError(w, apperr.InvalidInput("version", "must be an integer"))
		return
	}
	cfg, err := h.configs.Version(r.Context(), version)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *HTTPHandler) PublishConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps []workflow.Step `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	cfg, err := h.configs.Publish(r.Context(), userID(r), req.Steps)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cfg)
}

// ── response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps coded errors onto HTTP statuses.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperr.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case apperr.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperr.ErrCodeConflict:
		status = http.StatusConflict
	case apperr.ErrCodeIllegalTransition, apperr.ErrCodeConfig:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(apperr.CodeOf(err)),
	})
}
