package handler

import (
	"log/slog"
	"net/http"

	"github.com/rulescraft/cursorrulescraft/internal/auth"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/service"
)

// RuleHandler exposes cursor-rule CRUD. Collection routes hang off the
// owning repository; item routes address rules directly.
type RuleHandler struct {
	rules  *service.RuleService
	logger *slog.Logger
}

// NewRuleHandler creates a RuleHandler.
func NewRuleHandler(rules *service.RuleService, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{rules: rules, logger: logger}
}

// ruleRequest is the write shape shared by create and update.
type ruleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Globs       string `json:"globs"`
	AlwaysApply bool   `json:"alwaysApply"`
}

func (req *ruleRequest) toModel() *model.Rule {
	return &model.Rule{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		Globs:       req.Globs,
		AlwaysApply: req.AlwaysApply,
	}
}

// HandleList returns a repository's rules.
//
// HTTP: GET /api/repositories/{id}/rules
func (h *RuleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	rules, err := h.rules.List(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// HandleCreate creates a rule under a repository.
//
// HTTP: POST /api/repositories/{id}/rules
func (h *RuleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	rule, err := h.rules.Create(r.Context(), userID, r.PathValue("id"), req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// HandleGet returns one rule.
//
// HTTP: GET /api/rules/{id}
func (h *RuleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	rule, err := h.rules.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// HandleUpdate replaces a rule's mutable fields.
//
// HTTP: PUT /api/rules/{id}
func (h *RuleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	rule, err := h.rules.Update(r.Context(), userID, r.PathValue("id"), req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// HandleDelete removes a rule.
//
// HTTP: DELETE /api/rules/{id}
func (h *RuleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.rules.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
