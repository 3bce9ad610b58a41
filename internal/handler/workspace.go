package handler

import (
	"log/slog"
	"net/http"

	"github.com/rulescraft/cursorrulescraft/internal/auth"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/service"
)

// WorkspaceHandler exposes workspace and membership CRUD.
type WorkspaceHandler struct {
	workspaces *service.WorkspaceService
	logger     *slog.Logger
}

// NewWorkspaceHandler creates a WorkspaceHandler.
func NewWorkspaceHandler(workspaces *service.WorkspaceService, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, logger: logger}
}

// HandleList returns every workspace the user is a member of.
//
// HTTP: GET /api/workspaces
func (h *WorkspaceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	workspaces, err := h.workspaces.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workspaces)
}

// HandleGet returns one workspace.
//
// HTTP: GET /api/workspaces/{id}
func (h *WorkspaceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	ws, err := h.workspaces.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// HandleCreate creates an additional (non-default) workspace owned by the
// caller.
//
// HTTP: POST /api/workspaces
// BODY: {"name": "..."}
func (h *WorkspaceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	ws, err := h.workspaces.Create(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

// HandleRename renames a workspace. OWNER or ADMIN only.
//
// HTTP: PUT /api/workspaces/{id}
// BODY: {"name": "..."}
func (h *WorkspaceHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	ws, err := h.workspaces.Rename(r.Context(), userID, r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// HandleDelete deletes a workspace. OWNER only.
//
// HTTP: DELETE /api/workspaces/{id}
func (h *WorkspaceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.workspaces.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMembers returns a workspace's member list.
//
// HTTP: GET /api/workspaces/{id}/members
func (h *WorkspaceHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	members, err := h.workspaces.Members(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HandleAddMember adds a user to a workspace. OWNER or ADMIN only; the
// OWNER role itself cannot be granted this way.
//
// HTTP: POST /api/workspaces/{id}/members
// BODY: {"userId": "...", "role": "ADMIN"|"MEMBER"}
func (h *WorkspaceHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		UserID string           `json:"userId"`
		Role   model.MemberRole `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	member, err := h.workspaces.AddMember(r.Context(), userID, r.PathValue("id"), req.UserID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// HandleRemoveMember removes a member. The owner row is immovable.
//
// HTTP: DELETE /api/workspaces/{id}/members/{userId}
func (h *WorkspaceHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	err := h.workspaces.RemoveMember(r.Context(), userID, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateMemberRole changes a member's role. OWNER only.
//
// HTTP: PUT /api/workspaces/{id}/members/{userId}
// BODY: {"role": "ADMIN"|"MEMBER"}
func (h *WorkspaceHandler) HandleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		Role model.MemberRole `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	err := h.workspaces.UpdateMemberRole(r.Context(), userID, r.PathValue("id"), r.PathValue("userId"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
