package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rulescraft/cursorrulescraft/internal/auth"
	"github.com/rulescraft/cursorrulescraft/internal/service"
)

// RepoHandler exposes the repository-connection API. All routes sit behind
// RequireAuth; the acting user comes from the request context.
type RepoHandler struct {
	repos  *service.RepoService
	logger *slog.Logger
}

// NewRepoHandler creates a RepoHandler.
func NewRepoHandler(repos *service.RepoService, logger *slog.Logger) *RepoHandler {
	return &RepoHandler{repos: repos, logger: logger}
}

// HandleList returns a workspace's connected repositories.
//
// HTTP: GET /api/repositories?workspaceId={id}
func (h *RepoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	workspaceID := r.URL.Query().Get("workspaceId")

	repos, err := h.repos.List(r.Context(), userID, workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// HandleListAvailable lists the user's remote GitHub repositories for the
// connect picker. Credential problems come back as a status field, not an
// error status code.
//
// HTTP: GET /api/repositories/github/available?page=&perPage=
func (h *RepoHandler) HandleListAvailable(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "perPage", 0)

	listing, err := h.repos.ListAvailable(r.Context(), userID, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// HandleConnect attaches a GitHub repository to a workspace.
//
// HTTP: POST /api/repositories/github/connect
// BODY: {"workspaceId": "...", "owner": "...", "name": "..."}
func (h *RepoHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req struct {
		WorkspaceID string `json:"workspaceId"`
		Owner       string `json:"owner"`
		Name        string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	repo, err := h.repos.Connect(r.Context(), userID, req.WorkspaceID, req.Owner, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// HandleSync refreshes one repository's metadata from GitHub.
//
// HTTP: POST /api/repositories/{id}/sync
func (h *RepoHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	repo, err := h.repos.Sync(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// HandleDisconnect detaches a repository from its workspace.
//
// HTTP: DELETE /api/repositories/{id}
func (h *RepoHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.repos.Disconnect(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
