package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/rulescraft/cursorrulescraft/internal/auth"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/service"
)

// stateCookie holds the OAuth CSRF nonce between authorize and callback.
const stateCookie = "oauth_state"

// stateTTL bounds how long an authorization round-trip may take.
const stateTTL = 10 * time.Minute

// UserDirectory is the slice of the store the auth handler needs: reading
// the current user's profile and upserting OAuth-login users.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpsertUser(ctx context.Context, user *model.User) error
}

// AuthHandler owns the session and GitHub OAuth endpoints.
//
// The callback serves two cases with one flow. With an active session, the
// exchanged token becomes the user's git integration (account linking).
// Without one, it is a GitHub login: the user row is upserted the same way a
// webhook sync would, the default workspace is provisioned, a session cookie
// is issued, and the token is stored as the integration.
type AuthHandler struct {
	provider     *auth.GitHubProvider
	tokens       *auth.TokenService
	integrations *service.IntegrationService
	users        UserDirectory
	lifecycle    *service.LifecycleService
	gh           service.GitHubAPI
	appURL       string // where the browser lands after the OAuth round-trip
	secureCookie bool
	logger       *slog.Logger
}

// AuthHandlerConfig collects the AuthHandler's dependencies.
type AuthHandlerConfig struct {
	Provider     *auth.GitHubProvider
	Tokens       *auth.TokenService
	Integrations *service.IntegrationService
	Users        UserDirectory
	Lifecycle    *service.LifecycleService
	GitHub       service.GitHubAPI
	AppURL       string
	SecureCookie bool
	Logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		provider:     cfg.Provider,
		tokens:       cfg.Tokens,
		integrations: cfg.Integrations,
		users:        cfg.Users,
		lifecycle:    cfg.Lifecycle,
		gh:           cfg.GitHub,
		appURL:       cfg.AppURL,
		secureCookie: cfg.SecureCookie,
		logger:       cfg.Logger,
	}
}

// HandleStatus reports the GitHub integration state for the session user.
//
// HTTP: GET /auth/github/status (authenticated)
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	status, err := h.integrations.Status(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleAuthorize starts the GitHub OAuth round-trip.
//
// HTTP: GET /auth/github/authorize
//
// Works with or without a session; the callback decides between linking and
// login. The CSRF state is a fresh nonce pinned in a short-lived cookie.
func (h *AuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// HandleCallback finishes the OAuth round-trip.
//
// HTTP: GET /auth/github/callback?code=...&state=...
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		h.logger.Warn("oauth callback with bad state", slog.String("remoteAddr", r.RemoteAddr))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_state",
			Message: "OAuth state mismatch; restart the authorization flow",
		})
		return
	}
	h.clearCookie(w, stateCookie, "/auth/github")

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_code",
			Message: "authorization code is missing",
		})
		return
	}

	accessToken, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("oauth code exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "could not complete the GitHub authorization",
		})
		return
	}

	userID, authenticated := h.sessionUser(r)
	if !authenticated {
		userID, err = h.loginWithGitHub(ctx, w, accessToken)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	if _, err := h.integrations.Link(ctx, userID, accessToken); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.appURL, http.StatusFound)
}

// HandleDisconnect removes the session user's GitHub integration.
//
// HTTP: GET /auth/github/disconnect (authenticated)
func (h *AuthHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.integrations.Unlink(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleMe returns the session user's profile.
//
// HTTP: GET /api/me (authenticated)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, auth.SessionCookie, "/")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sessionUser extracts the user ID from a valid session cookie, if any.
// Unlike RequireAuth this never fails the request; the callback route is
// reachable anonymously.
func (h *AuthHandler) sessionUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return "", false
	}
	userID, err := h.tokens.Validate(cookie.Value)
	if err != nil {
		return "", false
	}
	return userID, true
}

// loginWithGitHub turns a fresh access token into a local session: resolve
// the GitHub account, upsert the user row the same way webhook sync does,
// provision the default workspace, and set the session cookie.
func (h *AuthHandler) loginWithGitHub(ctx context.Context, w http.ResponseWriter, accessToken string) (string, error) {
	ghUser, err := h.gh.GetUser(ctx, accessToken)
	if err != nil {
		return "", err
	}

	user := &model.User{
		ID:            "gh_" + ghUser.Login,
		Email:         ghUser.Email,
		Name:          ghUser.Login,
		Username:      ghUser.Login,
		Picture:       ghUser.AvatarURL,
		EmailVerified: ghUser.Email != "",
		Provider:      model.ProviderGitHub,
	}
	if err := h.users.UpsertUser(ctx, user); err != nil {
		return "", err
	}

	if err := h.lifecycle.EnsureDefaultWorkspace(ctx, user.ID, service.NameHint{
		FirstName: ghUser.Login,
		Email:     ghUser.Email,
	}); err != nil {
		h.logger.Error("provisioning workspace for oauth login failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	sessionToken, err := h.tokens.Generate(user.ID)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(auth.SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user logged in via github", slog.String("userID", user.ID))
	return user.ID, nil
}

// clearCookie expires a cookie immediately.
func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
