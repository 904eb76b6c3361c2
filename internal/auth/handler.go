package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"magictodo/internal/domain"
)

// restrictedPaths are the sign-up/sign-in endpoints subject to the
// allow-list hook. The hook runs before dispatch, so it also covers
// endpoints that are otherwise disabled.
var restrictedPaths = map[string]bool{
	"/sign-up/email":      true,
	"/sign-in/email":      true,
	"/sign-in/magic-link": true,
}

// UserResponse is the wire representation of a user.
type UserResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"emailVerified"`
	Image         *string `json:"image,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

// SessionResponse is the wire representation of a session. The token is
// never echoed; it only travels in the cookie.
type SessionResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
		CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewSessionResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ServeHTTP handles everything under /api/auth/. A single handler serves
// all verbs; unknown paths get a 404 after the allow-list hook has run.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/auth")

	var body struct {
		Email       string `json:"email"`
		CallbackURL string `json:"callbackURL"`
	}
	if r.Body != nil && r.Method != http.MethodGet {
		// Best-effort decode; endpoints validate their own fields.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if restrictedPaths[path] {
		if err := g.checkAllowedEmail(body.Email); err != nil {
			slog.Warn("sign-in rejected by allow-list", "path", path, "email", body.Email)
			writeJSON(w, http.StatusForbidden, map[string]string{
				"message": "Access restricted. Only authorized users can sign in.",
			})
			return
		}
	}

	switch {
	case r.Method == http.MethodPost && path == "/sign-in/magic-link":
		g.handleMagicLinkSignIn(w, r, body.Email, body.CallbackURL)

	case r.Method == http.MethodGet && path == "/get-session":
		g.handleGetSession(w, r)

	case r.Method == http.MethodPost && path == "/sign-out":
		g.handleSignOut(w, r)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
}

func (g *Gate) handleMagicLinkSignIn(w http.ResponseWriter, r *http.Request, email, callbackURL string) {
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email is required"})
		return
	}
	if callbackURL == "" {
		callbackURL = "/todos"
	}

	if err := g.RequestMagicLink(r.Context(), email, callbackURL); err != nil {
		slog.Error("failed to issue magic link", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal Server Error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"status": true})
}

func (g *Gate) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, user, err := g.ResolveSession(r.Context(), r)
	if err != nil {
		slog.Error("failed to resolve session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal Server Error"})
		return
	}
	if session == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": NewSessionResponse(session),
		"user":    NewUserResponse(user),
	})
}

func (g *Gate) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := g.SignOut(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to delete session", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal Server Error"})
			return
		}
	}
	http.SetCookie(w, g.ClearedSessionCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
