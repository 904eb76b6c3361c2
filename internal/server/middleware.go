package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"magictodo/internal/auth"
	"magictodo/internal/domain"
)

type contextKey int

const (
	gateKey contextKey = iota
	sessionKey
	userKey
)

// requestContext is the per-request context builder: it computes the
// request's origin, constructs a fresh auth gate with it, resolves the
// session, and stashes everything in the request context. The gate is
// never cached across requests since the origin varies per request.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gate := auth.NewGate(auth.Config{
			BaseURL:      s.requestOrigin(r),
			AllowedEmail: s.cfg.AllowedEmail,
		}, s.users, s.sessions, s.tokens, s.notifier)

		ctx := context.WithValue(r.Context(), gateKey, gate)

		// The auth handler resolves sessions itself.
		if !strings.HasPrefix(r.URL.Path, "/api/auth/") {
			session, user, err := gate.ResolveSession(ctx, r)
			if err != nil {
				// Treat a resolution failure as an anonymous request;
				// the handler decides whether auth is required.
				slog.Error("failed to resolve session", "error", err)
			}
			if session != nil {
				ctx = context.WithValue(ctx, sessionKey, session)
				ctx = context.WithValue(ctx, userKey, user)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestOrigin reconstructs the serving origin from the request so that
// magic-link URLs and cookies match the host the client actually used.
func (s *Server) requestOrigin(r *http.Request) string {
	if r.Host == "" {
		return s.cfg.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func gateFromContext(ctx context.Context) *auth.Gate {
	gate, _ := ctx.Value(gateKey).(*auth.Gate)
	return gate
}

func sessionFromContext(ctx context.Context) *domain.Session {
	session, _ := ctx.Value(sessionKey).(*domain.Session)
	return session
}

func userFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

// clientIP extracts the caller's address for session records.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
