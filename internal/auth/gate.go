package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"magictodo/internal/domain"
	"magictodo/internal/notify"
	"magictodo/internal/repository"
)

const (
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "magictodo_session"

	magicLinkTTL = 5 * time.Minute
	sessionTTL   = 7 * 24 * time.Hour
)

var (
	// ErrEmailNotAllowed rejects sign-in attempts for any email other
	// than the configured allow-listed address.
	ErrEmailNotAllowed = errors.New("email is not allow-listed")

	// ErrInvalidToken covers unknown, consumed, and expired magic-link
	// tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Gate resolves sessions and runs the magic-link sign-in flow. A Gate is
// built fresh for every request with that request's origin as baseURL;
// caching one across requests breaks redirect and cookie domains once the
// serving host varies.
type Gate struct {
	baseURL      string
	allowedEmail string
	users        repository.UserRepository
	sessions     repository.SessionRepository
	tokens       repository.VerificationTokenRepository
	notifier     notify.Notifier
}

// Config carries the per-request parameters for a Gate.
type Config struct {
	BaseURL      string
	AllowedEmail string
}

func NewGate(cfg Config, users repository.UserRepository, sessions repository.SessionRepository, tokens repository.VerificationTokenRepository, notifier notify.Notifier) *Gate {
	return &Gate{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		allowedEmail: cfg.AllowedEmail,
		users:        users,
		sessions:     sessions,
		tokens:       tokens,
		notifier:     notifier,
	}
}

// RequestMeta carries per-request client details recorded on the session.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// checkAllowedEmail is the before-request hook: sign-up and sign-in paths
// are restricted to the single allow-listed address. An empty allow-list
// rejects everyone.
func (g *Gate) checkAllowedEmail(email string) error {
	if email != "" && email != g.allowedEmail {
		return ErrEmailNotAllowed
	}
	return nil
}

// RequestMagicLink issues a single-use token for the email, logs the sign-in
// link, and delivers it through the notifier. Notifier failure is logged and
// swallowed; the link still works via the log.
func (g *Gate) RequestMagicLink(ctx context.Context, email, callbackURL string) error {
	value, err := generateToken()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	token := &domain.VerificationToken{
		Identifier: email,
		Value:      value,
		ExpiresAt:  now.Add(magicLinkTTL),
	}
	if err := g.tokens.Create(ctx, token); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify-magic-link?token=%s&callbackURL=%s",
		g.baseURL, url.QueryEscape(value), url.QueryEscape(callbackURL))

	slog.Info("magic link issued", "email", email, "url", link)

	message := fmt.Sprintf("Magic Link Sign In\n\nEmail: %s\n\nClick to sign in:\n%s\n\nExpires in 5 minutes", email, link)
	if err := g.notifier.Send(ctx, message); err != nil {
		slog.Error("failed to deliver magic link notification", "error", err)
	}

	return nil
}

// VerifyMagicLink consumes a magic-link token, creating the user on first
// sign-in, and opens a new session. The caller sets the session cookie.
func (g *Gate) VerifyMagicLink(ctx context.Context, value string, meta RequestMeta) (*domain.Session, *domain.User, error) {
	token, err := g.tokens.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	now := time.Now().UTC()
	if !now.Before(token.ExpiresAt) {
		_ = g.tokens.Delete(ctx, token.ID)
		return nil, nil, ErrInvalidToken
	}

	// Single-use: consume before establishing the session.
	if err := g.tokens.Delete(ctx, token.ID); err != nil {
		return nil, nil, err
	}

	user, err := g.users.FindByEmail(ctx, token.Identifier)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		user = &domain.User{
			Name:          nameFromEmail(token.Identifier),
			Email:         token.Identifier,
			EmailVerified: true,
		}
		if err := g.users.Create(ctx, user); err != nil {
			return nil, nil, err
		}
	} else if !user.EmailVerified {
		user.EmailVerified = true
		if err := g.users.Update(ctx, user); err != nil {
			return nil, nil, err
		}
	}

	sessionToken, err := generateToken()
	if err != nil {
		return nil, nil, err
	}

	session := &domain.Session{
		Token:     sessionToken,
		UserID:    user.ID,
		ExpiresAt: now.Add(sessionTTL),
	}
	if meta.IPAddress != "" {
		session.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		session.UserAgent = &meta.UserAgent
	}
	if err := g.sessions.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	return session, user, nil
}

// ResolveSession returns the session and user bound to the request's
// cookie, or nil/nil when there is none. Expired sessions are deleted
// opportunistically and resolve to none.
func (g *Gate) ResolveSession(ctx context.Context, r *http.Request) (*domain.Session, *domain.User, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil, nil
	}

	session, err := g.sessions.FindByToken(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	if session.Expired(time.Now().UTC()) {
		_ = g.sessions.DeleteByToken(ctx, session.Token)
		return nil, nil, nil
	}

	user, err := g.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	return session, user, nil
}

// SignOut deletes the session bound to the given token.
func (g *Gate) SignOut(ctx context.Context, token string) error {
	return g.sessions.DeleteByToken(ctx, token)
}

// SessionCookie builds the cookie for a freshly created session.
func (g *Gate) SessionCookie(session *domain.Session) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   strings.HasPrefix(g.baseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedSessionCookie expires the session cookie on the client.
func (g *Gate) ClearedSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   strings.HasPrefix(g.baseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	}
}

func nameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
