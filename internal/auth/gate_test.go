package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"magictodo/internal/domain"
	"magictodo/internal/repository"
)

type fakeUserRepo struct {
	users  map[string]domain.User // by ID
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		r.nextID++
		user.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, user *domain.User) error {
	r.users[user.ID] = *user
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]domain.Session // by token
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		r.nextID++
		session.ID = fmt.Sprintf("session-%d", r.nextID)
	}
	r.sessions[session.Token] = *session
	return nil
}

func (r *fakeSessionRepo) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	session, ok := r.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (r *fakeSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	delete(r.sessions, token)
	return nil
}

type fakeTokenRepo struct {
	tokens map[string]domain.VerificationToken // by ID
	nextID int
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]domain.VerificationToken)}
}

func (r *fakeTokenRepo) Create(ctx context.Context, token *domain.VerificationToken) error {
	if token.ID == "" {
		r.nextID++
		token.ID = fmt.Sprintf("token-%d", r.nextID)
	}
	r.tokens[token.ID] = *token
	return nil
}

func (r *fakeTokenRepo) FindByValue(ctx context.Context, value string) (*domain.VerificationToken, error) {
	for _, token := range r.tokens {
		if token.Value == value {
			t := token
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokenRepo) Delete(ctx context.Context, id string) error {
	delete(r.tokens, id)
	return nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) Send(ctx context.Context, message string) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

type gateFixture struct {
	gate     *Gate
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	tokens   *fakeTokenRepo
	notifier *fakeNotifier
}

func newGateFixture() *gateFixture {
	f := &gateFixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		tokens:   newFakeTokenRepo(),
		notifier: &fakeNotifier{},
	}
	f.gate = NewGate(Config{
		BaseURL:      "http://localhost:8080",
		AllowedEmail: "owner@example.com",
	}, f.users, f.sessions, f.tokens, f.notifier)
	return f
}

func signInRequest(email string) *http.Request {
	body := fmt.Sprintf(`{"email":%q,"callbackURL":"/todos"}`, email)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/magic-link", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSignIn_RejectsNonAllowListedEmail(t *testing.T) {
	f := newGateFixture()

	rec := httptest.NewRecorder()
	f.gate.ServeHTTP(rec, signInRequest("intruder@example.com"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if len(f.tokens.tokens) != 0 {
		t.Errorf("expected no token persisted, got %d", len(f.tokens.tokens))
	}
}

func TestSignIn_AllowListedEmailProceeds(t *testing.T) {
	f := newGateFixture()

	rec := httptest.NewRecorder()
	f.gate.ServeHTTP(rec, signInRequest("owner@example.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp["status"] {
		t.Error("expected status true")
	}
	if len(f.tokens.tokens) != 1 {
		t.Fatalf("expected one token persisted, got %d", len(f.tokens.tokens))
	}
	if len(f.notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.messages))
	}
	if !strings.Contains(f.notifier.messages[0], "http://localhost:8080/auth/verify-magic-link?token=") {
		t.Errorf("notification does not carry the sign-in link: %q", f.notifier.messages[0])
	}
}

func TestSignIn_RestrictedEvenWhenPasswordAuthDisabled(t *testing.T) {
	f := newGateFixture()

	body := `{"email":"intruder@example.com","password":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in/email", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.gate.ServeHTTP(rec, req)

	// The allow-list hook runs before dispatch, so the disabled endpoint
	// still answers 403 rather than 404 for a foreign email.
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRequestMagicLink_NotifierFailureIsSwallowed(t *testing.T) {
	f := newGateFixture()
	f.notifier.err = errors.New("webhook down")

	err := f.gate.RequestMagicLink(context.Background(), "owner@example.com", "/todos")
	if err != nil {
		t.Fatalf("expected delivery failure to be swallowed, got %v", err)
	}
	if len(f.tokens.tokens) != 1 {
		t.Errorf("expected token persisted despite notifier failure, got %d", len(f.tokens.tokens))
	}
}

func TestVerifyMagicLink_HappyPath(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()

	if err := f.gate.RequestMagicLink(ctx, "owner@example.com", "/todos"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var value string
	for _, token := range f.tokens.tokens {
		value = token.Value
	}

	session, user, err := f.gate.VerifyMagicLink(ctx, value, RequestMeta{IPAddress: "203.0.113.9", UserAgent: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Email != "owner@example.com" || !user.EmailVerified {
		t.Errorf("expected verified owner user, got %+v", user)
	}
	if session.UserID != user.ID {
		t.Errorf("expected session bound to user %q, got %q", user.ID, session.UserID)
	}
	if len(f.tokens.tokens) != 0 {
		t.Error("expected token to be consumed")
	}
	if _, err := f.sessions.FindByToken(ctx, session.Token); err != nil {
		t.Errorf("expected session persisted: %v", err)
	}
}

func TestVerifyMagicLink_UnknownToken(t *testing.T) {
	f := newGateFixture()

	_, _, err := f.gate.VerifyMagicLink(context.Background(), "bogus", RequestMeta{})
	if err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyMagicLink_ExpiredToken(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()

	expired := &domain.VerificationToken{
		Identifier: "owner@example.com",
		Value:      "stale",
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
	}
	if err := f.tokens.Create(ctx, expired); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := f.gate.VerifyMagicLink(ctx, "stale", RequestMeta{})
	if err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if len(f.tokens.tokens) != 0 {
		t.Error("expected expired token to be deleted")
	}
	if len(f.sessions.sessions) != 0 {
		t.Error("expected no session for expired token")
	}
}

func TestVerifyMagicLink_SecondUseFails(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()

	if err := f.gate.RequestMagicLink(ctx, "owner@example.com", "/todos"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var value string
	for _, token := range f.tokens.tokens {
		value = token.Value
	}

	if _, _, err := f.gate.VerifyMagicLink(ctx, value, RequestMeta{}); err != nil {
		t.Fatalf("unexpected error on first use: %v", err)
	}
	if _, _, err := f.gate.VerifyMagicLink(ctx, value, RequestMeta{}); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken on second use, got %v", err)
	}
}

func TestResolveSession_NoCookie(t *testing.T) {
	f := newGateFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	session, user, err := f.gate.ResolveSession(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil || user != nil {
		t.Error("expected no session without a cookie")
	}
}

func TestResolveSession_Expired(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()

	if err := f.users.Create(ctx, &domain.User{Email: "owner@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale := &domain.Session{
		Token:     "stale-session",
		UserID:    "user-1",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := f.sessions.Create(ctx, stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stale-session"})

	session, _, err := f.gate.ResolveSession(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Error("expected expired session to resolve to none")
	}
	if len(f.sessions.sessions) != 0 {
		t.Error("expected expired session to be deleted")
	}
}

func TestGetSession_ReturnsNullWithoutSession(t *testing.T) {
	f := newGateFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/get-session", nil)
	rec := httptest.NewRecorder()
	f.gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Errorf("expected null body, got %q", body)
	}
}

func TestSignOut_DeletesSession(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()

	live := &domain.Session{
		Token:     "live-session",
		UserID:    "user-1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := f.sessions.Create(ctx, live); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "live-session"})
	rec := httptest.NewRecorder()
	f.gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.sessions.sessions) != 0 {
		t.Error("expected session to be deleted")
	}
}

func TestUnknownAuthPath(t *testing.T) {
	f := newGateFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/nope", nil)
	rec := httptest.NewRecorder()
	f.gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
