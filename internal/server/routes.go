package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"magictodo/internal/auth"
	"magictodo/internal/service"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(s.requestContext)

	r.Get("/", s.HelloWorldHandler)
	r.Get("/health", s.healthHandler)

	// One handler for every verb; the gate dispatches on path internally.
	r.HandleFunc("/api/auth/*", s.authHandler)

	r.Get("/api/protected", s.protectedHandler)

	r.Route("/api/todos", func(r chi.Router) {
		r.Get("/", s.getTodosHandler)
		r.Post("/", s.createTodoHandler)
		r.Patch("/{id}", s.toggleTodoHandler)
		r.Delete("/{id}", s.deleteTodoHandler)
	})

	r.Get("/auth/verify-magic-link", s.verifyMagicLinkHandler)

	r.Get("/todos", s.todosPageHandler)
	r.Get("/todos/login", s.loginPageHandler)

	return r
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Magic-link todo backend"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthStats := s.db.Health()
	if status, ok := healthStats["status"]; ok && status == "down" {
		respondWithJSON(w, http.StatusServiceUnavailable, healthStats)
		return
	}
	respondWithJSON(w, http.StatusOK, healthStats)
}

func (s *Server) authHandler(w http.ResponseWriter, r *http.Request) {
	gate := gateFromContext(r.Context())
	if gate == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Not available")
		return
	}
	gate.ServeHTTP(w, r)
}

func (s *Server) protectedHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"message": "This is protected data",
		"user":    auth.NewUserResponse(user),
	})
}

func (s *Server) getTodosHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	todos, err := s.todoService.List(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error calling List service: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve todos")
		return
	}

	respondWithJSON(w, http.StatusOK, todos)
}

func (s *Server) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req service.CreateTodoRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxError):
			msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
			respondWithError(w, http.StatusBadRequest, msg)
		case errors.Is(err, io.ErrUnexpectedEOF):
			respondWithError(w, http.StatusBadRequest, "Request body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
			respondWithError(w, http.StatusBadRequest, msg)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Request body contains unknown field %s", fieldName))
		case errors.Is(err, io.EOF):
			respondWithError(w, http.StatusBadRequest, "Request body must not be empty")
		default:
			log.Printf("Error decoding create todo request: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Error processing request")
		}
		return
	}

	todoResp, err := s.todoService.Create(r.Context(), user.ID, req)
	if err != nil {
		if errors.Is(err, service.ErrTitleRequired) {
			respondWithError(w, http.StatusBadRequest, "Title is required")
		} else {
			log.Printf("Error calling Create service: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create todo")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, todoResp)
}

func (s *Server) toggleTodoHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Todo ID is required")
		return
	}

	todoResp, err := s.todoService.Toggle(r.Context(), id, user.ID)
	if err != nil {
		// Missing and foreign rows answer identically; existence must
		// not leak to non-owners.
		if errors.Is(err, service.ErrNotOwner) {
			respondWithError(w, http.StatusForbidden, "Unauthorized")
		} else {
			log.Printf("Error calling Toggle service: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update todo")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, todoResp)
}

func (s *Server) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Todo ID is required")
		return
	}

	if err := s.todoService.Delete(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			respondWithError(w, http.StatusForbidden, "Unauthorized")
		} else {
			log.Printf("Error calling Delete service: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete todo")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) verifyMagicLinkHandler(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.verifyMagicLink(w, r))
}

// verifyMagicLink turns any verification outcome into a redirect back to
// the callback URL; failures carry an error code in the query string
// instead of an error page.
func (s *Server) verifyMagicLink(w http.ResponseWriter, r *http.Request) Result {
	q := r.URL.Query()
	callbackURL := q.Get("callbackURL")
	if callbackURL == "" {
		callbackURL = "/todos"
	}

	token := q.Get("token")
	if token == "" {
		return Redirect(appendErrorCode(callbackURL, "MISSING_TOKEN"))
	}

	gate := gateFromContext(r.Context())
	if gate == nil {
		return Redirect(appendErrorCode(callbackURL, "SERVER_ERROR"))
	}

	session, _, err := gate.VerifyMagicLink(r.Context(), token, auth.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			log.Printf("Error verifying magic link: %v", err)
		}
		return Redirect(appendErrorCode(callbackURL, "VERIFICATION_ERROR"))
	}

	http.SetCookie(w, gate.SessionCookie(session))
	return Redirect(callbackURL)
}

func appendErrorCode(callbackURL, code string) string {
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	return callbackURL + sep + "error=" + code
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling JSON response: %v", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
