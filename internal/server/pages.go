package server

import (
	"bytes"
	"html/template"
	"log"
	"net/http"

	"magictodo/internal/domain"
	"magictodo/internal/service"
)

var todosPageTmpl = template.Must(template.New("todos").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Todos</title></head>
<body>
  <h1>Todos</h1>
  <p>Signed in as {{.User.Email}}</p>
  <form method="post" action="/api/auth/sign-out" id="signout"><button>Sign out</button></form>
  <ul>
  {{range .Todos}}
    <li>{{if .Completed}}&#9745;{{else}}&#9744;{{end}} {{.Title}}</li>
  {{else}}
    <li>No todos yet.</li>
  {{end}}
  </ul>
</body>
</html>
`))

var loginPageTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
  <h1>Sign in</h1>
  <form id="login">
    <input type="email" name="email" placeholder="you@example.com" required>
    <button>Send magic link</button>
  </form>
  <p id="sent" hidden>Check your messages for a sign-in link.</p>
  <script>
    document.getElementById("login").addEventListener("submit", async (e) => {
      e.preventDefault();
      const email = e.target.email.value;
      const res = await fetch("/api/auth/sign-in/magic-link", {
        method: "POST",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ email: email, callbackURL: "/todos" }),
      });
      document.getElementById("sent").hidden = !res.ok;
      if (!res.ok) alert("Sign-in request was rejected.");
    });
  </script>
</body>
</html>
`))

func (s *Server) todosPageHandler(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.todosPage(r))
}

// todosPage requires a session server-side before rendering; absence means
// a redirect to the login page, mirroring the API's 401.
func (s *Server) todosPage(r *http.Request) Result {
	user := userFromContext(r.Context())
	if user == nil || sessionFromContext(r.Context()) == nil {
		return Redirect("/todos/login")
	}

	todos, err := s.todoService.List(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error loading todos page: %v", err)
		return Failure(http.StatusInternalServerError, "Failed to load todos")
	}

	return renderPage(todosPageTmpl, struct {
		User  *domain.User
		Todos []service.TodoResponse
	}{User: user, Todos: todos})
}

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.loginPage(r))
}

func (s *Server) loginPage(r *http.Request) Result {
	if userFromContext(r.Context()) != nil {
		return Redirect("/todos")
	}
	return renderPage(loginPageTmpl, nil)
}

func renderPage(tmpl *template.Template, data any) Result {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("Error rendering page template: %v", err)
		return Failure(http.StatusInternalServerError, "Failed to render page")
	}
	return HTML(http.StatusOK, buf.Bytes())
}
