package server

import "net/http"

// Result is the tagged outcome of a page-flow handler: a body to serialize,
// a redirect, or a failure. Redirects are ordinary control flow here, not
// error values; the routing layer translates each variant to the wire.
type Result struct {
	status   int
	body     any
	html     []byte
	location string
}

// Ok carries a JSON body.
func Ok(status int, body any) Result {
	return Result{status: status, body: body}
}

// HTML carries a rendered page.
func HTML(status int, page []byte) Result {
	return Result{status: status, html: page}
}

// Redirect sends the client elsewhere with a 302.
func Redirect(location string) Result {
	return Result{status: http.StatusFound, location: location}
}

// Failure carries a JSON error body.
func Failure(status int, message string) Result {
	return Result{status: status, body: map[string]string{"error": message}}
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res Result) {
	switch {
	case res.location != "":
		http.Redirect(w, r, res.location, res.status)
	case res.html != nil:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(res.status)
		_, _ = w.Write(res.html)
	default:
		respondWithJSON(w, res.status, res.body)
	}
}
