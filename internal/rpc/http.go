package rpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBody bounds an HTTP request body
const maxBody = 1 << 20

// NewHandler returns the HTTP bridge: POST /rpc takes one request envelope,
// GET /state returns the session snapshot and GET /healthz reports liveness.
func NewHandler(d *Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Post("/rpc", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		// quit only ends line sessions; over HTTP it just disconnects
		resp, _ := d.Handle(req.Context(), body)
		writeJSON(w, resp)
	})

	r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, d.session.State())
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
