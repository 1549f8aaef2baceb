package main

import (
	"io"
	"net/http"

	"cab-gateway/middleware/requestid"
	"cab-gateway/respond"
)

// maxEchoBody limita quanto do corpo volta na resposta.
const maxEchoBody = 64 << 10

type echoResponse struct {
	Service       string `json:"service"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         string `json:"query,omitempty"`
	Host          string `json:"host"`
	ForwardedFor  string `json:"forwardedFor,omitempty"`
	ForwardedHost string `json:"forwardedHost,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	Body          string `json:"body,omitempty"`
}

// newEchoHandler responde com o que recebeu. Serve de backend (auth, cab,
// order) para rodar o gateway localmente.
func newEchoHandler(service string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": service})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEchoBody))
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "failed to read body")
			return
		}
		respond.JSON(w, http.StatusOK, echoResponse{
			Service:       service,
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Host:          r.Host,
			ForwardedFor:  r.Header.Get("X-Forwarded-For"),
			ForwardedHost: r.Header.Get("X-Forwarded-Host"),
			RequestID:     r.Header.Get(requestid.Header),
			Body:          string(body),
		})
	})
	return mux
}
