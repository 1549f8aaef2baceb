// Package respond escreve as respostas JSON do próprio gateway (erros, health).
//
// Respostas dos backends nunca passam por aqui: essas são repassadas como vieram.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody é o formato uniforme de erro do gateway: {"error": "..."} mais
// campos opcionais (path, requestId).
type ErrorBody struct {
	Error     string `json:"error"`
	Path      string `json:"path,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// JSON serializa v com o status informado.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error escreve {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}

// StatusError usa o texto padrão do status como mensagem (ex: "Too Many Requests").
func StatusError(w http.ResponseWriter, status int) {
	Error(w, status, http.StatusText(status))
}
