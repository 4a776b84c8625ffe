package kit

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Count     *int   `json:"count,omitempty"`
	Total     any    `json:"total,omitempty"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

func WriteList(w http.ResponseWriter, status int, n int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Count: &n, Data: data})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	WriteJSON(w, status, Envelope{
		Success:   false,
		Error:     msg,
		RequestID: chimw.GetReqID(r.Context()),
	})
}
