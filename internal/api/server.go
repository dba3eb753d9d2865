package api

import (
	"github.com/gorilla/mux"

	"github.com/agentbrowser/viewer/internal/hub"
)

// SetupRoutes configures all HTTP routes, including the websocket
// viewer endpoint.
func (h *Handler) SetupRoutes(hub *hub.Hub) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/hook", h.Hook).Methods("POST")

	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.UpdateSession).Methods("PATCH")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")

	api.HandleFunc("/screenshots/{sessionId}/{filename}", h.Screenshot).Methods("GET")

	api.HandleFunc("/status", h.Status).Methods("GET")
	api.HandleFunc("/command", h.Command).Methods("POST")
	api.HandleFunc("/nlp", h.NLP).Methods("POST")

	r.HandleFunc("/ws", hub.ServeWS).Methods("GET")

	r.Use(corsMiddleware)

	return r
}
