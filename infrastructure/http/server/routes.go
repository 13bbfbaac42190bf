package server

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires every HTTP route of the relay behind the CORS middleware.
func NewRouter(log *slog.Logger, api *API, gateway *Gateway, verifier contract.IdentityVerifier, origins *OriginPolicy) http.Handler {
	r := mux.NewRouter()
	protected := auth.RequireSubject(log, verifier)

	// Realtime
	r.Handle("/api/socket", gateway).Methods(http.MethodGet)

	// Durable store
	r.HandleFunc("/api/messages", api.GetMessages).Methods(http.MethodGet)
	r.Handle("/api/messages", protected(http.HandlerFunc(api.CreateMessage))).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/search", api.SearchMessages).Methods(http.MethodGet)
	r.Handle("/api/messages/{id}", protected(http.HandlerFunc(api.UpdateMessage))).Methods(http.MethodPatch)
	r.Handle("/api/messages/{id}", protected(http.HandlerFunc(api.DeleteMessage))).Methods(http.MethodDelete)

	// Accounts
	r.HandleFunc("/api/auth/signup", api.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", api.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", api.Logout).Methods(http.MethodPost)
	r.Handle("/api/profile", protected(http.HandlerFunc(api.Profile))).Methods(http.MethodGet)

	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   origins.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	return c.Handler(r)
}
