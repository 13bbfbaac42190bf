package server

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize   = 50
	defaultSearchSize = 20
)

// API exposes the durable store, accounts and profile over REST.
type API struct {
	log      *slog.Logger
	accounts contract.IAuthService
	messages contract.MessageStore
	tokenTTL time.Duration
}

func NewAPI(log *slog.Logger, accounts contract.IAuthService, messages contract.MessageStore, tokenTTL time.Duration) *API {
	return &API{log: log, accounts: accounts, messages: messages, tokenTTL: tokenTTL}
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

type savedResponse struct {
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetMessages returns one page of history, oldest first.
func (a *API) GetMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultPageSize
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	var before *string
	if raw := query.Get("before"); raw != "" {
		before = &raw
	}

	messages, cursor, err := a.messages.List(r.Context(), before, limit)
	if err != nil {
		writeError(a.log, w, err, "Failed to load messages")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: messages, Cursor: cursor})
}

// CreateMessage is the durable half of a send.
func (a *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	var body auth.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing text or user")
		return
	}
	if err := auth.ValidateMessage(body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing text or user")
		return
	}

	message := domain.Message{Text: body.Text, ClientKey: body.ClientKey}
	if body.CreatedAt != nil {
		message.CreatedAt = *body.CreatedAt
	}
	saved, err := a.messages.Persist(r.Context(), subject, message)
	if err != nil {
		writeError(a.log, w, err, "Failed to save message")
		return
	}
	writeJSON(w, http.StatusCreated, savedResponse{Message: "Message saved", ID: saved.ID, CreatedAt: saved.CreatedAt})
}

func (a *API) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	var body auth.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || auth.ValidateMessage(body) != nil {
		writeMessage(w, http.StatusBadRequest, "Missing text or id")
		return
	}

	updated, err := a.messages.Update(r.Context(), subject, mux.Vars(r)["id"], body.Text)
	if err != nil {
		writeError(a.log, w, err, "Failed to update message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Message updated successfully", "data": updated})
}

func (a *API) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	if err := a.messages.Delete(r.Context(), subject, mux.Vars(r)["id"]); err != nil {
		writeError(a.log, w, err, "Failed to delete message")
		return
	}
	writeMessage(w, http.StatusOK, "Message deleted successfully")
}

func (a *API) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeMessage(w, http.StatusBadRequest, "Missing query")
		return
	}
	messages, err := a.messages.Search(r.Context(), q, defaultSearchSize)
	if err != nil {
		writeError(a.log, w, err, "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := a.accounts.Register(body.Email, body.Username, body.Password)
	if err != nil {
		writeError(a.log, w, err, "Signup failed")
		return
	}
	a.log.Info("User created", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully!", "id": user.ID})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	token, user, err := a.accounts.Login(body.Email, body.Password)
	if err != nil {
		writeError(a.log, w, err, "Login failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token.String(),
		Path:     "/",
		MaxAge:   int(a.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token.String(), "username": user.Username})
}

func (a *API) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	writeMessage(w, http.StatusOK, "Logged out")
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	user, err := a.accounts.Profile(subject.ID)
	if err != nil {
		writeError(a.log, w, err, "Profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Health is the liveness probe.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("chat-relay is running"))
}
