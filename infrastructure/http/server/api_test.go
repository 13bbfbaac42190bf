package server

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apiFixture struct {
	handler  http.Handler
	accounts *mocks.MockIAuthService
	messages *mocks.MockMessageStore
	token    string
	subject  domain.Subject
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tokens := auth.NewTokenManager(testSecret, time.Hour)
	verifier := auth.NewJWTVerifier(tokens)
	accounts := mocks.NewMockIAuthService(ctrl)
	messages := mocks.NewMockMessageStore(ctrl)
	registry := runtime.NewRegistry()
	origins := NewOriginPolicy(log, []string{"*"})
	gateway := NewGateway(log, verifier, registry, runtime.NewRouter(log, registry), origins, DefaultGatewayConfig())

	subject := domain.Subject{ID: "alice-id", Name: "alice"}
	token, err := tokens.GenerateToken(subject, nil)
	require.NoError(t, err)

	return &apiFixture{
		handler:  NewRouter(log, NewAPI(log, accounts, messages, time.Hour), gateway, verifier, origins),
		accounts: accounts,
		messages: messages,
		token:    token,
		subject:  subject,
	}
}

func (f *apiFixture) do(method, path string, body any, authenticated bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if authenticated {
		r.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAPI_GetMessages(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	cursor := "0001:abc"
	history := []domain.Message{
		{ID: "1", Text: "first", Author: "alice", CreatedAt: time.Now().UTC()},
		{ID: "2", Text: "second", Author: "bob", CreatedAt: time.Now().UTC()},
	}
	f.messages.EXPECT().List(gomock.Any(), &cursor, 10).Return(history, nil, nil)

	rec := f.do(http.MethodGet, "/api/messages?before=0001:abc&limit=10", nil, false)

	req.Equal(http.StatusOK, rec.Code)
	var body messagesResponse
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Len(body.Messages, 2)
	req.Equal("first", body.Messages[0].Text)
	req.Nil(body.Cursor)
}

func TestAPI_GetMessages_Invalid_Limit(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/messages?limit=zero", nil, false)
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateMessage(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("requires a token", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/messages", map[string]string{"text": "hi"}, false)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing text", func(t *testing.T) {
		req := require.New(t)
		rec := f.do(http.MethodPost, "/api/messages", map[string]string{"user": "alice"}, true)
		req.Equal(http.StatusBadRequest, rec.Code)
		req.Equal("Missing text or user", decode(t, rec)["message"])
	})

	t.Run("saved", func(t *testing.T) {
		req := require.New(t)
		createdAt := time.Now().UTC().Truncate(time.Millisecond)
		f.messages.EXPECT().
			Persist(gomock.Any(), f.subject, domain.Message{Text: "hi", CreatedAt: createdAt}).
			Return(domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: createdAt}, nil)

		rec := f.do(http.MethodPost, "/api/messages", map[string]any{"text": "hi", "createdAt": createdAt}, true)

		req.Equal(http.StatusCreated, rec.Code)
		body := decode(t, rec)
		req.Equal("Message saved", body["message"])
		req.Equal("42", body["id"])
	})

	t.Run("store down", func(t *testing.T) {
		req := require.New(t)
		f.messages.EXPECT().Persist(gomock.Any(), f.subject, gomock.Any()).
			Return(domain.Message{}, errors.ErrPersistenceFailure)

		rec := f.do(http.MethodPost, "/api/messages", map[string]any{"text": "hi"}, true)
		req.Equal(http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAPI_UpdateMessage(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"owner", nil, http.StatusOK},
		{"not owner", errors.ErrForbidden, http.StatusForbidden},
		{"unknown", errors.ErrMessageNotFound, http.StatusNotFound},
		{"store failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.messages.EXPECT().Update(gomock.Any(), f.subject, "msg-1", "edited").
				Return(domain.Message{ID: "msg-1", Text: "edited"}, tc.err)
			rec := f.do(http.MethodPatch, "/api/messages/msg-1", map[string]string{"text": "edited"}, true)
			require.Equal(t, tc.status, rec.Code)
		})
	}

	t.Run("requires a token", func(t *testing.T) {
		rec := f.do(http.MethodPatch, "/api/messages/msg-1", map[string]string{"text": "edited"}, false)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAPI_DeleteMessage(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	f.messages.EXPECT().Delete(gomock.Any(), f.subject, "msg-1").Return(nil)
	f.messages.EXPECT().Delete(gomock.Any(), f.subject, "msg-2").Return(errors.ErrForbidden)

	req.Equal(http.StatusOK, f.do(http.MethodDelete, "/api/messages/msg-1", nil, true).Code)
	req.Equal(http.StatusForbidden, f.do(http.MethodDelete, "/api/messages/msg-2", nil, true).Code)
	req.Equal(http.StatusUnauthorized, f.do(http.MethodDelete, "/api/messages/msg-1", nil, false).Code)
}

func TestAPI_SearchMessages(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	f.messages.EXPECT().Search(gomock.Any(), "pizza", defaultSearchSize).
		Return([]domain.Message{{ID: "1", Text: "pizza tonight"}}, nil)

	rec := f.do(http.MethodGet, "/api/messages/search?q=pizza", nil, false)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(http.StatusBadRequest, f.do(http.MethodGet, "/api/messages/search", nil, false).Code)
}

func TestAPI_Signup(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	f.accounts.EXPECT().Register("a@example.com", "alice", "ComplexPass123!").
		Return(domain.User{ID: "u1", Email: "a@example.com", Username: "alice"}, nil)
	f.accounts.EXPECT().Register("a@example.com", "alice", "ComplexPass123!").
		Return(domain.User{}, errors.ErrUserAlreadyExists)

	body := map[string]string{"email": "a@example.com", "username": "alice", "password": "ComplexPass123!"}
	rec := f.do(http.MethodPost, "/api/auth/signup", body, false)
	req.Equal(http.StatusCreated, rec.Code)
	req.Equal("u1", decode(t, rec)["id"])

	rec = f.do(http.MethodPost, "/api/auth/signup", body, false)
	req.Equal(http.StatusUnprocessableEntity, rec.Code)
	req.Equal("User already exists!", decode(t, rec)["message"])
}

func TestAPI_Login(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	f.accounts.EXPECT().Login("a@example.com", "good").
		Return(domain.Token("signed"), domain.User{ID: "u1", Username: "alice"}, nil)
	f.accounts.EXPECT().Login("a@example.com", "bad").
		Return(domain.Token(""), domain.User{}, errors.ErrInvalidCredentials)

	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": "good"}, false)
	req.Equal(http.StatusOK, rec.Code)
	body := decode(t, rec)
	req.Equal("signed", body["token"])
	req.Equal("alice", body["username"])
	req.Contains(rec.Header().Get("Set-Cookie"), "token=signed")

	rec = f.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": "bad"}, false)
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Equal("Invalid credentials!", decode(t, rec)["message"])
}

func TestAPI_Logout_Clears_Cookie(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/auth/logout", nil, false)
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Header().Get("Set-Cookie"), "token=;")
	req.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestAPI_Profile(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	f.accounts.EXPECT().Profile("alice-id").
		Return(domain.User{ID: "alice-id", Email: "a@example.com", Username: "alice"}, nil)

	rec := f.do(http.MethodGet, "/api/profile", nil, true)
	req.Equal(http.StatusOK, rec.Code)
	body := decode(t, rec)
	req.Equal("alice-id", body["id"])
	req.Equal("alice", body["username"])
	req.Equal("a@example.com", body["email"])

	req.Equal(http.StatusUnauthorized, f.do(http.MethodGet, "/api/profile", nil, false).Code)
}

func TestAPI_Health(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/health", nil, false)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("chat-relay is running", rec.Body.String())
}
