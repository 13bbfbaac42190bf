package client

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// StoreClient talks to the relay REST API.
type StoreClient struct {
	baseURL string
	http    *http.Client
	token   string
}

var _ contract.MessagePersister = (*StoreClient)(nil)

func NewStoreClient(baseURL string, httpClient *http.Client) *StoreClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &StoreClient{baseURL: baseURL, http: httpClient}
}

// WithToken returns a copy authenticated with token.
func (s *StoreClient) WithToken(token string) *StoreClient {
	c := *s
	c.token = token
	return &c
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Login exchanges credentials for a bearer token and the account's username.
func (s *StoreClient) Login(ctx context.Context, email, password string) (string, string, error) {
	var out loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := s.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return "", "", err
	}
	return out.Token, out.Username, nil
}

func (s *StoreClient) Signup(ctx context.Context, email, username, password string) error {
	body := map[string]string{"email": email, "username": username, "password": password}
	return s.do(ctx, http.MethodPost, "/api/auth/signup", body, nil)
}

type historyResponse struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor"`
}

// History returns the latest page of messages, oldest first, and the cursor
// of the page before it.
func (s *StoreClient) History(ctx context.Context, before *string, limit int) ([]domain.Message, *string, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before != nil {
		query.Set("before", *before)
	}
	path := "/api/messages"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out historyResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Messages, out.Cursor, nil
}

type saveRequest struct {
	Text      string    `json:"text"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	ClientKey string    `json:"clientKey,omitempty"`
}

type saveResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Save is the durable half of a send.
func (s *StoreClient) Save(ctx context.Context, message domain.Message) (domain.Message, error) {
	var out saveResponse
	body := saveRequest{Text: message.Text, User: message.Author, CreatedAt: message.CreatedAt, ClientKey: message.ClientKey}
	if err := s.do(ctx, http.MethodPost, "/api/messages", body, &out); err != nil {
		return domain.Message{}, err
	}
	message.ID = out.ID
	message.CreatedAt = out.CreatedAt
	return message, nil
}

func (s *StoreClient) Search(ctx context.Context, q string) ([]domain.Message, error) {
	var out historyResponse
	if err := s.do(ctx, http.MethodGet, "/api/messages/search?q="+url.QueryEscape(q), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type apiError struct {
	Message string `json:"message"`
}

func (s *StoreClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errors.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%w: %s", statusError(resp.StatusCode), apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errors.ErrTransport, path, err)
	}
	return nil
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return errors.ErrAuthRejected
	case http.StatusForbidden:
		return errors.ErrForbidden
	case http.StatusNotFound:
		return errors.ErrMessageNotFound
	case http.StatusUnprocessableEntity:
		return errors.ErrUserAlreadyExists
	case http.StatusBadRequest:
		return errors.ErrInvalidRequest
	case http.StatusServiceUnavailable:
		return errors.ErrPersistenceFailure
	default:
		return fmt.Errorf("%w: status %d", errors.ErrTransport, code)
	}
}
