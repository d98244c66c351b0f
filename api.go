package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTransport marks a request that never produced a usable response.
var ErrTransport = errors.New("transport failure")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// errorMessage picks the message to show for err: the backend's own
// message when it sent one, otherwise fallback for HTTP failures and
// network for transport failures.
func errorMessage(err error, fallback, network string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	return network
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
}

// Backend is a client for the forum REST API.
type Backend struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewBackend(baseURL string, timeout time.Duration, logger *zap.Logger) *Backend {
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (b *Backend) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var resp AuthResponse
	err := b.do(ctx, http.MethodPost, "/auth/login", "", creds, &resp)
	return resp, err
}

func (b *Backend) Register(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var resp AuthResponse
	err := b.do(ctx, http.MethodPost, "/auth/register", "", creds, &resp)
	return resp, err
}

func (b *Backend) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := b.do(ctx, http.MethodGet, "/posts/all", "", nil, &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

func (b *Backend) CreatePost(ctx context.Context, token, title, content string) error {
	body := map[string]string{"title": title, "content": content}
	return b.do(ctx, http.MethodPost, "/posts", token, body, nil)
}

func (b *Backend) DeletePost(ctx context.Context, token, id string) error {
	return b.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), token, nil, nil)
}

func (b *Backend) CreateComment(ctx context.Context, token, postID, content string) error {
	body := map[string]string{"postId": postID, "content": content}
	return b.do(ctx, http.MethodPost, "/comments", token, body, nil)
}

// do performs one request. A nil out accepts any 2xx body. Failing to
// read or decode a required body counts as a transport failure.
func (b *Backend) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrTransport, err)
	}
	defer resp.Body.Close()

	b.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %w: %v", method, path, ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: parseMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decoding body: %w: %v", method, path, ErrTransport, err)
	}
	return nil
}

// parseMessage extracts the "message" field of an error body. Validation
// errors may carry a list of strings, which are joined.
func parseMessage(data []byte) string {
	var body struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Message) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(body.Message, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(body.Message, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}
