package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"workchat/internal/models"
)

const networkErrorMessage = "Network error"

// Result is the uniform shape every gateway call resolves to. Remote
// failure is never surfaced as a Go error: call sites branch on Success
// only. Token is populated by login and register.
type Result[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Token   string `json:"token,omitempty"`
}

// TokenSource supplies the bearer credential for authenticated calls.
// An empty token means the Authorization header is omitted and the
// server is responsible for rejecting the request.
type TokenSource interface {
	Token() string
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ClientID       string `json:"clientId,omitempty"`
}

type createConversationRequest struct {
	ParticipantID string `json:"participantId"`
}

func (c *Client) Login(ctx context.Context, email, password string) Result[models.User] {
	return c.authenticate(ctx, "/auth/login", loginRequest{Email: email, Password: password})
}

func (c *Client) Register(ctx context.Context, username, email, password string, role models.Role) Result[models.User] {
	return c.authenticate(ctx, "/auth/register", registerRequest{
		Username: username,
		Email:    email,
		Password: password,
		Role:     string(role),
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) Result[models.User] {
	resp, err := c.send(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return Result[models.User]{Message: networkErrorMessage}
	}
	defer func() { _ = resp.Body.Close() }()

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return Result[models.User]{Message: fmt.Sprintf("Invalid server response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result[models.User]{Message: fallbackMessage(auth.Message, "Authentication failed")}
	}

	return Result[models.User]{
		Success: true,
		Message: auth.Message,
		Data:    auth.User,
		Token:   auth.Token,
	}
}

func (c *Client) Conversations(ctx context.Context) Result[[]models.Conversation] {
	return get[[]models.Conversation](c, ctx, "/conversations",
		"Conversations fetched", "Failed to fetch conversations")
}

func (c *Client) Messages(ctx context.Context, conversationID string) Result[[]models.Message] {
	return get[[]models.Message](c, ctx, "/messages/"+conversationID,
		"Messages fetched", "Failed to fetch messages")
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content, clientID string) Result[models.Message] {
	return post[models.Message](c, ctx, "/messages", sendMessageRequest{
		ConversationID: conversationID,
		Content:        content,
		ClientID:       clientID,
	}, "Message sent", "Failed to send message")
}

func (c *Client) Users(ctx context.Context) Result[[]models.User] {
	return get[[]models.User](c, ctx, "/users",
		"Users fetched", "Failed to fetch users")
}

func (c *Client) CreateConversation(ctx context.Context, participantID string) Result[models.Conversation] {
	return post[models.Conversation](c, ctx, "/conversations",
		createConversationRequest{ParticipantID: participantID},
		"Conversation created", "Failed to create conversation")
}

func get[T any](c *Client, ctx context.Context, path, okMessage, failMessage string) Result[T] {
	resp, err := c.send(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return Result[T]{Message: networkErrorMessage}
	}
	return decode[T](resp, okMessage, failMessage)
}

func post[T any](c *Client, ctx context.Context, path string, body any, okMessage, failMessage string) Result[T] {
	resp, err := c.send(ctx, http.MethodPost, path, body, true)
	if err != nil {
		return Result[T]{Message: networkErrorMessage}
	}
	return decode[T](resp, okMessage, failMessage)
}

func decode[T any](resp *http.Response, okMessage, failMessage string) Result[T] {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var serverErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&serverErr)
		return Result[T]{Message: fallbackMessage(serverErr.Message, failMessage)}
	}

	var data T
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result[T]{Message: fmt.Sprintf("Invalid server response: %v", err)}
	}

	return Result[T]{Success: true, Message: okMessage, Data: data}
}

func (c *Client) send(ctx context.Context, method, path string, body any, withAuth bool) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return c.http.Do(req)
}

func fallbackMessage(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
