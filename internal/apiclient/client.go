// Package apiclient is the HTTP implementation of the attempt engine's
// Backend contract, plus the small auth surface the CLI shell needs.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/attempt"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/response"
)

// Client talks to a QuizMaster server. It implements attempt.Backend.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a Client for the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken installs the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// envelope mirrors the server's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    response.ErrCode  `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return translateError(env.Error.Code, env.Error.Message, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// translateError maps the server's error codes onto the engine's sentinel
// errors so the session reacts uniformly regardless of transport.
func translateError(code response.ErrCode, message string, status int) error {
	switch code {
	case response.ErrAlreadySubmitted:
		return attempt.ErrAlreadySubmitted
	case response.ErrAttemptNotFound:
		return attempt.ErrNoAttempt
	case response.ErrTestInactive:
		return attempt.ErrTestInactive
	case response.ErrTestNotStarted:
		return attempt.ErrTestNotStarted
	case response.ErrTestEnded:
		return attempt.ErrTestEnded
	case response.ErrValidation, response.ErrAnswerCountMismatch, response.ErrInvalidPayload:
		// Terminal rejection: retrying the same payload cannot succeed.
		return fmt.Errorf("%w: %s", attempt.ErrSubmitRejected, message)
	default:
		return fmt.Errorf("server error %s (%d): %s", code, status, message)
	}
}

// ─── Auth ───────────────────────────────────────────────────────────

// LoginResult carries the token and profile returned by the server.
type LoginResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", model.RegisterRequest{
		Email: email, Name: name, Password: password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Login authenticates and installs the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Email: email, Password: password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// SetRole records the one-time role choice and installs the fresh token
// the server issues with the new role claim.
func (c *Client) SetRole(ctx context.Context, role model.Role) error {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/role", model.SetRoleRequest{Role: string(role)}, &out)
	if err != nil {
		return err
	}
	if out.Token != "" {
		c.token = out.Token
	}
	return nil
}

// ─── Student surface (attempt.Backend) ──────────────────────────────

// Lobby lists active tests with the student's attempt status.
func (c *Client) Lobby(ctx context.Context) ([]json.RawMessage, error) {
	var out struct {
		Tests []json.RawMessage `json:"tests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/tests", nil, &out); err != nil {
		return nil, err
	}
	return out.Tests, nil
}

// FetchTest returns the answer-stripped payload for one test.
func (c *Client) FetchTest(ctx context.Context, testID uuid.UUID) (*model.TestPayload, error) {
	var out struct {
		Test model.TestPayload `json:"test"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/tests/"+testID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out.Test, nil
}

// LatestAttempt returns the student's attempt, or attempt.ErrNoAttempt.
// The student identity comes from the bearer token; the argument exists to
// satisfy the Backend contract.
func (c *Client) LatestAttempt(ctx context.Context, testID uuid.UUID, _ int) (*model.Attempt, error) {
	var out struct {
		Attempt model.Attempt `json:"attempt"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/tests/"+testID.String()+"/attempt", nil, &out); err != nil {
		return nil, err
	}
	return &out.Attempt, nil
}

// StartAttempt creates or resumes the attempt.
func (c *Client) StartAttempt(ctx context.Context, testID uuid.UUID, _ int) (*model.Attempt, error) {
	var out struct {
		Attempt model.Attempt `json:"attempt"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/student/tests/"+testID.String()+"/attempt", nil, &out); err != nil {
		return nil, err
	}
	return &out.Attempt, nil
}

// SubmitAttempt sends the display-order answer vector. An already
// finalized attempt comes back as attempt.ErrAlreadySubmitted, which
// callers treat as success.
func (c *Client) SubmitAttempt(ctx context.Context, testID uuid.UUID, _ int, answers []int) error {
	var out struct {
		Outcome model.SubmitOutcome `json:"outcome"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/student/tests/"+testID.String()+"/attempt/submit",
		model.SubmitAttemptRequest{Answers: answers}, &out)
	if err != nil {
		return err
	}
	if out.Outcome.AlreadySubmitted {
		return attempt.ErrAlreadySubmitted
	}
	return nil
}

// Result fetches the student's graded result for a test.
func (c *Client) Result(ctx context.Context, testID uuid.UUID) (*model.Result, error) {
	var out struct {
		Result model.Result `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/tests/"+testID.String()+"/result", nil, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}
