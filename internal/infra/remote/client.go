// Package remote talks to the job and view-state endpoints of the server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"jobsync-client/internal/config"
	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/adapter"
	"jobsync-client/internal/infra/logging"
)

var _ adapter.RemoteService = (*Client)(nil)

// HTTPError is a non-2xx answer the client could not map to a domain error.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match 404s against domain.ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// errorBody is the server's error envelope.
type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	clock      clockwork.Clock
	log        *zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option  { return func(c *Client) { c.httpClient = hc } }
func WithClock(clock clockwork.Clock) Option { return func(c *Client) { c.clock = clock } }
func WithLogger(l *zerolog.Logger) Option    { return func(c *Client) { c.log = l } }

// WithRetryDelays overrides the backoff used between retries.
func WithRetryDelays(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

func NewClient(cfg config.RemoteConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      strings.TrimSpace(cfg.Token),
		maxRetries: cfg.MaxRetries,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	c.log = logging.Component(c.log, "remote")
	return c
}

func (c *Client) SubmitChat(ctx context.Context, req adapter.ChatSubmitRequest) (adapter.SubmitResult, error) {
	var out adapter.SubmitResult
	err := c.doJSON(ctx, http.MethodPost, "/v1/chat/jobs", req, &out)
	return out, err
}

func (c *Client) SubmitUpload(ctx context.Context, kind model.JobKind, req adapter.UploadSubmitRequest) (adapter.SubmitResult, error) {
	if !kind.IsUpload() {
		return adapter.SubmitResult{}, domain.ErrInvalidArgument
	}
	var out adapter.SubmitResult
	err := c.doJSON(ctx, http.MethodPost, uploadPath(kind), req, &out)
	return out, err
}

// Status returns domain.ErrUnknownJob when the server has no such job.
func (c *Client) Status(ctx context.Context, kind model.JobKind, jobID string) (model.Job, error) {
	p := "/v1/chat/jobs/" + url.PathEscape(jobID)
	if kind.IsUpload() {
		p = uploadPath(kind) + "/" + url.PathEscape(jobID)
	}
	var out model.Job
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &out); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.Job{}, fmt.Errorf("%w: %s", domain.ErrUnknownJob, jobID)
		}
		return model.Job{}, err
	}
	if out.ID == "" {
		out.ID = jobID
	}
	if out.Kind == "" {
		out.Kind = kind
	}
	return out, nil
}

func (c *Client) Confirm(ctx context.Context, kind model.JobKind, jobID string) error {
	if !kind.IsUpload() {
		return domain.ErrNotConfirmable
	}
	p := uploadPath(kind) + "/" + url.PathEscape(jobID) + "/confirm"
	err := c.doJSON(ctx, http.MethodPost, p, map[string]string{"job_id": jobID}, nil)
	var nr *domain.JobNotReadyError
	if errors.As(err, &nr) && nr.JobID == "" {
		nr.JobID = jobID
	}
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJob, jobID)
	}
	return err
}

func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var out struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Messages {
		if out.Messages[i].SessionID == "" {
			out.Messages[i].SessionID = sessionID
		}
	}
	return out.Messages, nil
}

func (c *Client) GetViewState(ctx context.Context) (model.ViewState, error) {
	var out model.ViewState
	if err := c.doJSON(ctx, http.MethodGet, "/v1/view-state", nil, &out); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.NewViewState(), nil
		}
		return model.ViewState{}, err
	}
	out.Normalize()
	return out, nil
}

func (c *Client) PutViewState(ctx context.Context, v model.ViewState) (model.ViewState, error) {
	var out model.ViewState
	if err := c.doJSON(ctx, http.MethodPut, "/v1/view-state", v, &out); err != nil {
		return model.ViewState{}, err
	}
	out.Normalize()
	return out, nil
}

func uploadPath(kind model.JobKind) string {
	return "/v1/uploads/" + url.PathEscape(string(kind)) + "/jobs"
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	requestID := uuid.NewString()
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("X-Request-Id", requestID)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.maxRetries {
				c.log.Debug().Err(err).Str("path", requestPath).Int("attempt", attempt+1).Msg("request failed; retrying")
				if waitErr := c.wait(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, requestPath, err)
			}
			return nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			c.log.Debug().Int("status", resp.StatusCode).Str("path", requestPath).Int("attempt", attempt+1).Msg("server busy; retrying")
			if waitErr := c.wait(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return decodeError(resp.StatusCode, payload)
	}
}

func decodeError(status int, payload []byte) error {
	var eb errorBody
	_ = json.Unmarshal(payload, &eb)
	if status == http.StatusConflict && eb.Code == "job_not_ready" {
		return &domain.JobNotReadyError{Progress: eb.Progress}
	}
	if eb.Message == "" {
		eb.Message = strings.TrimSpace(string(payload))
	}
	return &HTTPError{StatusCode: status, Code: eb.Code, Message: eb.Message}
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if d := parseRetryAfter(retryAfter, c.clock.Now()); d > 0 {
		if d > c.maxDelay {
			return c.maxDelay
		}
		return d
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
