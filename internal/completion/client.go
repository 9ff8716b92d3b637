// Package completion streams chat completions from OpenAI-compatible
// endpoints over server-sent events, failing over between endpoints.
//
// A Stream settles exactly once: OnFinish on a terminal frame or a caller
// Stop, OnError when every endpoint failed or the context ended.
package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	maxErrorBody    = 4096
	maxStreamBuffer = 1 << 20
)

var (
	ErrNoEndpoints = errors.New("no completion endpoints configured")
	ErrIdleTimeout = errors.New("stream idle timeout")
	ErrIncomplete  = errors.New("stream ended before completion")
	errStopped     = errors.New("stopped")
)

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is what the caller wants completed. The configured system prompt
// is prepended when set.
type Request struct {
	Messages []Message
}

// Usage is the token accounting from the final frame, when the server sends one
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Callbacks receive stream events. All are optional and are called from the
// stream's goroutine. A callback may call Stop.
type Callbacks struct {
	OnDelta  func(delta, full string)
	OnFinish func(full string, usage *Usage)
	OnError  func(err error)
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        bool           `json:"stream"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client starts completion streams
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. It should not set a
// Timeout, which would cut long streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for cfg
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream is one in-flight completion
type Stream struct {
	cancel     context.CancelFunc
	stopped    atomic.Bool
	inCallback atomic.Bool

	mu        sync.Mutex
	text      string
	closeConn func()

	settleOnce sync.Once
	done       chan struct{}
	usage      *Usage
	err        error
}

// Start begins streaming req and returns immediately. Endpoints are tried
// in order with the same payload until one completes.
func (c *Client) Start(ctx context.Context, req Request, cb Callbacks) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{cancel: cancel, done: make(chan struct{})}

	if len(c.cfg.Endpoints) == 0 {
		s.settle(cb, nil, ErrNoEndpoints)
		return s
	}

	go c.run(ctx, s, req, cb)
	return s
}

func (c *Client) run(ctx context.Context, s *Stream, req Request, cb Callbacks) {
	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		s.settle(cb, nil, errors.Wrap(err, "marshal request"))
		return
	}

	var lastErr error
	for i, endpoint := range c.cfg.Endpoints {
		if i > 0 && !c.cfg.KeepPartialOnFailover {
			s.setText("")
		}

		usage, err := c.attempt(ctx, s, endpoint, payload, cb)
		if err == nil {
			s.settle(cb, usage, nil)
			return
		}

		if s.stopped.Load() {
			s.settle(cb, nil, nil)
			return
		}
		if ctx.Err() != nil {
			s.settle(cb, nil, ctx.Err())
			return
		}

		c.logger.Warnw("Completion endpoint failed", "endpoint", endpoint, "attempt", i+1, "error", err)
		lastErr = err
	}

	s.settle(cb, nil, errors.Wrapf(lastErr, "all %d completion endpoints failed", len(c.cfg.Endpoints)))
}

func (c *Client) buildRequest(req Request) chatRequest {
	messages := make([]Message, 0, len(req.Messages)+1)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: c.cfg.SystemPrompt})
	}
	messages = append(messages, req.Messages...)

	return chatRequest{
		Model:         c.cfg.Model,
		Messages:      messages,
		Stream:        true,
		MaxTokens:     c.cfg.MaxTokens,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
}

// attempt streams from one endpoint until a terminal frame or an error
func (c *Client) attempt(ctx context.Context, s *Stream, endpoint string, payload []byte, cb Callbacks) (*Usage, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}

	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { resp.Body.Close() }) }
	defer closeBody()
	s.setCloser(closeBody)
	defer s.setCloser(nil)

	if s.stopped.Load() {
		return nil, errStopped
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.Newf("endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var idle atomic.Bool
	if c.cfg.IdleTimeout > 0 {
		timer := time.AfterFunc(c.cfg.IdleTimeout, func() {
			idle.Store(true)
			cancel()
		})
		defer timer.Stop()
		resp.Body = &idleReader{r: resp.Body, reset: func() { timer.Reset(c.cfg.IdleTimeout) }}
	}

	usage, err := c.readEvents(resp.Body, s, cb)
	if err != nil {
		switch {
		case s.stopped.Load():
			return nil, errStopped
		case idle.Load():
			return nil, errors.Wrapf(ErrIdleTimeout, "no data for %s", c.cfg.IdleTimeout)
		}
		return nil, err
	}
	return usage, nil
}

// readEvents parses SSE events. Data lines accumulate until a blank line.
func (c *Client) readEvents(body io.Reader, s *Stream, cb Callbacks) (*Usage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamBuffer)

	var data []string
	var usage *Usage
	finished := false

	dispatch := func() (bool, error) {
		if len(data) == 0 {
			return false, nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		if strings.TrimSpace(payload) == "[DONE]" {
			return true, nil
		}

		var ch chunk
		if err := json.Unmarshal([]byte(payload), &ch); err != nil {
			return false, errors.Wrap(err, "decode chunk")
		}
		if ch.Error != nil {
			return false, errors.Newf("server error: %s", ch.Error.Message)
		}
		if ch.Usage != nil {
			usage = ch.Usage
		}
		if len(ch.Choices) == 0 {
			// A usage-only frame closes the stream
			return ch.Usage != nil, nil
		}

		for _, choice := range ch.Choices {
			if delta := choice.Delta.Content; delta != "" {
				full := s.appendText(delta)
				if cb.OnDelta != nil {
					s.callback(func() { cb.OnDelta(delta, full) })
				}
				if s.stopped.Load() {
					return false, errStopped
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finished = true
			}
		}
		return false, nil
	}

	for scanner.Scan() {
		if s.stopped.Load() {
			return nil, errStopped
		}
		line := scanner.Text()

		switch {
		case line == "":
			done, err := dispatch()
			if err != nil || done {
				return usage, err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "stream read error")
	}

	// Flush an event not followed by a blank line
	done, err := dispatch()
	if err != nil {
		return nil, err
	}
	if done || finished {
		return usage, nil
	}
	return nil, ErrIncomplete
}

// Stop closes the connection and settles the stream with the text so far,
// which is returned. Stopping a settled stream just returns its text. Called
// from a callback, Stop returns at once and the stream settles after the
// callback returns.
func (s *Stream) Stop() string {
	s.stopped.Store(true)
	s.cancel()

	s.mu.Lock()
	closeConn := s.closeConn
	s.mu.Unlock()
	if closeConn != nil {
		closeConn()
	}

	if s.inCallback.Load() {
		return s.Text()
	}
	<-s.done
	return s.Text()
}

// Wait blocks until the stream settles
func (s *Stream) Wait() (string, error) {
	<-s.done
	return s.Text(), s.err
}

// Done is closed once the stream settles
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Text returns the text accumulated so far
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Stopped reports whether the caller stopped the stream
func (s *Stream) Stopped() bool {
	return s.stopped.Load()
}

// Usage returns token usage once settled, if the server reported it
func (s *Stream) Usage() *Usage {
	select {
	case <-s.done:
		return s.usage
	default:
		return nil
	}
}

func (s *Stream) appendText(delta string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text += delta
	return s.text
}

func (s *Stream) setText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

func (s *Stream) setCloser(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeConn = f
}

func (s *Stream) settle(cb Callbacks, usage *Usage, err error) {
	s.settleOnce.Do(func() {
		s.usage = usage
		s.err = err
		s.cancel()

		if err != nil {
			if cb.OnError != nil {
				s.callback(func() { cb.OnError(err) })
			}
		} else if cb.OnFinish != nil {
			text := s.Text()
			s.callback(func() { cb.OnFinish(text, usage) })
		}

		close(s.done)
	})
}

func (s *Stream) callback(f func()) {
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	f()
}

// idleReader resets the idle timer whenever bytes arrive
type idleReader struct {
	r     io.ReadCloser
	reset func()
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.reset()
	}
	return n, err
}

func (ir *idleReader) Close() error {
	return ir.r.Close()
}
