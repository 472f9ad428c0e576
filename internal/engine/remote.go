package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"inferd/internal/prefs"
	"inferd/internal/prompt"
)

// Remote engine defaults.
const (
	DefaultRemoteModel       = "default"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultReadTimeout       = 120 * time.Second
	DefaultListModelsTimeout = 10 * time.Second
	remoteMaxTokens          = 1024
	remoteTemperature        = 0.7
	maxErrorBody             = 64 << 10
)

// RemoteConfig configures the OpenAI-compatible engine.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Endpoint, when set, is consulted on every call and overrides the
	// static fields above.
	Endpoint func() prefs.RemoteEndpoint

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Log            zerolog.Logger
}

type remoteTarget struct {
	baseURL string
	apiKey  string
	model   string
}

// Remote talks to {BaseURL}/v1/chat/completions. It holds no engine state;
// readiness is configuration presence.
type Remote struct {
	cfg    RemoteConfig
	http   *http.Client
	closed atomic.Bool

	mu     sync.Mutex
	target remoteTarget
	client *openai.Client
}

// NewRemote builds the engine. It never fails; an unconfigured engine simply
// reports not ready.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	hc := &http.Client{
		Timeout: cfg.ReadTimeout,
		Transport: recordingTransport{base: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
		}},
	}
	return &Remote{cfg: cfg, http: hc}
}

// resolve returns the current endpoint and a client bound to it. The client
// is rebuilt whenever the endpoint changes.
func (r *Remote) resolve() (remoteTarget, *openai.Client) {
	t := remoteTarget{baseURL: r.cfg.BaseURL, apiKey: r.cfg.APIKey, model: r.cfg.Model}
	if r.cfg.Endpoint != nil {
		ep := r.cfg.Endpoint()
		t = remoteTarget{baseURL: ep.URL, apiKey: ep.APIKey, model: ep.Model}
	}
	t.baseURL = strings.TrimRight(strings.TrimSpace(t.baseURL), "/")
	t.apiKey = strings.TrimSpace(t.apiKey)
	if t.model == "" {
		t.model = DefaultRemoteModel
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil || r.target != t {
		oc := openai.DefaultConfig(t.apiKey)
		oc.BaseURL = t.baseURL + "/v1"
		oc.HTTPClient = r.http
		r.client = openai.NewClientWithConfig(oc)
		r.target = t
	}
	return t, r.client
}

func (r *Remote) IsReady() bool {
	if r.closed.Load() {
		return false
	}
	t, _ := r.resolve()
	return t.baseURL != "" && t.apiKey != ""
}

// Generate decomposes the dialogue-marked prompt into messages and posts one
// chat completion.
func (r *Remote) Generate(ctx context.Context, p string) (Result, error) {
	if r.closed.Load() {
		return Result{}, ErrNotReady
	}
	t, client := r.resolve()
	if t.baseURL == "" || t.apiKey == "" {
		return Result{}, ErrNotReady
	}
	msgs := prompt.Decompose(p)
	req := openai.ChatCompletionRequest{
		Model:       t.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		MaxTokens:   remoteMaxTokens,
		Temperature: remoteTemperature,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return timed(func() (string, error) {
		ctx, ex := withExchange(ctx)
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", r.mapErr(err, ex)
		}
		if err := r.checkStatus(ex); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
}

// ListModels returns the model identifiers the endpoint advertises. It is a
// connectivity check and is not used on the generation path.
func (r *Remote) ListModels(ctx context.Context) ([]string, error) {
	if r.closed.Load() {
		return nil, ErrNotReady
	}
	t, client := r.resolve()
	if t.baseURL == "" || t.apiKey == "" {
		return nil, ErrNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultListModelsTimeout)
	defer cancel()
	ctx, ex := withExchange(ctx)
	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, r.mapErr(err, ex)
	}
	if err := r.checkStatus(ex); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *Remote) Close() error {
	r.closed.Store(true)
	return nil
}

// checkStatus rejects any answer other than 200, including other 2xx codes.
func (r *Remote) checkStatus(ex *exchange) error {
	status, body := ex.result()
	if status == 0 || status == http.StatusOK {
		return nil
	}
	r.cfg.Log.Warn().Str("event", "remote_error").Int("status", status).Msg(body)
	return &RemoteAPIError{Status: status, Body: body}
}

// mapErr prefers the raw response body over whatever go-openai decoded.
func (r *Remote) mapErr(err error, ex *exchange) error {
	if status, body := ex.result(); status != 0 && status != http.StatusOK {
		r.cfg.Log.Warn().Str("event", "remote_error").Int("status", status).Msg(body)
		return &RemoteAPIError{Status: status, Body: body}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		r.cfg.Log.Warn().Str("event", "remote_error").Int("status", apiErr.HTTPStatusCode).Msg(apiErr.Message)
		return &RemoteAPIError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := string(reqErr.Body)
		r.cfg.Log.Warn().Str("event", "remote_error").Int("status", reqErr.HTTPStatusCode).Msg(body)
		return &RemoteAPIError{Status: reqErr.HTTPStatusCode, Body: body}
	}
	return err
}

// exchange records the status line and, for anything but 200, the raw body
// of the response to one request.
type exchange struct {
	mu     sync.Mutex
	status int
	body   []byte
}

func (e *exchange) result() (int, string) {
	if e == nil {
		return 0, ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, string(e.body)
}

type exchangeKey struct{}

func withExchange(ctx context.Context) (context.Context, *exchange) {
	ex := &exchange{}
	return context.WithValue(ctx, exchangeKey{}, ex), ex
}

// recordingTransport fills the exchange carried by the request context.
type recordingTransport struct {
	base http.RoundTripper
}

func (t recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	ex, _ := req.Context().Value(exchangeKey{}).(*exchange)
	if ex == nil {
		return resp, nil
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.status = resp.StatusCode
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	body, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	if rerr != nil {
		return nil, rerr
	}
	ex.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
