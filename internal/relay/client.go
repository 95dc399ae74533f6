package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxErrorBody          = 512

	headerRequestID = "X-Request-ID"
)

// Credentials supplies the bearer token for relay calls. ok is false when the
// user has no valid session.
type Credentials interface {
	BearerToken() (token string, ok bool)
}

// StaticToken is a fixed bearer token. The empty token means "not signed in".
type StaticToken string

// BearerToken implements Credentials.
func (t StaticToken) BearerToken() (string, bool) { return string(t), t != "" }

// Client talks to the relay backend: it negotiates stream sessions, releases
// them and keeps them alive. It never retries; retry policy belongs to the
// caller.
type Client struct {
	base  *url.URL
	creds Credentials
	http  *http.Client
	log   *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for relay calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient returns a Client for the relay rooted at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("relay base url %q must be absolute", baseURL)
	}
	if creds == nil {
		creds = StaticToken("")
	}

	c := &Client{
		base:  base,
		creds: creds,
		http:  &http.Client{Timeout: defaultRequestTimeout},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "relay")
	return c, nil
}

// Negotiate asks the relay for a playable stream of cameraID.
func (c *Client) Negotiate(ctx context.Context, cameraID int64) (SessionHandle, error) {
	resp, err := c.post(ctx, "start", "stream/start", startRequest{CameraID: cameraID})
	if err != nil {
		return SessionHandle{}, err
	}
	defer resp.Body.Close()

	var body startResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SessionHandle{}, &Error{Kind: KindBackend, Op: "start", Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.SessionID == "" || body.StreamAddress == "" {
		return SessionHandle{}, &Error{Kind: KindBackend, Op: "start", Status: resp.StatusCode, Err: errors.New("response lacks sessionId or streamAddress")}
	}

	// The origin is taken from the URL that actually answered, so redirects
	// to another relay host are honored.
	origin := Origin(resp.Request.URL)
	playable, err := ResolveStreamAddress(origin, body.StreamAddress)
	if err != nil {
		return SessionHandle{}, &Error{Kind: KindBackend, Op: "start", Status: resp.StatusCode, Err: err}
	}
	control, err := ControlURL(origin, body.SessionID)
	if err != nil {
		return SessionHandle{}, &Error{Kind: KindBackend, Op: "start", Status: resp.StatusCode, Err: err}
	}

	c.log.Debug("stream negotiated",
		slog.Int64("camera_id", cameraID),
		slog.String("session_id", body.SessionID),
		slog.String("playable_url", playable.String()))

	return SessionHandle{
		SessionID:     body.SessionID,
		StreamAddress: body.StreamAddress,
		PlayableURL:   playable,
		ControlURL:    control,
	}, nil
}

// Release tells the relay the session is no longer watched. Failures are
// logged and otherwise ignored.
func (c *Client) Release(ctx context.Context, sessionID string) {
	resp, err := c.post(ctx, "stop", "stream/stop", stopRequest{SessionID: sessionID})
	if err != nil {
		c.log.Warn("release failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		return
	}
	drain(resp)
}

// Heartbeat keeps sessionID alive on the relay. A relay that no longer knows
// the session yields an error wrapping ErrSessionExpired.
func (c *Client) Heartbeat(ctx context.Context, sessionID string) error {
	resp, err := c.post(ctx, "heartbeat", "stream/"+url.PathEscape(sessionID)+"/heartbeat", nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// post sends one authenticated JSON request and classifies the outcome. On
// success the caller owns resp.Body.
func (c *Client) post(ctx context.Context, op, path string, payload any) (*http.Response, error) {
	token, ok := c.creds.BearerToken()
	if !ok {
		return nil, &Error{Kind: KindAuth, Op: op, Err: ErrNoCredential}
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("relay %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("relay %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(headerRequestID, uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := errors.New(strings.TrimSpace(string(snippet)))
	if len(snippet) == 0 {
		cause = errors.New(http.StatusText(resp.StatusCode))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, Op: op, Status: resp.StatusCode, Err: cause}
	case op == "heartbeat" && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone):
		return nil, &Error{Kind: KindBackend, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrSessionExpired, cause)}
	default:
		return nil, &Error{Kind: KindBackend, Op: op, Status: resp.StatusCode, Err: cause}
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
