package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL      = "https://graph.facebook.com"
	defaultGraphVersion = "v18.0"
	defaultUserAgent    = "whatsapp-commerce/0.1"
)

// Config controls how the Cloud API client behaves.
type Config struct {
	BaseURL      string
	GraphVersion string
	// AccessToken is used when a send call does not carry a tenant token.
	AccessToken string
	AppSecret   string
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
	UserAgent   string
}

// Client talks to the WhatsApp Cloud API.
type Client struct {
	baseURL      string
	graphVersion string
	accessToken  string
	appSecret    string
	httpClient   *http.Client
	maxRetries   int
	backoff      time.Duration
	logger       *slog.Logger
	userAgent    string
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.GraphVersion), "/")
	if version == "" {
		version = defaultGraphVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:      baseURL,
		graphVersion: version,
		accessToken:  cfg.AccessToken,
		appSecret:    cfg.AppSecret,
		httpClient:   httpClient,
		maxRetries:   maxRetries,
		backoff:      backoff,
		logger:       logger,
		userAgent:    userAgent,
	}
}

// SendResponse is the Cloud API reply to a message send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the id of the first accepted message.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// SendText sends a plain text message from phoneNumberID to the recipient.
// An empty token falls back to the client's default access token.
func (c *Client) SendText(ctx context.Context, phoneNumberID, token, to, text string) (*SendResponse, error) {
	if strings.TrimSpace(phoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id required")
	}
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("whatsapp: recipient required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("whatsapp: text required")
	}
	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        text,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: encode send: %w", err)
	}
	data, err := c.invoke(ctx, phoneNumberID+"/messages", c.tokenOrDefault(token), body)
	if err != nil {
		return nil, err
	}
	var resp SendResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whatsapp: decode send response: %w", err)
	}
	return &resp, nil
}

// MarkAsRead flags an inbound message as read.
func (c *Client) MarkAsRead(ctx context.Context, phoneNumberID, token, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("whatsapp: message id required")
	}
	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: encode read receipt: %w", err)
	}
	_, err = c.invoke(ctx, phoneNumberID+"/messages", c.tokenOrDefault(token), body)
	return err
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw body.
// A client without an app secret accepts every payload.
func (c *Client) VerifySignature(header string, payload []byte) error {
	if c.appSecret == "" {
		return nil
	}
	sig := strings.TrimSpace(header)
	if sig == "" {
		return errors.New("whatsapp: missing signature header")
	}
	sig = strings.ToLower(strings.TrimPrefix(sig, "sha256="))
	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.New("whatsapp: signature mismatch")
	}
	return nil
}

func (c *Client) tokenOrDefault(token string) string {
	if strings.TrimSpace(token) != "" {
		return token
	}
	return c.accessToken
}

func (c *Client) invoke(ctx context.Context, path, token string, body []byte) ([]byte, error) {
	if token == "" {
		return nil, errors.New("whatsapp: access token not configured")
	}
	fullURL := c.baseURL + "/" + c.graphVersion + "/" + strings.TrimLeft(path, "/")
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("whatsapp: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("whatsapp: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("whatsapp: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("whatsapp: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt, status int, err error) {
	c.logger.Warn("whatsapp retry", "path", path, "attempt", attempt+1, "status", status, "error", err)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// APIError is a non-2xx Graph API reply.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var wrapper struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	wrapper.Error.StatusCode = status
	return &wrapper.Error
}
