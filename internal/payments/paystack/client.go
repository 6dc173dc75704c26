// Package paystack is a small client for the Paystack transaction API and
// its webhook payloads.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	// SignatureHeader carries hex(HMAC-SHA512(secret, body)).
	SignatureHeader = "x-paystack-signature"
)

// DefaultChannels are offered on every checkout page.
var DefaultChannels = []string{"card", "bank", "ussd", "bank_transfer"}

var tracer = otel.Tracer("whatsapp-commerce.internal.payments.paystack")

var (
	ErrNotConfigured    = errors.New("paystack: secret key not configured")
	ErrInvalidSignature = errors.New("paystack: invalid signature")
)

// Client creates and verifies Paystack transactions.
type Client struct {
	secretKey   string
	callbackURL string
	baseURL     string
	httpClient  *http.Client
	logger      *logging.Logger
}

func NewClient(secretKey, callbackURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		secretKey:   strings.TrimSpace(secretKey),
		callbackURL: strings.TrimSpace(callbackURL),
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

// WithBaseURL overrides the API host, mainly for tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL == "" {
		return c
	}
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithHTTPClient swaps the transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// InitializeParams describes a hosted checkout for one order.
type InitializeParams struct {
	Reference    string
	Amount       decimal.Decimal
	Email        string
	CustomerName string
	Metadata     map[string]string
}

// Checkout is the hosted payment page Paystack created.
type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Initialize creates a transaction. Amount is in naira and sent in kobo.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) (*Checkout, error) {
	ctx, span := tracer.Start(ctx, "paystack.initialize")
	defer span.End()
	span.SetAttributes(attribute.String("paystack.reference", params.Reference))

	if strings.TrimSpace(params.Reference) == "" {
		return nil, errors.New("paystack: reference required")
	}
	if !params.Amount.IsPositive() {
		return nil, errors.New("paystack: amount must be positive")
	}
	if strings.TrimSpace(params.Email) == "" {
		return nil, errors.New("paystack: email required")
	}

	metadata := map[string]string{}
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	if params.CustomerName != "" {
		metadata["customer_name"] = params.CustomerName
	}

	payload := map[string]any{
		"reference": params.Reference,
		"amount":    cart.ToMinorUnits(params.Amount),
		"email":     params.Email,
		"channels":  DefaultChannels,
		"metadata":  metadata,
	}
	if c.callbackURL != "" {
		payload["callback_url"] = c.callbackURL
	}

	var out Checkout
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", payload, &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out.AuthorizationURL == "" {
		return nil, errors.New("paystack: initialize returned no authorization url")
	}
	c.logger.Info("paystack transaction initialized", "reference", params.Reference)
	return &out, nil
}

// Verify fetches the current state of a transaction.
func (c *Client) Verify(ctx context.Context, reference string) (*Transaction, error) {
	ctx, span := tracer.Start(ctx, "paystack.verify")
	defer span.End()

	if strings.TrimSpace(reference) == "" {
		return nil, errors.New("paystack: reference required")
	}
	var out Transaction
	if err := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out.Reference == "" {
		out.Reference = reference
	}
	return &out, nil
}

// VerifySignature compares the header against an HMAC of the raw body.
func (c *Client) VerifySignature(header string, payload []byte) error {
	return VerifySignature(c.secretKey, header, payload)
}

// VerifySignature checks hex(HMAC-SHA512(secret, payload)) case-insensitively.
func VerifySignature(secret, header string, payload []byte) error {
	if secret == "" {
		return ErrNotConfigured
	}
	sig := strings.ToLower(strings.TrimSpace(header))
	if sig == "" {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature Paystack would send for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a rejected Paystack call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("paystack: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("paystack: %s (status=%d)", e.Message, e.StatusCode)
}

func (c *Client) call(ctx context.Context, method, path string, payload any, out any) error {
	if c.secretKey == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paystack: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paystack: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		return fmt.Errorf("paystack: decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("paystack: decode data: %w", err)
	}
	return nil
}
