package paymentgateway

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

	types "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// ErrInvalidRequest marks requests rejected locally before calling out.
var ErrInvalidRequest = errors.New("invalid gateway request")

// Error describes a failed gateway call: transport failure, timeout,
// non-2xx status, undecodable body or a status=false envelope.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("paystack %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("paystack %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("paystack %s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reason is the merchant-safe summary stored as a payment failure reason.
func (e *Error) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return "gateway request timed out"
	}
	return "gateway unavailable"
}

// Summary is a fixed description of the failure class. Unlike Reason it
// never carries gateway or validator text.
func (e *Error) Summary() string {
	switch {
	case errors.Is(e.Err, ErrInvalidRequest):
		return "invalid payment request"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "gateway request timed out"
	case e.StatusCode >= http.StatusInternalServerError:
		return "gateway unavailable"
	case e.StatusCode >= http.StatusBadRequest:
		return "gateway rejected the request"
	case e.StatusCode == 0 && e.Err == nil && e.Message != "":
		return "gateway rejected the request"
	default:
		return "gateway unavailable"
	}
}

type Config struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Paystack REST API. It never retries; callers decide.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		secretKey:  config.SecretKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ToMinorUnits converts a major-unit amount to the integer minor units
// Paystack expects, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializePayload struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Channels    []string               `json:"channels,omitempty"`
}

func (c *Client) Initialize(ctx context.Context, req *types.InitializeRequest) (*types.InitializeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{Op: "initialize", Message: err.Error(), Err: fmt.Errorf("%w: %v", ErrInvalidRequest, err)}
	}

	payload := initializePayload{
		Email:       req.Email,
		Amount:      ToMinorUnits(req.Amount),
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
		Channels:    req.Channels,
	}

	env, raw, err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", nil, payload)
	if err != nil {
		return nil, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &Error{Op: "initialize", Message: "unexpected response body", Err: err}
	}

	c.logger.Info("paystack transaction initialized",
		"reference", req.Reference,
		"amount_minor", payload.Amount,
		"currency", payload.Currency)

	return &types.InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
		Raw:              raw,
	}, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (*types.Verification, error) {
	if reference == "" {
		return nil, &Error{Op: "verify", Message: "reference is required", Err: ErrInvalidRequest}
	}

	env, raw, err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		ID              json.Number `json:"id"`
		Status          string      `json:"status"`
		Reference       string      `json:"reference"`
		Amount          int64       `json:"amount"`
		Currency        string      `json:"currency"`
		GatewayResponse string      `json:"gateway_response"`
		Channel         string      `json:"channel"`
		PaidAt          string      `json:"paid_at"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &Error{Op: "verify", Message: "unexpected response body", Err: err}
	}

	return &types.Verification{
		Reference:       data.Reference,
		Status:          data.Status,
		Amount:          FromMinorUnits(data.Amount),
		Currency:        data.Currency,
		TransactionID:   data.ID.String(),
		GatewayResponse: data.GatewayResponse,
		Channel:         data.Channel,
		PaidAt:          data.PaidAt,
		Raw:             raw,
	}, nil
}

func (c *Client) ListBanks(ctx context.Context, country string) ([]types.Bank, error) {
	query := url.Values{}
	if country != "" {
		query.Set("country", country)
	}

	env, _, err := c.do(ctx, "list banks", http.MethodGet, "/bank", query, nil)
	if err != nil {
		return nil, err
	}

	var banks []types.Bank
	if err := json.Unmarshal(env.Data, &banks); err != nil {
		return nil, &Error{Op: "list banks", Message: "unexpected response body", Err: err}
	}
	return banks, nil
}

func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*types.AccountResolution, error) {
	query := url.Values{}
	query.Set("account_number", accountNumber)
	query.Set("bank_code", bankCode)

	env, _, err := c.do(ctx, "resolve account", http.MethodGet, "/bank/resolve", query, nil)
	if err != nil {
		return nil, err
	}

	var resolution types.AccountResolution
	if err := json.Unmarshal(env.Data, &resolution); err != nil {
		return nil, &Error{Op: "resolve account", Message: "unexpected response body", Err: err}
	}
	return &resolution, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}) (*envelope, json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, &Error{Op: op, Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, &Error{Op: op, Message: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("paystack request failed", "op", op, "path", path, "error", err)
		return nil, nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, &Error{Op: op, Message: "failed to read response", Err: err}
	}

	c.logger.Debug("paystack response",
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Message != "" {
			message = env.Message
		}
		c.logger.Warn("paystack returned error status", "op", op, "status", resp.StatusCode, "message", message)
		return nil, nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return nil, nil, &Error{Op: op, Message: "unexpected response body", Err: decodeErr}
	}
	if !env.Status {
		message := env.Message
		if message == "" {
			message = "request was not successful"
		}
		return nil, nil, &Error{Op: op, Message: message}
	}

	return &env, json.RawMessage(raw), nil
}
