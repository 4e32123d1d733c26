// Package client is a Go client for the bazaar HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xtrntr/bazaar/internal/api"
	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/quotes"
)

// APIError is a non-2xx response
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap lets errors.Is match the bazaar error kind carried by the response.
func (e *APIError) Unwrap() error {
	return bazaar.ErrorForCode(e.Code)
}

// Client calls the bazaar API
type Client struct {
	client *resty.Client
}

// Options configures New
type Options struct {
	Timeout time.Duration
	Retries int // retried on transport errors and 503 only
}

// New creates a client for the server at host.
func New(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && resp.StatusCode() == http.StatusServiceUnavailable
		}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "bazaar-client")

	return &Client{client: client}
}

// SetToken authenticates later calls with token.
func (c *Client) SetToken(token string) {
	c.client.SetAuthToken(token)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	r := c.client.R().SetContext(ctx)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return c.send(r, method, endpoint, out)
}

func (c *Client) send(r *resty.Request, method, endpoint string, out any) error {
	r.SetError(&APIError{})
	if out != nil {
		r.SetResult(out)
	}

	resp, err := r.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, endpoint, err)
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr.Code == "" {
			apiErr = &APIError{Message: strings.TrimSpace(string(resp.Body()))}
		}
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Credentials is the result of Register
type Credentials struct {
	Username string           `json:"username"`
	Account  models.AccountID `json:"account"`
}

// Register creates a login.
func (c *Client) Register(ctx context.Context, username, password string) (*Credentials, error) {
	var out Credentials
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// Profile is the body of CreateTrader
type Profile struct {
	Name     string        `json:"name"`
	Headline string        `json:"headline"`
	Country  uint8         `json:"country"`
	Method   string        `json:"method"`
	AskPrice models.Amount `json:"ask_price"`
	AskLimit models.Amount `json:"ask_limit"`
	BidPrice models.Amount `json:"bid_price"`
	BidLimit models.Amount `json:"bid_limit"`
}

// CreateTrader registers the caller as a trader.
func (c *Client) CreateTrader(ctx context.Context, p Profile) (models.TraderIndex, error) {
	var out struct {
		Index models.TraderIndex `json:"index"`
	}
	if err := c.do(ctx, http.MethodPost, "/traders", p, &out); err != nil {
		return 0, err
	}
	return out.Index, nil
}

// UpdateProfile replaces the caller's headline and method.
func (c *Client) UpdateProfile(ctx context.Context, headline, method string) error {
	body := map[string]string{"headline": headline, "method": method}
	return c.do(ctx, http.MethodPut, "/traders/me", body, nil)
}

// UpdateLimits replaces the caller's pricing fields.
func (c *Client) UpdateLimits(ctx context.Context, l bazaar.Limits) error {
	return c.do(ctx, http.MethodPut, "/traders/me/limits", l, nil)
}

// Trader returns the profile of account.
func (c *Client) Trader(ctx context.Context, account models.AccountID) (*api.TraderResponse, error) {
	var out api.TraderResponse
	if err := c.do(ctx, http.MethodGet, "/traders/"+account.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Traders returns every registered trader.
func (c *Client) Traders(ctx context.Context) ([]api.TraderResponse, error) {
	var out []api.TraderResponse
	if err := c.do(ctx, http.MethodGet, "/traders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InitiateBuy opens a trade against seller.
func (c *Client) InitiateBuy(ctx context.Context, price, amount models.Amount, seller models.TraderIndex) (models.TradeIndex, error) {
	var out struct {
		ID models.TradeIndex `json:"id"`
	}
	body := map[string]any{"price": price, "amount": amount, "seller": seller}
	if err := c.do(ctx, http.MethodPost, "/trades", body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Trades lists the caller's trades. role is "buyer" or "seller"; state may be empty.
func (c *Client) Trades(ctx context.Context, role, state string) ([]api.TradeResponse, error) {
	var out []api.TradeResponse
	r := c.client.R().SetContext(ctx)
	if role != "" {
		r.SetQueryParam("role", role)
	}
	if state != "" {
		r.SetQueryParam("state", state)
	}
	if err := c.send(r, http.MethodGet, "/trades", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trade returns trade id.
func (c *Client) Trade(ctx context.Context, id models.TradeIndex) (*api.TradeResponse, error) {
	var out api.TradeResponse
	if err := c.do(ctx, http.MethodGet, tradePath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EscrowCoin funds trade id from the caller.
func (c *Client) EscrowCoin(ctx context.Context, id models.TradeIndex) error {
	return c.do(ctx, http.MethodPost, tradePath(id, "/escrow"), nil, nil)
}

// CancelEscrow refunds trade id to the caller.
func (c *Client) CancelEscrow(ctx context.Context, id models.TradeIndex) error {
	return c.do(ctx, http.MethodPost, tradePath(id, "/cancel"), nil, nil)
}

// ConfirmReceived completes trade id.
func (c *Client) ConfirmReceived(ctx context.Context, id models.TradeIndex) error {
	return c.do(ctx, http.MethodPost, tradePath(id, "/confirm"), nil, nil)
}

// OpenDispute opens a dispute on trade id.
func (c *Client) OpenDispute(ctx context.Context, id models.TradeIndex) error {
	return c.do(ctx, http.MethodPost, tradePath(id, "/dispute"), nil, nil)
}

// CloseDispute closes the dispute on trade id with the given split.
func (c *Client) CloseDispute(ctx context.Context, id models.TradeIndex, buyerPortion, sellerPortion uint8) error {
	body := map[string]uint8{"buyer_portion": buyerPortion, "seller_portion": sellerPortion}
	return c.do(ctx, http.MethodPost, tradePath(id, "/dispute/close"), body, nil)
}

// Balance returns the caller's free balance.
func (c *Client) Balance(ctx context.Context) (*api.BalanceResponse, error) {
	var out api.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Escrow returns the escrow account and its balance.
func (c *Client) Escrow(ctx context.Context) (*api.BalanceResponse, error) {
	var out api.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/escrow", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Audit compares escrowed trades with the escrow balance. A shortfall is
// returned as an error matching bazaar.ErrEscrowShortfall.
func (c *Client) Audit(ctx context.Context) (*bazaar.AuditReport, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/escrow/audit")
	if err != nil {
		return nil, fmt.Errorf("failed to audit: %w", err)
	}
	status := resp.StatusCode()
	if status != http.StatusOK && status != http.StatusConflict {
		return nil, &APIError{Status: status, Message: strings.TrimSpace(string(resp.Body()))}
	}

	var out bazaar.AuditReport
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode audit: %w", err)
	}
	if status == http.StatusConflict {
		return &out, &APIError{Status: status, Code: "EscrowShortfall", Message: "escrow balance below open escrowed amount"}
	}
	return &out, nil
}

// Quotes returns the quote board. A nil country or empty method matches all.
func (c *Client) Quotes(ctx context.Context, country *uint8, method string) (*quotes.Board, error) {
	var out quotes.Board
	r := c.client.R().SetContext(ctx)
	if country != nil {
		r.SetQueryParam("country", strconv.Itoa(int(*country)))
	}
	if method != "" {
		r.SetQueryParam("method", method)
	}
	if err := c.send(r, http.MethodGet, "/quotes", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func tradePath(id models.TradeIndex, suffix string) string {
	return "/trades/" + strconv.FormatUint(uint64(id), 10) + suffix
}
