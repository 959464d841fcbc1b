package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/topservers/credits/pkg/apperr"
)

// Client talks to the PayPal REST API (v2 checkout orders). Access tokens
// are fetched with the client-credentials grant and cached until shortly
// before expiry.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

func NewClient(opts Options) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: paypal token: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: paypal token: http %d", apperr.ErrUpstream, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: paypal token: decode: %v", apperr.ErrUpstream, err)
	}
	c.accessToken = tok.AccessToken
	// renew a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: paypal %s %s: %v", apperr.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: paypal %s %s: http %d: %s", apperr.ErrUpstream, method, path, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: paypal %s %s: decode: %v", apperr.ErrUpstream, method, path, err)
		}
	}
	return nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Amount      amount `json:"amount"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type CreateOrderRequest struct {
	ReferenceID string // our transaction id
	Value       string // decimal string, e.g. "10.66"
	Currency    string
	ReturnURL   string
	CancelURL   string
}

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []link         `json:"links"`
}

// ApproveURL returns the buyer-facing checkout link.
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

func (o *Order) ReferenceID() string {
	if len(o.PurchaseUnits) == 0 {
		return ""
	}
	return o.PurchaseUnits[0].ReferenceID
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []purchaseUnit{{
			ReferenceID: req.ReferenceID,
			Amount:      amount{CurrencyCode: req.Currency, Value: req.Value},
		}},
		"application_context": map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type captureResult struct {
	Status string `json:"status"`
}

type CaptureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []captureResult `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CaptureStatus returns the status of the first capture, falling back to
// the order-level status.
func (r *CaptureResponse) CaptureStatus() string {
	for _, pu := range r.PurchaseUnits {
		for _, cap := range pu.Payments.Captures {
			return cap.Status
		}
	}
	return r.Status
}

// CaptureOrder captures an approved order. PayPal only moves money at
// capture time, so this is the step that decides completed vs failed.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResponse, error) {
	var out CaptureResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder re-fetches an order from PayPal. Webhook payloads are not
// trusted; the order is always re-read through the authenticated API.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
