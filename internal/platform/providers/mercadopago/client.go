package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/topservers/credits/pkg/apperr"
)

// Client talks to the MercadoPago REST API using a long-lived access
// token.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

type Options struct {
	BaseURL     string
	AccessToken string
}

func NewClient(opts Options) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		accessToken: opts.AccessToken,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mercadopago %s %s: %v", apperr.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: mercadopago %s %s: http %d: %s", apperr.ErrUpstream, method, path, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: mercadopago %s %s: decode: %v", apperr.ErrUpstream, method, path, err)
		}
	}
	return nil
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type CreatePreferenceRequest struct {
	ExternalReference string // our transaction id
	Title             string
	UnitPrice         float64
	Currency          string
	SuccessURL        string
	FailureURL        string
	NotificationURL   string
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

func (c *Client) CreatePreference(ctx context.Context, req *CreatePreferenceRequest) (*Preference, error) {
	payload := map[string]any{
		"items": []preferenceItem{{
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  req.UnitPrice,
			CurrencyID: req.Currency,
		}},
		"external_reference": req.ExternalReference,
		"back_urls": map[string]string{
			"success": req.SuccessURL,
			"failure": req.FailureURL,
			"pending": req.SuccessURL,
		},
		"notification_url": req.NotificationURL,
		"auto_return":      "approved",
	}
	var out Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

// GetPayment re-fetches a payment by id. Webhooks only carry the payment
// id; status and reference always come from this authenticated read.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type searchResponse struct {
	Results []*Payment `json:"results"`
}

// SearchPaymentsByReference lists payments created for one of our
// transaction ids, newest first. Used by the manual poll channel, where
// no payment id is known yet.
func (c *Client) SearchPaymentsByReference(ctx context.Context, externalReference string) ([]*Payment, error) {
	path := "/v1/payments/search?sort=date_created&criteria=desc&external_reference=" + url.QueryEscape(externalReference)
	var out searchResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
