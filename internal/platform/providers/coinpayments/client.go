package coinpayments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/topservers/credits/pkg/apperr"
)

// Client talks to the CoinPayments merchant API. All API commands are
// form-encoded POSTs to /api.php signed with an HMAC-SHA512 of the request
// body keyed by the merchant private key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
	privateKey string
	ipnSecret  string
	merchantID string
}

type Options struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	IPNSecret  string
	MerchantID string
}

func NewClient(opts Options) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		publicKey:  opts.PublicKey,
		privateKey: opts.PrivateKey,
		ipnSecret:  opts.IPNSecret,
		merchantID: opts.MerchantID,
	}
}

type apiEnvelope struct {
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, cmd string, params url.Values, out any) error {
	form := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	form.Set("version", "1")
	form.Set("cmd", cmd)
	form.Set("key", c.publicKey)
	form.Set("format", "json")

	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api.php", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HMAC", signHMAC([]byte(body), c.privateKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: coinpayments %s: %v", apperr.ErrUpstream, cmd, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: coinpayments %s: read body: %v", apperr.ErrUpstream, cmd, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: coinpayments %s: http %d", apperr.ErrUpstream, cmd, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: coinpayments %s: decode: %v", apperr.ErrUpstream, cmd, err)
	}
	if env.Error != "ok" {
		return fmt.Errorf("%w: coinpayments %s: %s", apperr.ErrUpstream, cmd, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%w: coinpayments %s: decode result: %v", apperr.ErrUpstream, cmd, err)
		}
	}
	return nil
}

type CreateTransactionRequest struct {
	AmountUSD  float64
	Currency2  string // crypto the buyer pays with, e.g. "BTC"
	BuyerEmail string
	Custom     string // our transaction id, echoed back in the IPN
	IPNURL     string
	SuccessURL string
	CancelURL  string
}

type CreateTransactionResult struct {
	TxnID          string `json:"txn_id"`
	Amount         string `json:"amount"`
	CheckoutURL    string `json:"checkout_url"`
	StatusURL      string `json:"status_url"`
	QRCodeURL      string `json:"qrcode_url"`
	ConfirmsNeeded string `json:"confirms_needed"`
}

func (c *Client) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*CreateTransactionResult, error) {
	params := url.Values{}
	params.Set("amount", strconv.FormatFloat(req.AmountUSD, 'f', 2, 64))
	params.Set("currency1", "USD")
	params.Set("currency2", req.Currency2)
	if req.BuyerEmail != "" {
		params.Set("buyer_email", req.BuyerEmail)
	}
	params.Set("custom", req.Custom)
	params.Set("ipn_url", req.IPNURL)
	params.Set("success_url", req.SuccessURL)
	params.Set("cancel_url", req.CancelURL)

	var res CreateTransactionResult
	if err := c.call(ctx, "create_transaction", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type TxInfoResult struct {
	Status     int    `json:"status"`
	StatusText string `json:"status_text"`
	Coin       string `json:"coin"`
	AmountF    string `json:"amountf"`
	ReceivedF  string `json:"receivedf"`
}

// GetTxInfo fetches current transaction status, used by the manual poll
// channel.
func (c *Client) GetTxInfo(ctx context.Context, txnID string) (*TxInfoResult, error) {
	params := url.Values{}
	params.Set("txid", txnID)

	var res TxInfoResult
	if err := c.call(ctx, "get_tx_info", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyIPN checks the HMAC header of an IPN POST against the raw body.
// Must be called before the body is parsed or any state is touched.
func (c *Client) VerifyIPN(rawBody []byte, hmacHeader string) error {
	if hmacHeader == "" {
		return fmt.Errorf("%w: missing HMAC header", apperr.ErrAuthentication)
	}
	expected := signHMAC(rawBody, c.ipnSecret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hmacHeader))) {
		return fmt.Errorf("%w: IPN HMAC mismatch", apperr.ErrAuthentication)
	}
	return nil
}

// MerchantID returns the configured merchant id; IPNs for other merchants
// are rejected.
func (c *Client) MerchantID() string { return c.merchantID }

func signHMAC(body []byte, key string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
