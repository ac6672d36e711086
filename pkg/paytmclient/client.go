/**
 * @description
 * This package provides a client for the Paytm order initiation API.
 * It builds the canonical order body, signs it, posts it to the environment's
 * gateway host and parses the response into strict result types.
 *
 * Key features:
 * - Staging/production host selection from the website label and merchant id.
 * - A single bounded fallback: when a WEBSTAGING attempt is answered with the
 *   environment-mismatch code, one retry is made with the fallback website on
 *   the same host.
 * - Transport failures and gateway rejections are reported as distinct errors.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 * - pkg/checksum: For request signing.
 */
package paytmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/payment-service/pkg/checksum"
)

const (
	StagingHost    = "securegw-stage.paytm.in"
	ProductionHost = "securegw.paytm.in"

	StagingWebsite  = "WEBSTAGING"
	DefaultWebsite  = "DEFAULT"
	ResultStatusOK  = "S"
	EnvMismatchCode = "501"

	initiatePath = "/theia/api/v1/initiateTransaction"
)

// Config carries the merchant settings the client needs. It is built once at
// startup and never changes afterwards.
type Config struct {
	MerchantID      string
	MerchantKey     string
	Website         string
	FallbackWebsite string
	CallbackURL     string
	ChannelID       string
	IndustryType    string
	// BaseURL overrides the derived https://<host> origin.
	BaseURL string
	Timeout time.Duration
}

// Client is a client for the Paytm initiate-transaction API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	merchantID      string
	merchantKey     string
	website         string
	fallbackWebsite string
	callbackURL     string
	channelID       string
	industryType    string
}

// NewClient creates a new Paytm API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fallback := strings.TrimSpace(cfg.FallbackWebsite)
	if fallback == "" {
		fallback = DefaultWebsite
	}

	merchantID := strings.TrimSpace(cfg.MerchantID)
	website := strings.TrimSpace(cfg.Website)

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://" + HostFor(website, merchantID)
	}

	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		merchantID:      merchantID,
		merchantKey:     strings.TrimSpace(cfg.MerchantKey),
		website:         website,
		fallbackWebsite: fallback,
		callbackURL:     strings.TrimSpace(cfg.CallbackURL),
		channelID:       strings.TrimSpace(cfg.ChannelID),
		industryType:    strings.TrimSpace(cfg.IndustryType),
	}
}

// IsStaging reports whether the website label or merchant id denote the
// gateway's non-production environment.
func IsStaging(website, merchantID string) bool {
	return website == StagingWebsite || strings.Contains(strings.ToLower(merchantID), "stage")
}

// HostFor returns the gateway host for the given environment.
func HostFor(website, merchantID string) string {
	if IsStaging(website, merchantID) {
		return StagingHost
	}
	return ProductionHost
}

// MerchantID returns the configured merchant identifier.
func (c *Client) MerchantID() string {
	return c.merchantID
}

// InitiateRequest holds the per-order values of an initiation request.
type InitiateRequest struct {
	OrderID    string
	Amount     decimal.Decimal
	Currency   string
	CustomerID string
}

// TxnAmount is the amount block of the order body.
type TxnAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// UserInfo identifies the paying customer.
type UserInfo struct {
	CustID string `json:"custId"`
}

// OrderBody is the signed body of an initiation request. Field order here is
// the canonical serialization order.
type OrderBody struct {
	RequestType    string    `json:"requestType"`
	MID            string    `json:"mid"`
	WebsiteName    string    `json:"websiteName"`
	OrderID        string    `json:"orderId"`
	CallbackURL    string    `json:"callbackUrl"`
	TxnAmount      TxnAmount `json:"txnAmount"`
	UserInfo       UserInfo  `json:"userInfo"`
	ChannelID      string    `json:"channelId"`
	IndustryTypeID string    `json:"industryTypeId"`
}

type requestHead struct {
	Signature string `json:"signature"`
}

type signedRequest struct {
	Head requestHead     `json:"head"`
	Body json.RawMessage `json:"body"`
}

// ResultInfo is the gateway's verdict on a request.
type ResultInfo struct {
	ResultStatus string `json:"resultStatus"`
	ResultCode   string `json:"resultCode"`
	ResultMsg    string `json:"resultMsg"`
}

type initiateResponse struct {
	Head json.RawMessage `json:"head"`
	Body *struct {
		ResultInfo *ResultInfo `json:"resultInfo"`
		TxnToken   string      `json:"txnToken"`
	} `json:"body"`
}

// InitiateResult is the parsed outcome of a successful initiation.
type InitiateResult struct {
	ResultInfo
	TxnToken string
	Website  string
	Attempts int
}

type attemptPhase int

const (
	phasePrimary attemptPhase = iota
	phaseFallback
)

func (p attemptPhase) String() string {
	if p == phaseFallback {
		return "fallback"
	}
	return "primary"
}

// Initiate submits the order to the gateway. The primary attempt uses the
// configured website; a single fallback attempt follows only when the primary
// was WEBSTAGING and the gateway answered with the environment-mismatch code.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	info, token, err := c.attempt(ctx, phasePrimary, c.website, req)
	attempts := 1
	website := c.website

	if err == nil && c.shouldFallback(info) {
		log.Printf("level=warn component=paytm_client op=initiate order_id=%s msg=\"environment mismatch; retrying with fallback website\" from=%s to=%s host=%s",
			req.OrderID, c.website, c.fallbackWebsite, c.BaseURL)
		website = c.fallbackWebsite
		info, token, err = c.attempt(ctx, phaseFallback, website, req)
		attempts++
	}
	if err != nil {
		return nil, err
	}

	if info.ResultStatus != ResultStatusOK || token == "" {
		return nil, &RejectedError{
			OrderID:  req.OrderID,
			Code:     info.ResultCode,
			Status:   info.ResultStatus,
			Message:  info.ResultMsg,
			Attempts: attempts,
		}
	}

	return &InitiateResult{
		ResultInfo: info,
		TxnToken:   token,
		Website:    website,
		Attempts:   attempts,
	}, nil
}

func (c *Client) shouldFallback(info ResultInfo) bool {
	return info.ResultCode == EnvMismatchCode && c.website == StagingWebsite
}

// BuildOrderBody assembles the canonical body for the given website label.
func (c *Client) BuildOrderBody(website string, req InitiateRequest) OrderBody {
	return OrderBody{
		RequestType: "Payment",
		MID:         c.merchantID,
		WebsiteName: website,
		OrderID:     req.OrderID,
		CallbackURL: c.callbackURL,
		TxnAmount: TxnAmount{
			Value:    req.Amount.StringFixed(2),
			Currency: req.Currency,
		},
		UserInfo:       UserInfo{CustID: req.CustomerID},
		ChannelID:      c.channelID,
		IndustryTypeID: c.industryType,
	}
}

func (c *Client) attempt(ctx context.Context, phase attemptPhase, website string, req InitiateRequest) (ResultInfo, string, error) {
	body, err := checksum.CanonicalJSON(c.BuildOrderBody(website, req))
	if err != nil {
		return ResultInfo{}, "", fmt.Errorf("failed to marshal order body: %w", err)
	}

	payload, err := json.Marshal(signedRequest{
		Head: requestHead{Signature: checksum.Sign(body, c.merchantKey)},
		Body: body,
	})
	if err != nil {
		return ResultInfo{}, "", fmt.Errorf("failed to marshal initiate request: %w", err)
	}

	endpoint := c.BaseURL + initiatePath + "?mid=" + url.QueryEscape(c.merchantID) + "&orderId=" + url.QueryEscape(req.OrderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ResultInfo{}, "", fmt.Errorf("failed to create initiate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log.Printf("level=info component=paytm_client op=initiate phase=%s order_id=%s website=%s host=%s", phase, req.OrderID, website, c.BaseURL)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		log.Printf("level=warn component=paytm_client op=initiate phase=%s order_id=%s msg=\"transport failure\" err=%v", phase, req.OrderID, err)
		return ResultInfo{}, "", &UnavailableError{OrderID: req.OrderID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ResultInfo{}, "", &UnavailableError{OrderID: req.OrderID, Err: err}
	}

	info, token, parseErr := parseInitiateResponse(raw)
	if parseErr != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			log.Printf("level=warn component=paytm_client op=initiate phase=%s order_id=%s status=%d msg=\"non-2xx response (unparsable body)\"", phase, req.OrderID, resp.StatusCode)
			return ResultInfo{}, "", &UnavailableError{OrderID: req.OrderID, Err: fmt.Errorf("gateway returned status %d", resp.StatusCode)}
		}
		log.Printf("level=warn component=paytm_client op=initiate phase=%s order_id=%s status=%d msg=\"response did not match schema\" err=%v", phase, req.OrderID, resp.StatusCode, parseErr)
		return ResultInfo{}, "", &ParseError{OrderID: req.OrderID, HTTPStatus: resp.StatusCode, Err: parseErr}
	}

	log.Printf("level=info component=paytm_client op=initiate phase=%s order_id=%s status=%d result_status=%s result_code=%s", phase, req.OrderID, resp.StatusCode, info.ResultStatus, info.ResultCode)
	return info, token, nil
}

func parseInitiateResponse(raw []byte) (ResultInfo, string, error) {
	var parsed initiateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ResultInfo{}, "", fmt.Errorf("decode body: %w", err)
	}
	if parsed.Body == nil {
		return ResultInfo{}, "", fmt.Errorf("missing body")
	}
	if parsed.Body.ResultInfo == nil {
		return ResultInfo{}, "", fmt.Errorf("missing body.resultInfo")
	}
	info := *parsed.Body.ResultInfo
	if strings.TrimSpace(info.ResultStatus) == "" {
		return ResultInfo{}, "", fmt.Errorf("missing body.resultInfo.resultStatus")
	}
	return info, parsed.Body.TxnToken, nil
}
