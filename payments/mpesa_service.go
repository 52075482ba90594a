package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	config "github.com/anjiri1684/property_manager/configs"
	"github.com/anjiri1684/property_manager/utils"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL  = "https://api.buni.kcbgroup.com/mm/api/request/1.0.0"
	defaultTokenURL = "https://api.buni.kcbgroup.com/token?grant_type=client_credentials"
	defaultTimeout  = 10 * time.Second
)

type ClientOptions struct {
	BaseURL         string
	TokenURL        string
	APIKey          string
	APISecret       string
	AccountNumber   string
	RouteCode       string
	CallbackURL     string
	TransactionDesc string
	Timeout         time.Duration
}

func OptionsFromEnv() ClientOptions {
	return ClientOptions{
		BaseURL:         config.ConfigOrDefault("KCB_API_BASE_URL", defaultBaseURL),
		TokenURL:        config.ConfigOrDefault("KCB_TOKEN_URL", defaultTokenURL),
		APIKey:          config.Config("KCB_API_KEY"),
		APISecret:       config.Config("KCB_API_SECRET"),
		AccountNumber:   config.Config("KCB_ACCOUNT_NUMBER"),
		RouteCode:       config.Config("KCB_ROUTE_CODE"),
		CallbackURL:     config.Config("WEBHOOK_BASE_URL") + "/api/v1/payments/callback",
		TransactionDesc: config.ConfigOrDefault("KCB_TRANSACTION_DESC", "Rent payment"),
		Timeout:         config.ConfigDuration("GATEWAY_TIMEOUT", defaultTimeout),
	}
}

type StkPushRequest struct {
	PhoneNumber            string `json:"phoneNumber"`
	Amount                 string `json:"amount"`
	InvoiceNumber          string `json:"invoiceNumber"`
	SharedShortCode        bool   `json:"sharedShortCode"`
	OrgShortCode           string `json:"orgShortCode"`
	OrgPassKey             string `json:"orgPassKey"`
	CallbackURL            string `json:"callbackUrl"`
	TransactionDescription string `json:"transactionDescription"`
}

type StkPushResponse struct {
	Header struct {
		StatusCode        string `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
	} `json:"header"`
	Response struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		CustomerMessage     string `json:"CustomerMessage"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	} `json:"response"`
}

type InitiationResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	CustomerMessage     string
	ResponseCode        string
	ResponseDescription string
	Raw                 []byte
}

var ErrInvalidPhone = errors.New("invalid M-Pesa phone number format")

var nonNumericRegex = regexp.MustCompile(`[^0-9]`)

func SanitizeMpesaNumber(phone string) (string, error) {
	sanitized := nonNumericRegex.ReplaceAllString(phone, "")

	if (strings.HasPrefix(sanitized, "07") || strings.HasPrefix(sanitized, "01")) && len(sanitized) == 10 {
		return "254" + sanitized[1:], nil
	}
	if (strings.HasPrefix(sanitized, "7") || strings.HasPrefix(sanitized, "1")) && len(sanitized) == 9 {
		return "254" + sanitized, nil
	}
	if strings.HasPrefix(sanitized, "254") && len(sanitized) == 12 {
		return sanitized, nil
	}

	return "", ErrInvalidPhone
}

// MpesaClient starts STK push charges through KCB Buni. It never retries a charge; the
// only repeated request is a single resend after the gateway rejects a stale token.
type MpesaClient struct {
	opts   ClientOptions
	http   *http.Client
	tokens *TokenSource
}

func NewMpesaClient(opts ClientOptions, store TokenStore) *MpesaClient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := &http.Client{Timeout: opts.Timeout}
	return &MpesaClient{
		opts:   opts,
		http:   client,
		tokens: NewTokenSource(opts.TokenURL, opts.APIKey, opts.APISecret, client, store),
	}
}

func (c *MpesaClient) AccountNumber() string { return c.opts.AccountNumber }

// Initiate sends one STK push. accountReference is echoed back by the gateway in the
// callback, prefixed with the KCB account number.
func (c *MpesaClient) Initiate(ctx context.Context, phone string, amount decimal.Decimal, accountReference, description string) (*InitiationResult, error) {
	sanitizedPhone, err := SanitizeMpesaNumber(phone)
	if err != nil {
		return nil, err
	}
	if c.opts.AccountNumber == "" {
		return nil, fmt.Errorf("KCB_ACCOUNT_NUMBER is not set")
	}
	if description == "" {
		description = c.opts.TransactionDesc
	}

	payload := StkPushRequest{
		PhoneNumber:            sanitizedPhone,
		Amount:                 amount.StringFixed(0),
		InvoiceNumber:          InvoiceNumber(c.opts.AccountNumber, accountReference),
		SharedShortCode:        true,
		CallbackURL:            c.opts.CallbackURL,
		TransactionDescription: description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STK payload: %w", err)
	}

	respBody, status, err := c.send(ctx, body)
	if err == nil && status == http.StatusUnauthorized {
		log.Println("⚠️ KCB rejected access token, refreshing once")
		c.tokens.Invalidate(ctx)
		respBody, status, err = c.send(ctx, body)
	}
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		log.Printf("KCB API Error: %s", excerpt(respBody))
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, Body: excerpt(respBody)}
	}

	var stkResponse StkPushResponse
	if err := json.Unmarshal(respBody, &stkResponse); err != nil {
		return nil, &GatewayError{Op: "stkpush", Err: fmt.Errorf("failed to unmarshal STK response: %w", err)}
	}
	r := stkResponse.Response
	if r.ResponseCode != "0" {
		log.Printf("KCB STK Push initiation failed: %s", r.ResponseDescription)
		return nil, &GatewayError{Op: "stkpush", Err: fmt.Errorf("STK push rejected (%s): %s", r.ResponseCode, r.ResponseDescription)}
	}
	if r.MerchantRequestID == "" || r.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: "stkpush", Err: errors.New("STK response is missing request ids")}
	}

	log.Printf("✅ STK Push initiated, CheckoutRequestID: %s", r.CheckoutRequestID)
	return &InitiationResult{
		MerchantRequestID:   r.MerchantRequestID,
		CheckoutRequestID:   r.CheckoutRequestID,
		CustomerMessage:     r.CustomerMessage,
		ResponseCode:        r.ResponseCode,
		ResponseDescription: r.ResponseDescription,
		Raw:                 respBody,
	}, nil
}

func (c *MpesaClient) send(ctx context.Context, body []byte) ([]byte, int, error) {
	accessToken, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/stkpush", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create STK request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("routeCode", c.opts.RouteCode)
	req.Header.Set("operation", "STKPush")
	req.Header.Set("messageId", utils.GenerateMessageID("stk"))
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &GatewayError{Op: "stkpush", Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &GatewayError{Op: "stkpush", Timeout: isTimeout(err), Err: err}
	}
	return respBody, resp.StatusCode, nil
}
