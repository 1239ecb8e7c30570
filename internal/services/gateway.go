package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/models"
)

// GatewayResponseSuccess is the gateway's success response code
const GatewayResponseSuccess = "000"

const (
	gatewayLookupAttempts = 3
	gatewayLookupBackoff  = time.Second
)

// operationCodes maps our operation types to the gateway's transaction modes
var operationCodes = map[models.OperationType]string{
	models.OperationChargeOnly:        "A",
	models.OperationChargeAndTokenize: "AK",
	models.OperationTokenizeOnly:      "VK",
}

// GatewayService talks to the external card gateway: creating hosted payment
// forms and looking up transaction results by the gateway's correlation id
// (its "low profile" id).
type GatewayService struct {
	baseURL          string
	terminalID       string
	terminalPassword string
	client           *http.Client
}

func NewGatewayService() *GatewayService {
	base := os.Getenv("GATEWAY_BASE_URL")
	if base == "" {
		base = "https://secure.cardgw.example"
	}
	return &GatewayService{
		baseURL:          base,
		terminalID:       os.Getenv("GATEWAY_TERMINAL_ID"),
		terminalPassword: os.Getenv("GATEWAY_TERMINAL_PASSWORD"),
		client:           &http.Client{Timeout: 20 * time.Second},
	}
}

// HostedFormRequest describes one hosted form instance to create
type HostedFormRequest struct {
	CorrelationID string
	Reference     string
	Amount        float64
	Currency      string
	Operation     models.OperationType
	ProductName   string
	SuccessURL    string
	FailureURL    string
	NotifyURL     string
}

// HostedFormResponse is the decoded create-form reply
type HostedFormResponse struct {
	ResponseCode string
	Description  string
	URL          string
}

// TokenInfo carries the stored-card token returned by a result lookup
type TokenInfo struct {
	Token               string `json:"Token"`
	TokenExDate         string `json:"TokenExDate"`
	TokenApprovalNumber string `json:"TokenApprovalNumber"`
}

// TranzactionInfo carries card and amount details of the processed transaction
type TranzactionInfo struct {
	Last4CardDigits string  `json:"Last4CardDigits"`
	CardMonth       string  `json:"CardMonth"`
	CardYear        string  `json:"CardYear"`
	CardOwnerName   string  `json:"CardOwnerName"`
	Amount          float64 `json:"Amount"`
}

// ResultLookupResponse is the gateway's transaction result by correlation id
type ResultLookupResponse struct {
	ResponseCode    string          `json:"ResponseCode"`
	TokenInfo       TokenInfo       `json:"TokenInfo"`
	TranzactionInfo TranzactionInfo `json:"TranzactionInfo"`
	ReturnValue     string          `json:"ReturnValue"`
}

// IsSuccessCode reports whether a gateway response code means success
func IsSuccessCode(code string) bool {
	return code == GatewayResponseSuccess || code == "0"
}

func (s *GatewayService) checkCredentials() error {
	if s.terminalID == "" || s.terminalPassword == "" {
		return apperrors.Configuration("Payment gateway credentials are not configured")
	}
	return nil
}

// CreateHostedForm asks the gateway for a hosted payment form URL. The reply
// body is compact query-encoded (ResponseCode, Description, url).
func (s *GatewayService) CreateHostedForm(ctx context.Context, req HostedFormRequest) (*HostedFormResponse, error) {
	if err := s.checkCredentials(); err != nil {
		return nil, err
	}

	opCode, ok := operationCodes[req.Operation]
	if !ok {
		return nil, apperrors.Validation("Unknown operation type")
	}

	form := url.Values{}
	form.Set("terminal", s.terminalID)
	form.Set("password", s.terminalPassword)
	form.Set("lowprofile_id", req.CorrelationID)
	form.Set("reference", req.Reference)
	form.Set("sum", strconv.FormatFloat(req.Amount, 'f', 2, 64))
	form.Set("currency", req.Currency)
	form.Set("tranmode", opCode)
	form.Set("product", req.ProductName)
	form.Set("success_url", req.SuccessURL)
	form.Set("failure_url", req.FailureURL)
	form.Set("notify_url", req.NotifyURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/lowprofile/create", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Internal("Failed to build gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.UpstreamGateway("Payment gateway is unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.UpstreamGateway("Failed to read gateway response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.UpstreamGateway("Payment gateway rejected the request",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, apperrors.Protocol("Gateway response is not query-encoded", err)
	}

	out := &HostedFormResponse{
		ResponseCode: values.Get("ResponseCode"),
		Description:  values.Get("Description"),
		URL:          values.Get("url"),
	}

	if !IsSuccessCode(out.ResponseCode) {
		return nil, apperrors.UpstreamGateway("Payment gateway declined to create a form",
			fmt.Errorf("gateway code %s: %s", out.ResponseCode, out.Description))
	}
	if out.URL == "" {
		// success code without the form URL violates the contract
		return nil, apperrors.Protocol("Gateway reported success without a form URL", nil)
	}

	return out, nil
}

// LookupResult fetches the transaction outcome for a correlation id directly
// from the gateway. This is the self-healing path for lost notifications;
// transient failures are retried with linear backoff.
func (s *GatewayService) LookupResult(ctx context.Context, correlationID string) (*ResultLookupResponse, error) {
	if err := s.checkCredentials(); err != nil {
		return nil, err
	}
	if correlationID == "" {
		return nil, apperrors.Validation("Correlation id is required")
	}

	payload := map[string]string{
		"terminal":      s.terminalID,
		"password":      s.terminalPassword,
		"lowprofile_id": correlationID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Internal("Failed to marshal lookup request", err)
	}

	var lastErr error
	for attempt := 1; attempt <= gatewayLookupAttempts; attempt++ {
		result, err := s.lookupOnce(ctx, data)
		if err == nil {
			return result, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, apperrors.UpstreamGateway("Gateway lookup canceled", ctx.Err())
		case <-time.After(gatewayLookupBackoff * time.Duration(attempt)):
		}
	}
	return nil, apperrors.UpstreamGateway("Gateway result lookup failed", lastErr)
}

func (s *GatewayService) lookupOnce(ctx context.Context, body []byte) (*ResultLookupResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/lowprofile/result", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("lookup failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ResultLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	return &result, nil
}
