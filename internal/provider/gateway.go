package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// GatewayConfig configures one HTTP payment gateway client. Percentage and
// FixedFee are the provider's declared rate, used by CalculateFee.
type GatewayConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Percentage decimal.Decimal
	FixedFee   decimal.Decimal
	Methods    []datamodel.Method
}

// GatewayClient talks to one external payment gateway over HTTP. One charge
// call is one synchronous, timeout-bounded request; the orchestrator owns
// fallback across clients.
type GatewayClient struct {
	name       string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	percentage decimal.Decimal
	fixedFee   decimal.Decimal
	methods    map[datamodel.Method]bool
	client     *http.Client
	logger     *slog.Logger
}

func NewGatewayClient(cfg GatewayConfig, logger *slog.Logger) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	methods := make(map[datamodel.Method]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods[m] = true
	}

	return &GatewayClient{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		percentage: cfg.Percentage,
		fixedFee:   cfg.FixedFee,
		methods:    methods,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *GatewayClient) Name() string {
	return c.name
}

func (c *GatewayClient) Supports(method datamodel.Method) bool {
	return c.methods[method]
}

type chargePayload struct {
	Amount         string                 `json:"amount"`
	Currency       string                 `json:"currency"`
	OrderID        string                 `json:"order_id"`
	Reference      string                 `json:"reference"`
	CustomerInfo   map[string]interface{} `json:"customer_info,omitempty"`
	PaymentDetails map[string]interface{} `json:"payment_details,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type chargeResponse struct {
	Data struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
		Fee           string `json:"fee,omitempty"`
		NetAmount     string `json:"net_amount,omitempty"`
		DeclineReason string `json:"decline_reason,omitempty"`
	} `json:"data"`
}

// Charge POSTs a charge to the gateway. Transport failures, timeouts,
// non-2xx responses and declared declines all come back as tagged failures
// so the caller can fall through to the next provider.
func (c *GatewayClient) Charge(ctx context.Context, req ChargeRequest) ChargeResult {
	payload := chargePayload{
		Amount:         req.Amount.StringFixed(2),
		Currency:       req.Currency,
		OrderID:        req.OrderID,
		Reference:      req.PaymentID,
		CustomerInfo:   req.CustomerInfo,
		PaymentDetails: req.PaymentDetails,
		Metadata:       req.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Failed(FailureInvalidResponse, fmt.Sprintf("marshal charge request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewBuffer(body))
	if err != nil {
		return Failed(FailureInvalidResponse, fmt.Sprintf("build charge request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("sending charge request",
		"provider", c.name,
		"order_id", req.OrderID,
		"reference", req.PaymentID,
		"amount", payload.Amount,
		"currency", req.Currency)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return c.classifyTransportFailure(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed(FailureConnectivity, fmt.Sprintf("read charge response: %v", err))
	}

	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity {
		var decoded chargeResponse
		detail := fmt.Sprintf("charge declined with status %d", resp.StatusCode)
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Data.DeclineReason != "" {
			detail = decoded.Data.DeclineReason
		}
		return Failed(FailureDeclined, detail)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(FailureInvalidResponse, fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}

	var decoded chargeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Failed(FailureInvalidResponse, fmt.Sprintf("decode charge response: %v", err))
	}
	if decoded.Data.Status != "succeeded" {
		detail := decoded.Data.DeclineReason
		if detail == "" {
			detail = fmt.Sprintf("charge finished with status %q", decoded.Data.Status)
		}
		return Failed(FailureDeclined, detail)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		raw = map[string]interface{}{"status": decoded.Data.Status}
	}

	result := Succeeded(decoded.Data.TransactionID, raw)
	if decoded.Data.Fee != "" {
		if fee, err := decimal.NewFromString(decoded.Data.Fee); err == nil {
			result.Fee = &fee
		}
	}
	if decoded.Data.NetAmount != "" {
		if net, err := decimal.NewFromString(decoded.Data.NetAmount); err == nil {
			result.NetAmount = &net
		}
	}
	return result
}

func (c *GatewayClient) classifyTransportFailure(err error) ChargeResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failed(FailureTimeout, fmt.Sprintf("charge request timed out after %s", c.timeout))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failed(FailureTimeout, fmt.Sprintf("charge request timed out after %s", c.timeout))
	}
	return Failed(FailureConnectivity, fmt.Sprintf("charge request failed: %v", err))
}

func (c *GatewayClient) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s unreachable: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway %s health returned status %d", c.name, resp.StatusCode)
	}
	return nil
}

func (c *GatewayClient) CalculateFee(amount decimal.Decimal) decimal.Decimal {
	return c.percentage.Mul(amount).Add(c.fixedFee).Round(2)
}
