package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*CheckoutDirectGateway)(nil)

// CheckoutDirectGateway implements PaymentGateway using direct HTTP calls
// against the provider's checkout API.
type CheckoutDirectGateway struct {
	apiKey  string
	sandbox bool
	baseURL string
	client  *http.Client
}

// NewCheckoutDirectGateway creates a new direct checkout gateway.
func NewCheckoutDirectGateway(apiKey string, sandbox bool) *CheckoutDirectGateway {
	var baseURL string
	switch sandbox {
	case true:
		baseURL = "https://sandbox.checkout.storeseo.com/v1"
	case false:
		baseURL = "https://checkout.storeseo.com/v1"
	}

	return &CheckoutDirectGateway{
		apiKey:  apiKey,
		sandbox: sandbox,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (g *CheckoutDirectGateway) Name() string { return "checkout" }

// checkoutPaymentResponse represents the response from the payment creation API
type checkoutPaymentResponse struct {
	Data struct {
		Reference   string `json:"reference"`
		CheckoutURL string `json:"checkout_url"`
		Status      string `json:"status"`
	} `json:"data"`
	Errors []interface{} `json:"errors"`
}

// checkoutVerifyResponse represents the response from the payment verification API
type checkoutVerifyResponse struct {
	Data struct {
		Reference     string `json:"reference"`
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
	} `json:"data"`
	Errors []interface{} `json:"errors"`
}

// checkoutRefundResponse represents the response from the refund API
type checkoutRefundResponse struct {
	Data struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"`
	} `json:"data"`
	Errors []interface{} `json:"errors"`
}

func (g *CheckoutDirectGateway) post(ctx context.Context, url string, payload map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	return nil
}

// CreatePayment implements PaymentGateway.CreatePayment using direct HTTP calls.
func (g *CheckoutDirectGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency, description, callbackURL string, meta map[string]interface{}) (string, string, error) {
	requestData := map[string]interface{}{
		"amount":       amount.StringFixed(2),
		"currency":     currency,
		"description":  description,
		"callback_url": callbackURL,
	}
	if meta != nil {
		requestData["metadata"] = meta
	}

	var response checkoutPaymentResponse
	if err := g.post(ctx, g.baseURL+"/payments", requestData, &response); err != nil {
		return "", "", err
	}

	if len(response.Errors) > 0 {
		errorBytes, _ := json.Marshal(response.Errors)
		return "", "", fmt.Errorf("checkout errors: %s", string(errorBytes))
	}
	if response.Data.Reference == "" {
		return "", "", fmt.Errorf("checkout error: empty reference, status %q", response.Data.Status)
	}

	return response.Data.Reference, response.Data.CheckoutURL, nil
}

// VerifyPayment implements PaymentGateway.VerifyPayment using direct HTTP calls.
func (g *CheckoutDirectGateway) VerifyPayment(ctx context.Context, ref string, amount decimal.Decimal, currency string) (bool, string, error) {
	requestData := map[string]interface{}{
		"reference": ref,
		"amount":    amount.StringFixed(2),
		"currency":  currency,
	}

	var response checkoutVerifyResponse
	if err := g.post(ctx, g.baseURL+"/payments/verify", requestData, &response); err != nil {
		return false, "", err
	}

	if len(response.Errors) > 0 {
		errorBytes, _ := json.Marshal(response.Errors)
		return false, "", fmt.Errorf("checkout errors: %s", string(errorBytes))
	}

	// "settled" and "already_settled" both mean the money is ours; everything
	// else is an authoritative not-paid answer.
	switch response.Data.Status {
	case "settled", "already_settled":
		return true, response.Data.TransactionID, nil
	default:
		return false, "", nil
	}
}

// RefundPayment implements PaymentGateway.RefundPayment using direct HTTP calls.
func (g *CheckoutDirectGateway) RefundPayment(ctx context.Context, ref string, amount decimal.Decimal, currency, reason string) (string, error) {
	requestData := map[string]interface{}{
		"reference": ref,
		"currency":  currency,
		"reason":    reason,
	}
	if !amount.IsZero() {
		requestData["amount"] = amount.StringFixed(2)
	}

	var response checkoutRefundResponse
	if err := g.post(ctx, g.baseURL+"/refunds", requestData, &response); err != nil {
		return "", err
	}

	if len(response.Errors) > 0 {
		errorBytes, _ := json.Marshal(response.Errors)
		return "", fmt.Errorf("checkout errors: %s", string(errorBytes))
	}
	if response.Data.RefundID == "" {
		return "", fmt.Errorf("checkout error: refund not accepted, status %q", response.Data.Status)
	}

	return response.Data.RefundID, nil
}
