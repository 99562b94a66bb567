//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/types"
)

const defaultPaymentsHTTPBase = "http://localhost:48080"

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	return c.doJSONWithAPIKey(t, method, path, body, "")
}

func (c *httpClient) doJSONWithAPIKey(t *testing.T, method, path string, body any, apiKey string) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/health", nil)
		req.Header.Set("X-Request-ID", fmt.Sprintf("wait-http-%d", time.Now().UnixNano()))
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

// TestPaymentsE2E expects the service running with the mock gateway and
// AUTH_SERVICE_GRPC_ADDR pointing at the auth mock started in TestMain.
func TestPaymentsE2E(t *testing.T) {
	httpBase := os.Getenv("PAYMENTS_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultPaymentsHTTPBase
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}

	client := newHTTPClient(httpBase)
	email := fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano())

	var planID uint64
	var order types.CreateOrderResponse

	t.Run("HTTPListPlans", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/plans", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.ListPlansResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal plans failed: %v body=%s", err, string(body))
		}
		if len(payload.Data) == 0 {
			t.Fatal("expected at least one active plan")
		}
		planID = payload.Data[0].ID
	})

	t.Run("HTTPDiscountFound", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/discount/welcome20", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPDiscountNotFound", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/discount/NOPE", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPValidationCreate", func(t *testing.T) {
		resp, _ := client.doJSON(t, http.MethodPost, "/create-order", map[string]any{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for invalid create request, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPCreateOrder", func(t *testing.T) {
		if planID == 0 {
			t.Skip("no plan available")
		}
		resp, body := client.doJSON(t, http.MethodPost, "/create-order", map[string]any{
			"planId": planID,
			"customerInfo": map[string]any{
				"name":  "E2E Member",
				"email": email,
			},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		if err := json.Unmarshal(body, &order); err != nil {
			t.Fatalf("unmarshal order failed: %v body=%s", err, string(body))
		}
		if !order.MockMode || order.OrderID == "" || order.PaymentID == 0 {
			t.Fatalf("unexpected order response: %+v", order)
		}
		if order.Amount != order.Billing.TotalAmount*100 {
			t.Fatalf("amount %d does not match total %d", order.Amount, order.Billing.TotalAmount)
		}
	})

	verifyBody := func() map[string]any {
		return map[string]any{
			"razorpayOrderId":   order.OrderID,
			"razorpayPaymentId": "pay_e2e",
			"razorpaySignature": "mock",
			"paymentId":         order.PaymentID,
		}
	}

	t.Run("HTTPVerifyPayment", func(t *testing.T) {
		if order.PaymentID == 0 {
			t.Skip("no order created")
		}
		resp, body := client.doJSON(t, http.MethodPost, "/verify-payment", verifyBody())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.VerifyPaymentResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal verify failed: %v body=%s", err, string(body))
		}
		if payload.AlreadyProcessed || payload.Data.Payment.Status != "paid" {
			t.Fatalf("unexpected verify response: %s", string(body))
		}
		if payload.Data.Member == nil || payload.Data.Member.MembershipStatus != "active" {
			t.Fatalf("expected an active member: %s", string(body))
		}
	})

	t.Run("HTTPVerifyPaymentReplay", func(t *testing.T) {
		if order.PaymentID == 0 {
			t.Skip("no order created")
		}
		resp, body := client.doJSON(t, http.MethodPost, "/verify-payment", verifyBody())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.VerifyPaymentResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal verify failed: %v body=%s", err, string(body))
		}
		if !payload.AlreadyProcessed {
			t.Fatalf("expected alreadyProcessed on replay: %s", string(body))
		}
	})

	t.Run("HTTPVerifyUnknownOrder", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/verify-payment", map[string]any{
			"razorpayOrderId":   "order_missing",
			"razorpayPaymentId": "pay_missing",
			"razorpaySignature": "mock",
		})
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPAdminUnauthorizedMissingAPIKey", func(t *testing.T) {
		resp, _ := client.doJSONWithAPIKey(t, http.MethodGet, "/admin/payments", nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for missing x-api-key, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPAdminForbiddenInsufficientAccess", func(t *testing.T) {
		resp, _ := client.doJSONWithAPIKey(t, http.MethodGet, "/admin/payments", nil, frontDeskAPIKey())
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for insufficient access, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPAdminFrontDeskCannotRefund", func(t *testing.T) {
		if order.PaymentID == 0 {
			t.Skip("no order created")
		}
		path := "/admin/payments/" + strconv.FormatUint(order.PaymentID, 10) + "/refunds"
		resp, body := client.doJSONWithAPIKey(t, http.MethodPost, path, map[string]any{"reason": "e2e"}, frontDeskAPIKey())
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for front desk refund, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPAdminListPayments", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodGet, "/admin/payments?status=paid&limit=10&offset=0", nil, adminAPIKey())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.ListPaymentsResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal list payments failed: %v body=%s", err, string(body))
		}
	})

	t.Run("HTTPAdminGetNotFound", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodGet, "/admin/payments/"+strconv.FormatUint(999999999, 10), nil, adminAPIKey())
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPAdminGetAndRefund", func(t *testing.T) {
		if order.PaymentID == 0 {
			t.Skip("no order created")
		}
		path := "/admin/payments/" + strconv.FormatUint(order.PaymentID, 10)

		resp, body := client.doJSONWithAPIKey(t, http.MethodGet, path, nil, adminAPIKey())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payment types.PaymentResponse
		if err := json.Unmarshal(body, &payment); err != nil {
			t.Fatalf("unmarshal payment failed: %v body=%s", err, string(body))
		}
		if payment.Data == nil || payment.Data.Status != "paid" || payment.Data.CustomerEmail != email {
			t.Fatalf("unexpected payment: %s", string(body))
		}

		resp, body = client.doJSONWithAPIKey(t, http.MethodPost, path+"/refunds", map[string]any{
			"amount": payment.Data.Amount * 10,
			"reason": "e2e",
		}, adminAPIKey())
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for excessive refund, got %d body=%s", resp.StatusCode, string(body))
		}

		resp, body = client.doJSONWithAPIKey(t, http.MethodPost, path+"/refunds", map[string]any{
			"reason": "e2e",
		}, adminAPIKey())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		if err := json.Unmarshal(body, &payment); err != nil {
			t.Fatalf("unmarshal refund failed: %v body=%s", err, string(body))
		}
		if payment.Data.Status != "refunded" {
			t.Fatalf("expected refunded, got %s", payment.Data.Status)
		}
	})
}
