package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayment returns hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func SignPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	if strings.TrimSpace(secret) == "" || signature == "" {
		return false
	}
	expected := SignPayment(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
