package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature computes the HMAC-SHA256 hex digest the gateway is expected to
// supply for a captured payment: the keyed hash of
// "<gatewayOrderID>|<gatewayPaymentID>" under the server-held secret.
func Signature(gatewayOrderID, gatewayPaymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected digest and compares it in constant
// time. A mismatch is a payment failure, not necessarily an attack.
func VerifySignature(gatewayOrderID, gatewayPaymentID, supplied, secret string) bool {
	if supplied == "" || secret == "" {
		return false
	}
	expected := Signature(gatewayOrderID, gatewayPaymentID, secret)
	return hmac.Equal([]byte(expected), []byte(supplied))
}
