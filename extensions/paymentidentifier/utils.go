package paymentidentifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	x402 "github.com/x402labs/x402-go"
)

// GeneratePaymentID generates a unique payment identifier: prefix plus a
// UUID v4 without hyphens. An empty prefix defaults to "pay_".
func GeneratePaymentID(prefix string) string {
	if prefix == "" {
		prefix = "pay_"
	}
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PayloadFingerprint computes a deterministic hash of a payment payload, so
// two payloads carrying the same payment id can be told apart for conflict
// detection.
func PayloadFingerprint(payload x402.PaymentPayload) (string, error) {
	data, err := x402.CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// IsValidPaymentID reports whether an id meets the format requirements:
// 16-128 characters of alphanumerics, hyphens, and underscores.
func IsValidPaymentID(id string) bool {
	if len(id) < PaymentIDMinLength || len(id) > PaymentIDMaxLength {
		return false
	}
	return paymentIDPattern.MatchString(id)
}

func asExtension(v interface{}) (*PaymentIdentifierExtension, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extension: %w", err)
	}
	ext := &PaymentIdentifierExtension{}
	if err := json.Unmarshal(raw, ext); err != nil {
		return nil, fmt.Errorf("extension must have an 'info' property: %w", err)
	}
	return ext, nil
}
