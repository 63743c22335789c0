package paymentidentifier

import (
	"encoding/json"
	"fmt"

	x402 "github.com/x402labs/x402-go"
)

// ValidatePaymentIdentifier validates an extension object: structure plus
// id format when an id is present.
func ValidatePaymentIdentifier(extension interface{}) ValidationResult {
	if extension == nil {
		return ValidationResult{Valid: false, Errors: []string{"extension must be an object"}}
	}
	ext, err := asExtension(extension)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if ext.Info.ID != "" && !IsValidPaymentID(ext.Info.ID) {
		return ValidationResult{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"invalid payment id: must be %d-%d characters of alphanumerics, hyphens, and underscores",
				PaymentIDMinLength, PaymentIDMaxLength)},
		}
	}
	return ValidationResult{Valid: true}
}

// ExtractPaymentIdentifier returns the payment id carried by a payload, or
// "" when the extension is absent. With validate set, a malformed id is an
// error instead.
func ExtractPaymentIdentifier(payload x402.PaymentPayload, validate bool) (string, error) {
	if payload.Extensions == nil {
		return "", nil
	}
	raw, ok := payload.Extensions[ExtensionKey]
	if !ok {
		return "", nil
	}
	ext, err := asExtension(raw)
	if err != nil {
		return "", err
	}
	if ext.Info.ID == "" {
		return "", nil
	}
	if validate && !IsValidPaymentID(ext.Info.ID) {
		return "", fmt.Errorf("invalid payment id format")
	}
	return ext.Info.ID, nil
}

// ExtractPaymentIdentifierFromBytes extracts the payment id from raw payload
// bytes. V1 payloads carry no extensions and yield "".
func ExtractPaymentIdentifierFromBytes(payloadBytes []byte, validate bool) (string, error) {
	var versionCheck struct {
		X402Version int `json:"x402Version"`
	}
	if err := json.Unmarshal(payloadBytes, &versionCheck); err != nil {
		return "", fmt.Errorf("failed to parse version: %w", err)
	}
	if versionCheck.X402Version == 1 {
		return "", nil
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return ExtractPaymentIdentifier(payload, validate)
}

// HasPaymentIdentifier reports whether the payload carries the extension.
func HasPaymentIdentifier(payload x402.PaymentPayload) bool {
	if payload.Extensions == nil {
		return false
	}
	_, ok := payload.Extensions[ExtensionKey]
	return ok
}

// IsPaymentIdentifierRequired reads the required flag out of a declared
// extension object.
func IsPaymentIdentifierRequired(extension interface{}) bool {
	ext, err := asExtension(extension)
	if err != nil {
		return false
	}
	return ext.Info.Required
}

// ValidatePaymentIdentifierRequirement checks a payload against the
// server's required flag: when required, a well-formed id must be present.
func ValidatePaymentIdentifierRequirement(payload x402.PaymentPayload, serverRequired bool) ValidationResult {
	if !serverRequired {
		return ValidationResult{Valid: true}
	}
	id, err := ExtractPaymentIdentifier(payload, false)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if id == "" {
		return ValidationResult{Valid: false, Errors: []string{"server requires a payment identifier but none was provided"}}
	}
	if !IsValidPaymentID(id) {
		return ValidationResult{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"invalid payment id: must be %d-%d characters of alphanumerics, hyphens, and underscores",
				PaymentIDMinLength, PaymentIDMaxLength)},
		}
	}
	return ValidationResult{Valid: true}
}

// AttachToSettleResponse copies the payload's payment id into the settle
// response extensions, so receipts carry the correlation id back to the
// resource server.
func AttachToSettleResponse(response *x402.SettleResponse, payload x402.PaymentPayload) {
	id, err := ExtractPaymentIdentifier(payload, false)
	if err != nil || id == "" {
		return
	}
	if response.Extensions == nil {
		response.Extensions = make(map[string]interface{})
	}
	response.Extensions[ExtensionKey] = PaymentIdentifierExtension{
		Info: Info{Required: false, ID: id},
	}
}
