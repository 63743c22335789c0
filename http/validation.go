package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	x402 "github.com/x402labs/x402-go"
)

var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/_-]+={0,2}$`)

// ValidateAndDecodePaymentHeader validates and decodes an X-PAYMENT header.
// Validation happens field by field on the raw map before the struct
// unmarshal so error messages name the offending field. Every failure maps
// to invalid_payload at the protocol level.
func ValidateAndDecodePaymentHeader(paymentHeader string) (*x402.PaymentPayload, []byte, error) {
	if paymentHeader == "" {
		return nil, nil, fmt.Errorf("payment header is empty")
	}

	if !base64Regex.MatchString(paymentHeader) {
		return nil, nil, fmt.Errorf("invalid payment header format: not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(paymentHeader)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(paymentHeader)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid payment header format: base64 decoding failed - %v", err)
		}
	}

	var rawPayload map[string]interface{}
	if err := json.Unmarshal(decoded, &rawPayload); err != nil {
		return nil, nil, fmt.Errorf("invalid payment header format: not valid JSON - %v", err)
	}

	version, exists := rawPayload["x402Version"]
	if !exists {
		return nil, nil, fmt.Errorf("missing required field: x402Version")
	}
	versionNum, ok := version.(float64)
	if !ok {
		return nil, nil, fmt.Errorf("invalid field type: x402Version must be a number")
	}
	if int(versionNum) < 1 || int(versionNum) > 2 {
		return nil, nil, fmt.Errorf("invalid value: unsupported x402Version %d", int(versionNum))
	}

	if _, exists := rawPayload["payload"]; !exists {
		return nil, nil, fmt.Errorf("missing required field: payload")
	}
	if _, ok := rawPayload["payload"].(map[string]interface{}); !ok {
		return nil, nil, fmt.Errorf("invalid field type: payload must be an object")
	}

	switch int(versionNum) {
	case 2:
		accepted, exists := rawPayload["accepted"]
		if !exists {
			return nil, nil, fmt.Errorf("missing required field: accepted")
		}
		acceptedMap, ok := accepted.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("invalid field type: accepted must be an object")
		}
		for _, field := range []string{"scheme", "network"} {
			value, exists := acceptedMap[field]
			if !exists {
				return nil, nil, fmt.Errorf("missing required field: accepted.%s", field)
			}
			if _, ok := value.(string); !ok {
				return nil, nil, fmt.Errorf("invalid field type: accepted.%s must be a string", field)
			}
		}
	case 1:
		for _, field := range []string{"scheme", "network"} {
			value, exists := rawPayload[field]
			if !exists {
				return nil, nil, fmt.Errorf("missing required field: %s", field)
			}
			if _, ok := value.(string); !ok {
				return nil, nil, fmt.Errorf("invalid field type: %s must be a string", field)
			}
		}
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to parse payment payload: %v", err)
	}

	return &payload, decoded, nil
}
