// Package types holds the versioned wire structures of the x402 protocol
// and version detection for raw header and RPC bodies. The engine packages
// work with the canonical structs in the root package; these types exist for
// the network boundary where both protocol versions must be understood.
package types

import "encoding/json"

// PaymentPayloadV1 is the legacy payment payload. Scheme and network ride at
// the top level instead of inside an accepted requirement, and networks use
// the old human-readable names rather than CAIP-2.
type PaymentPayloadV1 struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentRequirementsV1 is a legacy payment requirement. The amount field is
// maxAmountRequired; outputSchema and extra stay raw because v1 peers
// disagree on their shape.
type PaymentRequirementsV1 struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds"`
	Asset             string           `json:"asset"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`
	Extra             *json.RawMessage `json:"extra,omitempty"`
}

// PaymentRequiredV1 is the legacy 402 challenge body.
type PaymentRequiredV1 struct {
	X402Version int                     `json:"x402Version"`
	Error       string                  `json:"error,omitempty"`
	Accepts     []PaymentRequirementsV1 `json:"accepts"`
}

// decode unmarshals a wire body into the given struct type.
func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ToPaymentPayloadV1 decodes a legacy payment payload body.
func ToPaymentPayloadV1(data []byte) (*PaymentPayloadV1, error) {
	return decode[PaymentPayloadV1](data)
}

// ToPaymentRequirementsV1 decodes a legacy payment requirements body.
func ToPaymentRequirementsV1(data []byte) (*PaymentRequirementsV1, error) {
	return decode[PaymentRequirementsV1](data)
}

// ToPaymentRequiredV1 decodes a legacy 402 challenge body.
func ToPaymentRequiredV1(data []byte) (*PaymentRequiredV1, error) {
	return decode[PaymentRequiredV1](data)
}
