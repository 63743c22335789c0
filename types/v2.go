package types

// PaymentPayloadV2 is the current payment payload. The requirement the client
// chose to satisfy travels inside the payload under accepted, so verify and
// settle can compare it against the server's copy without extra context.
type PaymentPayloadV2 struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirementsV2  `json:"accepted"`
	Resource    *ResourceInfoV2        `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentRequirementsV2 is a current payment requirement. Networks are CAIP-2
// identifiers and the amount field is the plain atomic amount.
type PaymentRequirementsV2 struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	OutputSchema      map[string]interface{} `json:"outputSchema,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
	Extensions        map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentRequiredV2 is the current 402 challenge body.
type PaymentRequiredV2 struct {
	X402Version int                     `json:"x402Version"`
	Error       string                  `json:"error,omitempty"`
	Resource    *ResourceInfoV2         `json:"resource,omitempty"`
	Accepts     []PaymentRequirementsV2 `json:"accepts"`
	Extensions  map[string]interface{}  `json:"extensions,omitempty"`
}

// ResourceInfoV2 identifies the resource a challenge or payment refers to.
type ResourceInfoV2 struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ToPaymentPayloadV2 decodes a current payment payload body.
func ToPaymentPayloadV2(data []byte) (*PaymentPayloadV2, error) {
	return decode[PaymentPayloadV2](data)
}

// ToPaymentRequirementsV2 decodes a current payment requirements body.
func ToPaymentRequirementsV2(data []byte) (*PaymentRequirementsV2, error) {
	return decode[PaymentRequirementsV2](data)
}

// ToPaymentRequiredV2 decodes a current 402 challenge body.
func ToPaymentRequiredV2(data []byte) (*PaymentRequiredV2, error) {
	return decode[PaymentRequiredV2](data)
}
