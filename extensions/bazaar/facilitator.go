package bazaar

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/x402labs/x402-go"
)

// ValidateDiscoveryExtension validates an extension's info against its own
// carried schema.
func ValidateDiscoveryExtension(extension DiscoveryExtension) ValidationResult {
	schemaJSON, err := json.Marshal(extension.Schema)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("failed to marshal schema: %v", err)}}
	}
	infoJSON, err := json.Marshal(extension.Info)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("failed to marshal info: %v", err)}}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(infoJSON),
	)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("schema validation failed: %v", err)}}
	}
	if result.Valid() {
		return ValidationResult{Valid: true}
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return ValidationResult{Valid: false, Errors: errs}
}

// ExtractDiscoveryInfo pulls discovery information out of payment payload
// bytes for cataloging. V1 payloads carry no extensions and yield nil. A
// payload without the extension also yields nil; that is not an error, the
// resource simply is not discoverable.
func ExtractDiscoveryInfo(payloadBytes []byte, validate bool) (*DiscoveredResource, error) {
	var versionCheck struct {
		X402Version int `json:"x402Version"`
	}
	if err := json.Unmarshal(payloadBytes, &versionCheck); err != nil {
		return nil, fmt.Errorf("failed to parse version: %w", err)
	}
	if versionCheck.X402Version == 1 {
		return nil, nil
	}
	if versionCheck.X402Version != 2 {
		return nil, fmt.Errorf("unsupported version: %d", versionCheck.X402Version)
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.Extensions == nil {
		return nil, nil
	}
	raw, ok := payload.Extensions[ExtensionKey]
	if !ok {
		return nil, nil
	}

	extensionJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bazaar extension: %w", err)
	}
	var extension DiscoveryExtension
	if err := json.Unmarshal(extensionJSON, &extension); err != nil {
		return nil, fmt.Errorf("discovery extension extraction failed: %w", err)
	}
	if validate {
		if result := ValidateDiscoveryExtension(extension); !result.Valid {
			return nil, fmt.Errorf("discovery extension validation failed: %v", result.Errors)
		}
	}

	resourceURL := ""
	if payload.Resource != nil {
		resourceURL = payload.Resource.URL
	}

	method := extractMethod(extension.Info)
	if method == "" {
		return nil, fmt.Errorf("discovery info carries no method")
	}

	return &DiscoveredResource{
		ResourceURL:   resourceURL,
		Method:        method,
		X402Version:   2,
		DiscoveryInfo: &extension.Info,
	}, nil
}

// extractMethod handles both typed inputs and the generic maps JSON
// decoding produces.
func extractMethod(info DiscoveryInfo) string {
	switch input := info.Input.(type) {
	case QueryInput:
		return string(input.Method)
	case BodyInput:
		return string(input.Method)
	case map[string]interface{}:
		if method, ok := input["method"].(string); ok {
			return method
		}
	}
	return ""
}
