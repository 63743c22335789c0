package bazaar

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/x402labs/x402-go"
)

// knownSchemes is the set of scheme identifiers a discovery entry may
// advertise.
var knownSchemes = map[string]bool{
	"exact": true,
}

var (
	evmAddressPattern    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	base58AddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	decimalPattern       = regexp.MustCompile(`^[0-9]+$`)
	// Native-asset symbols used by rails without contract addresses.
	symbolPattern = regexp.MustCompile(`^[A-Z]{2,6}$`)
)

// documentSchema is the JSON Schema for the discovery document envelope.
// Per-entry semantic checks live in validateEntry; the schema pins the
// structure.
var documentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"x402Version": map[string]interface{}{"type": "string"},
		"discoveryDocument": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resources": map[string]interface{}{"type": "object"},
			},
			"required": []string{"resources"},
		},
	},
	"required": []string{"x402Version", "discoveryDocument"},
}

// ParseDiscoveryDocument parses and validates raw discovery document JSON.
func ParseDiscoveryDocument(data []byte) (*DiscoveryDocument, ValidationResult) {
	schemaLoader := gojsonschema.NewGoLoader(documentSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)
	schemaResult, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("schema validation failed: %v", err)}}
	}
	if !schemaResult.Valid() {
		var errs []string
		for _, desc := range schemaResult.Errors() {
			errs = append(errs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return nil, ValidationResult{Valid: false, Errors: errs}
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("failed to parse document: %v", err)}}
	}

	result := ValidateDiscoveryDocument(&doc)
	if !result.Valid {
		return nil, result
	}
	return &doc, result
}

// ValidateDiscoveryDocument applies the per-entry rules: known scheme,
// CAIP-2 colon-form network, decimal integer amount, and an asset that is
// an EVM address, a base58 address, or a native-asset symbol.
func ValidateDiscoveryDocument(doc *DiscoveryDocument) ValidationResult {
	var errs []string

	if doc.X402Version != "2" {
		errs = append(errs, fmt.Sprintf("unsupported x402Version %q", doc.X402Version))
	}
	if len(doc.DiscoveryDocument.Resources) == 0 {
		errs = append(errs, "discovery document lists no resources")
	}

	for path, entry := range doc.DiscoveryDocument.Resources {
		if len(entry.Accepts) == 0 {
			errs = append(errs, fmt.Sprintf("%s: entry has no accepts", path))
			continue
		}
		for i, req := range entry.Accepts {
			for _, problem := range validateEntry(req) {
				errs = append(errs, fmt.Sprintf("%s: accepts[%d]: %s", path, i, problem))
			}
		}
	}

	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

func validateEntry(req x402.PaymentRequirements) []string {
	var problems []string

	if !knownSchemes[req.Scheme] {
		problems = append(problems, fmt.Sprintf("unknown scheme %q", req.Scheme))
	}
	if _, _, err := req.Network.Parse(); err != nil {
		problems = append(problems, fmt.Sprintf("network %q is not CAIP-2 colon form", req.Network))
	}
	amount := req.AtomicAmount()
	if amount == "" || !decimalPattern.MatchString(amount) {
		problems = append(problems, fmt.Sprintf("amount %q is not a decimal integer string", amount))
	}
	if !evmAddressPattern.MatchString(req.Asset) &&
		!base58AddressPattern.MatchString(req.Asset) &&
		!symbolPattern.MatchString(req.Asset) {
		problems = append(problems, fmt.Sprintf("asset %q is neither an EVM address, a base58 address, nor an asset symbol", req.Asset))
	}
	if req.PayTo == "" {
		problems = append(problems, "payTo is empty")
	}

	return problems
}
