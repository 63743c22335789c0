// Package bazaar implements the discovery ("bazaar") extension: resource
// servers describe their paid endpoints in a machine-readable discovery
// document, and facilitators catalog resources they see settle.
package bazaar

import (
	x402 "github.com/x402labs/x402-go"
)

// ExtensionKey identifies the extension in extensions maps.
const ExtensionKey = "bazaar"

// HTTP methods usable with query-string inputs.
type QueryParamMethod string

// HTTP methods usable with body inputs.
type BodyMethod string

const (
	MethodGET    QueryParamMethod = "GET"
	MethodDELETE QueryParamMethod = "DELETE"

	MethodPOST BodyMethod = "POST"
	MethodPUT  BodyMethod = "PUT"
)

// QueryInput describes an endpoint taking input via query parameters.
type QueryInput struct {
	Type   string                 `json:"type"`
	Method QueryParamMethod       `json:"method,omitempty"`
	Query  map[string]interface{} `json:"query,omitempty"`
}

// BodyInput describes an endpoint taking input via the request body.
type BodyInput struct {
	Type   string                 `json:"type"`
	Method BodyMethod             `json:"method,omitempty"`
	Body   map[string]interface{} `json:"body,omitempty"`
}

// DiscoveryInfo describes one discoverable endpoint.
type DiscoveryInfo struct {
	// Type is the transport kind, currently always "http".
	Type string `json:"type"`

	// Input is a QueryInput or BodyInput; it stays generic in JSON.
	Input interface{} `json:"input,omitempty"`

	// Output describes the response shape.
	Output map[string]interface{} `json:"output,omitempty"`
}

// DiscoveryExtension is the extension envelope carried in payloads and 402
// bodies: the info plus the schema the info must satisfy.
type DiscoveryExtension struct {
	Info   DiscoveryInfo          `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}

// ResourceEntry is one protected path in a discovery document.
type ResourceEntry struct {
	Accepts     []x402.PaymentRequirements `json:"accepts"`
	Description string                     `json:"description,omitempty"`
}

// DocumentBody holds the per-path resource entries.
type DocumentBody struct {
	Resources map[string]ResourceEntry `json:"resources"`
}

// DiscoveryDocument is the top-level discovery document a resource server
// publishes. X402Version is a string in this document, unlike the integer
// used on the wire.
type DiscoveryDocument struct {
	X402Version       string       `json:"x402Version"`
	DiscoveryDocument DocumentBody `json:"discoveryDocument"`
}

// DiscoveredResource is what a facilitator catalogs from a settling payment.
type DiscoveredResource struct {
	ResourceURL   string
	Method        string
	X402Version   int
	DiscoveryInfo *DiscoveryInfo
}

// ValidationResult reports document or extension validation problems.
type ValidationResult struct {
	Valid  bool
	Errors []string
}
