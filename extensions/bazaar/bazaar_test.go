package bazaar

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402labs/x402-go"
)

func validRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:84532",
		Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:  "10000",
		PayTo:   "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
	}
}

func validDocument() *DiscoveryDocument {
	return &DiscoveryDocument{
		X402Version: "2",
		DiscoveryDocument: DocumentBody{
			Resources: map[string]ResourceEntry{
				"/api/report": {
					Accepts:     []x402.PaymentRequirements{validRequirements()},
					Description: "daily report",
				},
			},
		},
	}
}

func TestValidateDiscoveryDocument(t *testing.T) {
	result := ValidateDiscoveryDocument(validDocument())
	assert.True(t, result.Valid, "errors: %v", result.Errors)

	tests := []struct {
		name   string
		mutate func(doc *DiscoveryDocument)
	}{
		{
			name:   "wrong version",
			mutate: func(d *DiscoveryDocument) { d.X402Version = "1" },
		},
		{
			name:   "no resources",
			mutate: func(d *DiscoveryDocument) { d.DiscoveryDocument.Resources = nil },
		},
		{
			name: "unknown scheme",
			mutate: func(d *DiscoveryDocument) {
				e := d.DiscoveryDocument.Resources["/api/report"]
				e.Accepts[0].Scheme = "streaming"
				d.DiscoveryDocument.Resources["/api/report"] = e
			},
		},
		{
			name: "hyphenated network",
			mutate: func(d *DiscoveryDocument) {
				e := d.DiscoveryDocument.Resources["/api/report"]
				e.Accepts[0].Network = "base-sepolia"
				d.DiscoveryDocument.Resources["/api/report"] = e
			},
		},
		{
			name: "fractional amount",
			mutate: func(d *DiscoveryDocument) {
				e := d.DiscoveryDocument.Resources["/api/report"]
				e.Accepts[0].Amount = "0.01"
				d.DiscoveryDocument.Resources["/api/report"] = e
			},
		},
		{
			name: "malformed asset",
			mutate: func(d *DiscoveryDocument) {
				e := d.DiscoveryDocument.Resources["/api/report"]
				e.Accepts[0].Asset = "0xNOTHEX"
				d.DiscoveryDocument.Resources["/api/report"] = e
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(doc)
			result := ValidateDiscoveryDocument(doc)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestValidateDiscoveryDocumentAcceptsAltAssets(t *testing.T) {
	doc := validDocument()
	entry := doc.DiscoveryDocument.Resources["/api/report"]

	// Base58 (Solana mint).
	entry.Accepts[0].Network = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	entry.Accepts[0].Asset = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	doc.DiscoveryDocument.Resources["/api/report"] = entry
	assert.True(t, ValidateDiscoveryDocument(doc).Valid)

	// Native symbol (XRP).
	entry.Accepts[0].Network = "xrp:mainnet"
	entry.Accepts[0].Asset = "XRP"
	doc.DiscoveryDocument.Resources["/api/report"] = entry
	assert.True(t, ValidateDiscoveryDocument(doc).Valid)
}

func TestParseDiscoveryDocument(t *testing.T) {
	data, err := json.Marshal(validDocument())
	require.NoError(t, err)

	doc, result := ParseDiscoveryDocument(data)
	assert.True(t, result.Valid, "errors: %v", result.Errors)
	require.NotNil(t, doc)
	assert.Len(t, doc.DiscoveryDocument.Resources, 1)

	_, result = ParseDiscoveryDocument([]byte(`{"x402Version":"2"}`))
	assert.False(t, result.Valid)

	_, result = ParseDiscoveryDocument([]byte(`not json`))
	assert.False(t, result.Valid)
}

func testExtensionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"type"},
	}
}

func TestValidateDiscoveryExtension(t *testing.T) {
	ext := DiscoveryExtension{
		Info:   DiscoveryInfo{Type: "http", Input: QueryInput{Type: "query", Method: MethodGET}},
		Schema: testExtensionSchema(),
	}
	result := ValidateDiscoveryExtension(ext)
	assert.True(t, result.Valid, "errors: %v", result.Errors)

	ext.Schema = map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"missingField"},
	}
	result = ValidateDiscoveryExtension(ext)
	assert.False(t, result.Valid)
}

func TestExtractDiscoveryInfo(t *testing.T) {
	payload := x402.PaymentPayload{
		X402Version: 2,
		Resource:    &x402.ResourceInfo{URL: "https://api.example.com/report"},
		Extensions: map[string]interface{}{
			ExtensionKey: DiscoveryExtension{
				Info:   DiscoveryInfo{Type: "http", Input: QueryInput{Type: "query", Method: MethodGET}},
				Schema: testExtensionSchema(),
			},
		},
	}
	payloadBytes, err := json.Marshal(payload)
	require.NoError(t, err)

	discovered, err := ExtractDiscoveryInfo(payloadBytes, true)
	require.NoError(t, err)
	require.NotNil(t, discovered)
	assert.Equal(t, "https://api.example.com/report", discovered.ResourceURL)
	assert.Equal(t, "GET", discovered.Method)
	assert.Equal(t, 2, discovered.X402Version)

	// No extension: not discoverable, not an error.
	plain, err := json.Marshal(x402.PaymentPayload{X402Version: 2})
	require.NoError(t, err)
	discovered, err = ExtractDiscoveryInfo(plain, true)
	require.NoError(t, err)
	assert.Nil(t, discovered)

	// V1 payloads have no extensions.
	v1, err := json.Marshal(map[string]interface{}{"x402Version": 1})
	require.NoError(t, err)
	discovered, err = ExtractDiscoveryInfo(v1, true)
	require.NoError(t, err)
	assert.Nil(t, discovered)
}

type fakeTransport struct{ method string }

func (f fakeTransport) TransportMethod() string { return f.method }

func TestEnrichDeclaration(t *testing.T) {
	ext := DiscoveryExtension{
		Info: DiscoveryInfo{Type: "http", Input: QueryInput{Type: "query"}},
		Schema: map[string]interface{}{
			"properties": map[string]interface{}{
				"input": map[string]interface{}{
					"required": []string{"type"},
				},
			},
		},
	}

	enriched := ResourceServerExtension.EnrichDeclaration(ext, fakeTransport{method: "GET"})
	result, ok := enriched.(DiscoveryExtension)
	require.True(t, ok)
	input, ok := result.Info.Input.(QueryInput)
	require.True(t, ok)
	assert.Equal(t, MethodGET, input.Method)

	required := result.Schema["properties"].(map[string]interface{})["input"].(map[string]interface{})["required"].([]string)
	assert.Contains(t, required, "method")

	// Non-discovery declarations pass through.
	passthrough := ResourceServerExtension.EnrichDeclaration("something", fakeTransport{method: "GET"})
	assert.Equal(t, "something", passthrough)
}
