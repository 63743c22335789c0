package types

import (
	"encoding/json"
	"fmt"
)

// DetectVersion determines the protocol version of a raw payment payload or
// payment requirements document. V2 payloads carry an "accepted" object and
// V2 requirements an "amount" field; V1 payloads carry scheme/network at the
// top level and V1 requirements a "maxAmountRequired" field. An explicit
// x402Version field always wins.
func DetectVersion(data []byte) (int, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	if raw, ok := probe["x402Version"]; ok {
		var version int
		if err := json.Unmarshal(raw, &version); err != nil {
			return 0, fmt.Errorf("invalid x402Version: %w", err)
		}
		if version != 1 && version != 2 {
			return 0, fmt.Errorf("unsupported x402Version: %d", version)
		}
		return version, nil
	}

	// Structural detection for requirements documents, which do not carry
	// a version field of their own.
	if _, ok := probe["accepted"]; ok {
		return 2, nil
	}
	if _, ok := probe["amount"]; ok {
		return 2, nil
	}
	if _, ok := probe["maxAmountRequired"]; ok {
		return 1, nil
	}

	return 0, fmt.Errorf("unable to detect x402 version")
}
