package eip2612gassponsor

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// ExtractInfo pulls the client-populated permit data out of a payload's
// extensions map. Returns nil when the extension is absent or still carries
// only the server-declared info.
func ExtractInfo(extensions map[string]interface{}) (*Info, error) {
	if extensions == nil {
		return nil, nil
	}
	extRaw, ok := extensions[ExtensionKey]
	if !ok {
		return nil, nil
	}

	extJSON, err := json.Marshal(extRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s extension: %w", ExtensionKey, err)
	}
	var ext Extension
	if err := json.Unmarshal(extJSON, &ext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s extension: %w", ExtensionKey, err)
	}

	infoJSON, err := json.Marshal(ext.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s info: %w", ExtensionKey, err)
	}
	var info Info
	if err := json.Unmarshal(infoJSON, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s info: %w", ExtensionKey, err)
	}

	if info.From == "" || info.Asset == "" || info.Spender == "" ||
		info.Amount == "" || info.Nonce == "" || info.Deadline == "" ||
		info.Signature == "" || info.Version == "" {
		return nil, nil
	}
	return &info, nil
}

// ExtractInfoFromPayloadBytes extracts the permit data from raw payment
// payload JSON.
func ExtractInfoFromPayloadBytes(payloadBytes []byte) (*Info, error) {
	var payload struct {
		Extensions map[string]interface{} `json:"extensions"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return ExtractInfo(payload.Extensions)
}

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
	hexPattern     = regexp.MustCompile(`^0x[a-fA-F0-9]+$`)
	versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// ValidateInfo reports whether the permit data is well-formed.
func ValidateInfo(info *Info) bool {
	return addressPattern.MatchString(info.From) &&
		addressPattern.MatchString(info.Asset) &&
		addressPattern.MatchString(info.Spender) &&
		numericPattern.MatchString(info.Amount) &&
		numericPattern.MatchString(info.Nonce) &&
		numericPattern.MatchString(info.Deadline) &&
		hexPattern.MatchString(info.Signature) &&
		versionPattern.MatchString(info.Version)
}
