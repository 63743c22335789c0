package x402

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// jsonUnmarshalStrictEnough decodes JSON rejecting trailing bytes. Field
// strictness is handled by the per-field validators; unknown fields are
// allowed so extensions can round-trip.
func jsonUnmarshalStrictEnough(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

// EncodePaymentHeader encodes a payment payload for the X-PAYMENT header.
func EncodePaymentHeader(payload PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader decodes an X-PAYMENT header into the raw JSON bytes.
// Both standard and URL-safe base64 alphabets are accepted; anything else
// fails as invalid_payload.
func DecodePaymentHeader(header string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(header)
		if err != nil {
			return nil, NewPaymentError(ErrInvalidPayload, "header is not valid base64")
		}
	}
	if !json.Valid(data) {
		return nil, NewPaymentError(ErrInvalidPayload, "header does not contain valid JSON")
	}
	return data, nil
}

// DecodePaymentPayload decodes an X-PAYMENT header into a canonical payload.
func DecodePaymentPayload(header string) (PaymentPayload, error) {
	data, err := DecodePaymentHeader(header)
	if err != nil {
		return PaymentPayload{}, err
	}
	var payload PaymentPayload
	if err := jsonUnmarshalStrictEnough(data, &payload); err != nil {
		return PaymentPayload{}, NewPaymentError(ErrInvalidPayload, err.Error())
	}
	if err := ValidatePaymentPayload(payload); err != nil {
		return PaymentPayload{}, NewPaymentError(ErrInvalidPayload, err.Error())
	}
	return payload, nil
}

// EncodeSettleHeader encodes a settlement receipt for X-PAYMENT-RESPONSE.
func EncodeSettleHeader(response SettleResponse) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettleHeader decodes an X-PAYMENT-RESPONSE header.
func DecodeSettleHeader(header string) (*SettleResponse, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("invalid settle header encoding: %w", err)
	}
	var response SettleResponse
	if err := jsonUnmarshalStrictEnough(data, &response); err != nil {
		return nil, fmt.Errorf("invalid settle header JSON: %w", err)
	}
	return &response, nil
}

// CanonicalJSON serializes a value with lexicographically sorted keys at
// every level. Signed structures (fee quotes, offers, receipts) sign over
// this form so signatures survive re-serialization.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// UseNumber keeps integers as their literal digits through the round
	// trip; float64 would corrupt values above 2^53.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}
}
