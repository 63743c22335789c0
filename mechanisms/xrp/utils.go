package xrp

import (
	"crypto/sha256"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"
)

// xrplAlphabet is the base58 dictionary used by XRPL addresses. It differs
// from Bitcoin's ordering.
var xrplAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

// X-address payload prefixes.
var (
	xAddressPrefixMainnet = []byte{0x05, 0x44}
	xAddressPrefixTestnet = []byte{0x04, 0x93}
)

// classicAddressPrefix tags an account ID payload.
const classicAddressPrefix = 0x00

// ParseDrops parses a non-negative drops amount. Drops are integral; any
// sign, decimal point, or non-digit rejects.
func ParseDrops(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty drops amount")
	}
	var drops uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid drops amount: %s", s)
		}
		d := uint64(c - '0')
		if drops > (math.MaxUint64-d)/10 {
			return 0, fmt.Errorf("drops amount overflows: %s", s)
		}
		drops = drops*10 + d
	}
	return drops, nil
}

// ParseXRPAmount converts a decimal XRP amount ("0.5") to drops.
func ParseXRPAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > 6 {
		return 0, fmt.Errorf("XRP amount has more than 6 decimal places: %s", s)
	}
	frac += strings.Repeat("0", 6-len(frac))
	if whole == "" {
		whole = "0"
	}
	combined := whole + frac
	amount, ok := new(big.Int).SetString(combined, 10)
	if !ok || amount.Sign() < 0 {
		return 0, fmt.Errorf("invalid XRP amount: %s", s)
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("XRP amount overflows: %s", s)
	}
	return amount.Uint64(), nil
}

// IsXAddress reports whether an address uses the packed X-address format.
func IsXAddress(address string) bool {
	return strings.HasPrefix(address, "X") || strings.HasPrefix(address, "T")
}

// DecodeXAddress unpacks an X-address into its classic address and optional
// destination tag.
func DecodeXAddress(address string) (string, *uint32, error) {
	payload, err := decodeBase58Check(address)
	if err != nil {
		return "", nil, fmt.Errorf("invalid X-address: %w", err)
	}
	if len(payload) != 31 {
		return "", nil, fmt.Errorf("invalid X-address payload length: %d", len(payload))
	}
	prefix := payload[:2]
	if string(prefix) != string(xAddressPrefixMainnet) && string(prefix) != string(xAddressPrefixTestnet) {
		return "", nil, fmt.Errorf("unrecognized X-address prefix")
	}

	var accountID [20]byte
	copy(accountID[:], payload[2:22])
	classic := EncodeClassicAddress(accountID)

	flag := payload[22]
	switch flag {
	case 0:
		return classic, nil, nil
	case 1:
		// Tag is 64 bits little-endian; only 32-bit tags are defined.
		tag := uint32(payload[23]) | uint32(payload[24])<<8 | uint32(payload[25])<<16 | uint32(payload[26])<<24
		for _, b := range payload[27:31] {
			if b != 0 {
				return "", nil, fmt.Errorf("64-bit destination tags are not supported")
			}
		}
		return classic, &tag, nil
	default:
		return "", nil, fmt.Errorf("invalid X-address tag flag: %d", flag)
	}
}

// EncodeClassicAddress encodes a 20-byte account ID as a classic r-address.
func EncodeClassicAddress(accountID [20]byte) string {
	payload := append([]byte{classicAddressPrefix}, accountID[:]...)
	return encodeBase58Check(payload)
}

// DecodeClassicAddress decodes a classic r-address to its account ID.
func DecodeClassicAddress(address string) ([20]byte, error) {
	var accountID [20]byte
	payload, err := decodeBase58Check(address)
	if err != nil {
		return accountID, fmt.Errorf("invalid address: %w", err)
	}
	if len(payload) != 21 || payload[0] != classicAddressPrefix {
		return accountID, fmt.Errorf("invalid address payload")
	}
	copy(accountID[:], payload[1:])
	return accountID, nil
}

// ResolveDestination normalizes a payTo value to a classic address plus
// optional destination tag, accepting both classic and X-address forms.
func ResolveDestination(payTo string) (string, *uint32, error) {
	if IsXAddress(payTo) {
		return DecodeXAddress(payTo)
	}
	if _, err := DecodeClassicAddress(payTo); err != nil {
		return "", nil, err
	}
	return payTo, nil, nil
}

func encodeBase58Check(payload []byte) string {
	checksum := doubleSha256(payload)
	return base58.EncodeAlphabet(append(payload, checksum[:4]...), xrplAlphabet)
}

func decodeBase58Check(s string) ([]byte, error) {
	raw, err := base58.DecodeAlphabet(s, xrplAlphabet)
	if err != nil {
		return nil, err
	}
	if len(raw) < 5 {
		return nil, fmt.Errorf("too short")
	}
	payload, checksum := raw[:len(raw)-4], raw[len(raw)-4:]
	expected := doubleSha256(payload)
	if string(checksum) != string(expected[:4]) {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return payload, nil
}

func doubleSha256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
