package offerreceipt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/mechanisms/evm"
)

// Signer produces signature envelopes over offers and receipts.
type Signer interface {
	Type() string
	SignOffer(ctx context.Context, offer Offer) (SignatureEnvelope, error)
	SignReceipt(ctx context.Context, receipt Receipt) (SignatureEnvelope, error)
}

// JWSSigner signs canonical JSON bodies as compact JWS. The sign function
// receives the JWS signing input (base64url header dot base64url payload)
// and returns the raw signature bytes for the declared algorithm.
type JWSSigner struct {
	KeyID     string
	Algorithm string
	Sign      func(ctx context.Context, signingInput []byte) ([]byte, error)
}

// Type returns the envelope type tag.
func (s *JWSSigner) Type() string {
	return SignatureTypeJWS
}

// SignOffer signs an offer.
func (s *JWSSigner) SignOffer(ctx context.Context, offer Offer) (SignatureEnvelope, error) {
	return s.sign(ctx, offer)
}

// SignReceipt signs a receipt.
func (s *JWSSigner) SignReceipt(ctx context.Context, receipt Receipt) (SignatureEnvelope, error) {
	return s.sign(ctx, receipt)
}

func (s *JWSSigner) sign(ctx context.Context, body interface{}) (SignatureEnvelope, error) {
	if s.Sign == nil {
		return SignatureEnvelope{}, fmt.Errorf("jws signer has no sign function")
	}
	payload, err := x402.CanonicalJSON(body)
	if err != nil {
		return SignatureEnvelope{}, fmt.Errorf("failed to canonicalize body: %w", err)
	}
	header, err := json.Marshal(map[string]string{
		"alg": s.Algorithm,
		"kid": s.KeyID,
	})
	if err != nil {
		return SignatureEnvelope{}, err
	}

	b64 := base64.RawURLEncoding
	signingInput := b64.EncodeToString(header) + "." + b64.EncodeToString(payload)
	signature, err := s.Sign(ctx, []byte(signingInput))
	if err != nil {
		return SignatureEnvelope{}, fmt.Errorf("jws signing failed: %w", err)
	}

	return SignatureEnvelope{
		Type: SignatureTypeJWS,
		JWS:  signingInput + "." + b64.EncodeToString(signature),
	}, nil
}

// VerifyJWS splits a compact JWS, checks the payload matches the expected
// body's canonical JSON, and hands signing input plus signature to the
// caller's verify function.
func VerifyJWS(jws string, body interface{}, verify func(signingInput, signature []byte) error) error {
	parts := strings.Split(jws, ".")
	if len(parts) != 3 {
		return fmt.Errorf("malformed compact JWS")
	}
	b64 := base64.RawURLEncoding
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("malformed JWS payload: %w", err)
	}
	expected, err := x402.CanonicalJSON(body)
	if err != nil {
		return err
	}
	if string(payload) != string(expected) {
		return fmt.Errorf("JWS payload does not match body")
	}
	signature, err := b64.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("malformed JWS signature: %w", err)
	}
	return verify([]byte(parts[0]+"."+parts[1]), signature)
}

// EIP-712 type definitions for offers and receipts.
var (
	OfferTypes = map[string][]evm.TypedDataField{
		"Offer": {
			{Name: "resource", Type: "string"},
			{Name: "scheme", Type: "string"},
			{Name: "network", Type: "string"},
			{Name: "asset", Type: "string"},
			{Name: "amount", Type: "string"},
			{Name: "payTo", Type: "string"},
			{Name: "nonce", Type: "string"},
			{Name: "expiresAt", Type: "uint256"},
		},
	}
	ReceiptTypes = map[string][]evm.TypedDataField{
		"Receipt": {
			{Name: "resource", Type: "string"},
			{Name: "network", Type: "string"},
			{Name: "payer", Type: "string"},
			{Name: "asset", Type: "string"},
			{Name: "amount", Type: "string"},
			{Name: "transaction", Type: "string"},
			{Name: "settledAt", Type: "uint256"},
		},
	}
)

// EIP712DomainName is the signing domain for offers and receipts.
const EIP712DomainName = "x402 Offer Receipt"

// EIP712DomainVersion is the signing domain version.
const EIP712DomainVersion = "1"

// ZeroVerifyingContract fills the domain's verifyingContract slot; offers and
// receipts are off-chain statements with no contract behind them.
const ZeroVerifyingContract = "0x0000000000000000000000000000000000000000"

// EIP712Signer signs offers and receipts as EIP-712 typed data. The sign
// function matches evm.ClientEvmSigner.SignTypedData so a mechanism signer
// plugs in directly.
type EIP712Signer struct {
	ChainID *big.Int
	Address string
	Sign    func(ctx context.Context, domain evm.TypedDataDomain, types map[string][]evm.TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// Type returns the envelope type tag.
func (s *EIP712Signer) Type() string {
	return SignatureTypeEIP712
}

func (s *EIP712Signer) domain() evm.TypedDataDomain {
	return evm.TypedDataDomain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainID:           s.ChainID,
		VerifyingContract: ZeroVerifyingContract,
	}
}

// SignOffer signs an offer.
func (s *EIP712Signer) SignOffer(ctx context.Context, offer Offer) (SignatureEnvelope, error) {
	return s.sign(ctx, "Offer", OfferTypes, offerMessage(offer))
}

// SignReceipt signs a receipt.
func (s *EIP712Signer) SignReceipt(ctx context.Context, receipt Receipt) (SignatureEnvelope, error) {
	return s.sign(ctx, "Receipt", ReceiptTypes, receiptMessage(receipt))
}

func (s *EIP712Signer) sign(
	ctx context.Context,
	primaryType string,
	types map[string][]evm.TypedDataField,
	message map[string]interface{},
) (SignatureEnvelope, error) {
	if s.Sign == nil {
		return SignatureEnvelope{}, fmt.Errorf("eip712 signer has no sign function")
	}
	signature, err := s.Sign(ctx, s.domain(), types, primaryType, message)
	if err != nil {
		return SignatureEnvelope{}, fmt.Errorf("eip712 signing failed: %w", err)
	}
	return SignatureEnvelope{
		Type:      SignatureTypeEIP712,
		Signature: "0x" + fmt.Sprintf("%x", signature),
		Signer:    s.Address,
		ChainID:   s.ChainID.String(),
	}, nil
}

func offerMessage(offer Offer) map[string]interface{} {
	return map[string]interface{}{
		"resource":  offer.Resource,
		"scheme":    offer.Scheme,
		"network":   offer.Network,
		"asset":     offer.Asset,
		"amount":    offer.Amount,
		"payTo":     offer.PayTo,
		"nonce":     offer.Nonce,
		"expiresAt": big.NewInt(offer.ExpiresAt),
	}
}

func receiptMessage(receipt Receipt) map[string]interface{} {
	return map[string]interface{}{
		"resource":    receipt.Resource,
		"network":     receipt.Network,
		"payer":       receipt.Payer,
		"asset":       receipt.Asset,
		"amount":      receipt.Amount,
		"transaction": receipt.Transaction,
		"settledAt":   big.NewInt(receipt.SettledAt),
	}
}

// RecoverOfferSigner recovers the address that EIP-712-signed an offer.
func RecoverOfferSigner(offer Offer, envelope SignatureEnvelope) (string, error) {
	return recoverSigner(envelope, "Offer", OfferTypes, offerMessage(offer))
}

// RecoverReceiptSigner recovers the address that EIP-712-signed a receipt.
func RecoverReceiptSigner(receipt Receipt, envelope SignatureEnvelope) (string, error) {
	return recoverSigner(envelope, "Receipt", ReceiptTypes, receiptMessage(receipt))
}

func recoverSigner(
	envelope SignatureEnvelope,
	primaryType string,
	types map[string][]evm.TypedDataField,
	message map[string]interface{},
) (string, error) {
	if envelope.Type != SignatureTypeEIP712 {
		return "", fmt.Errorf("envelope is not eip712")
	}
	chainID, ok := new(big.Int).SetString(envelope.ChainID, 10)
	if !ok {
		return "", fmt.Errorf("invalid chain id: %q", envelope.ChainID)
	}
	domain := evm.TypedDataDomain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainID:           chainID,
		VerifyingContract: ZeroVerifyingContract,
	}
	digest, err := evm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return "", err
	}
	signature, err := evm.HexToBytes(envelope.Signature)
	if err != nil || len(signature) != 65 {
		return "", fmt.Errorf("invalid signature")
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}
