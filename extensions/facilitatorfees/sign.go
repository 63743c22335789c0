package facilitatorfees

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	x402 "github.com/x402labs/x402-go"
)

// QuoteSigningBytes returns the canonical JSON a quote signature covers: the
// quote with its signature field absent, keys sorted lexicographically.
func QuoteSigningBytes(quote FeeQuote) ([]byte, error) {
	quote.Signature = nil
	return x402.CanonicalJSON(quote)
}

// SignQuoteEIP191 signs the quote in place with an EIP-191 personal-message
// signature. The sign function receives the personal-message digest and
// returns a 65-byte signature; a mechanism signer's raw-digest sign function
// plugs in here.
func SignQuoteEIP191(quote *FeeQuote, signerAddress string, sign func(digest []byte) ([]byte, error)) error {
	data, err := QuoteSigningBytes(*quote)
	if err != nil {
		return err
	}
	signature, err := sign(accounts.TextHash(data))
	if err != nil {
		return fmt.Errorf("failed to sign quote: %w", err)
	}
	quote.Signature = &QuoteSignature{
		Type:   SignatureTypeEIP191,
		Signer: signerAddress,
		Value:  "0x" + fmt.Sprintf("%x", signature),
	}
	return nil
}

// SignQuoteEd25519 signs the quote in place with an ed25519 signature over
// the canonical JSON. The signer identity is the base58 public key.
func SignQuoteEd25519(quote *FeeQuote, key ed25519.PrivateKey) error {
	data, err := QuoteSigningBytes(*quote)
	if err != nil {
		return err
	}
	signature := ed25519.Sign(key, data)
	quote.Signature = &QuoteSignature{
		Type:   SignatureTypeEd25519,
		Signer: base58.Encode(key.Public().(ed25519.PublicKey)),
		Value:  base58.Encode(signature),
	}
	return nil
}

// VerifyQuote checks the quote's expiry and signature. The signer recorded in
// the envelope must have produced the signature over the canonical JSON.
func VerifyQuote(quote FeeQuote, now time.Time) error {
	if IsExpired(quote, now) {
		return fmt.Errorf("quote %s expired", quote.QuoteID)
	}
	if quote.Signature == nil {
		return fmt.Errorf("quote %s is unsigned", quote.QuoteID)
	}

	data, err := QuoteSigningBytes(quote)
	if err != nil {
		return err
	}

	switch quote.Signature.Type {
	case SignatureTypeEIP191:
		return verifyEIP191(data, quote.Signature)
	case SignatureTypeEd25519:
		return verifyEd25519(data, quote.Signature)
	default:
		return fmt.Errorf("unknown quote signature type: %q", quote.Signature.Type)
	}
}

func verifyEIP191(data []byte, sig *QuoteSignature) error {
	signature, err := hex.DecodeString(strings.TrimPrefix(sig.Value, "0x"))
	if err != nil || len(signature) != 65 {
		return fmt.Errorf("malformed eip191 signature")
	}
	if signature[64] >= 27 {
		signature[64] -= 27
	}
	pubKey, err := crypto.SigToPub(accounts.TextHash(data), signature)
	if err != nil {
		return fmt.Errorf("failed to recover quote signer: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey).Hex()
	if !strings.EqualFold(recovered, sig.Signer) {
		return fmt.Errorf("quote signer mismatch: recovered %s", recovered)
	}
	return nil
}

func verifyEd25519(data []byte, sig *QuoteSignature) error {
	pubKey, err := base58.Decode(sig.Signer)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed ed25519 signer")
	}
	signature, err := base58.Decode(sig.Value)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("malformed ed25519 signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), data, signature) {
		return fmt.Errorf("ed25519 quote signature invalid")
	}
	return nil
}
