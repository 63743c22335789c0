package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/x402labs/x402-go"
)

// ExactEvmClient implements x402.SchemeNetworkClient for EVM exact payments.
// It signs EIP-3009 TransferWithAuthorization messages off-chain; no RPC
// connection is needed on the client side.
type ExactEvmClient struct {
	signer ClientEvmSigner
}

// NewExactEvmClient creates a client mechanism backed by the given signer.
func NewExactEvmClient(signer ClientEvmSigner) *ExactEvmClient {
	return &ExactEvmClient{signer: signer}
}

// Scheme returns the scheme identifier.
func (c *ExactEvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload signs a TransferWithAuthorization for the selected
// requirement. validAfter is backdated a few seconds against clock skew and
// validBefore follows the requirement's timeout.
func (c *ExactEvmClient) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	value, ok := new(big.Int).SetString(requirements.AtomicAmount(), 10)
	if !ok {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %s", requirements.AtomicAmount())
	}

	nonce, err := CreateNonce()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	timeout := requirements.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = x402.DefaultMaxTimeoutSeconds
	}
	now := time.Now().Unix()
	validAfter := big.NewInt(now - ValidAfterSkewSeconds)
	validBefore := big.NewInt(now + int64(timeout))

	// The EIP-712 domain comes from requirements.extra when the server set
	// it; otherwise fall back to the known token metadata.
	tokenName := assetInfo.Name
	tokenVersion := assetInfo.Version
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	authorization := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
		Version:     tokenVersion,
	}

	message, err := EIP3009Message(authorization)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}
	domain := EIP3009Domain(config.ChainID, assetInfo.Address, tokenName, tokenVersion)

	signature, err := c.signer.SignTypedData(ctx, domain, EIP3009Types, "TransferWithAuthorization", message)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	evmPayload := &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}

	return x402.PartialPaymentPayload{
		X402Version: 2,
		Payload:     evmPayload.ToMap(),
	}, nil
}
