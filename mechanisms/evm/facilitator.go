package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402labs/x402-go"
)

// ExactEvmFacilitator implements x402.SchemeNetworkFacilitator for EVM exact
// payments. Verification recovers the EIP-712 signer locally and checks
// nonce and balance on-chain; settlement submits transferWithAuthorization
// from the facilitator's key.
type ExactEvmFacilitator struct {
	signer FacilitatorEvmSigner
}

// NewExactEvmFacilitator creates a facilitator mechanism backed by the given
// signer.
func NewExactEvmFacilitator(signer FacilitatorEvmSigner) *ExactEvmFacilitator {
	return &ExactEvmFacilitator{signer: signer}
}

// Scheme returns the scheme identifier.
func (f *ExactEvmFacilitator) Scheme() string {
	return SchemeExact
}

// CaipFamily returns the network family this facilitator serves.
func (f *ExactEvmFacilitator) CaipFamily() string {
	return CaipFamilyEVM
}

// GetExtra returns nil; EVM kinds carry no facilitator-specific extra data.
func (f *ExactEvmFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns the facilitator's settlement addresses.
func (f *ExactEvmFacilitator) GetSigners(network x402.Network) []string {
	return f.signer.GetAddresses()
}

// Verify checks a payment payload against requirements without touching
// funds: structure, recipient, amount, validity window, signature recovery,
// nonce freshness, and payer balance.
func (f *ExactEvmFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	scheme, network := payload.SchemeNetwork()
	if scheme != SchemeExact {
		return invalid(x402.ErrUnsupportedScheme, ""), nil
	}
	if !network.Match(requirements.Network) {
		return invalid(x402.ErrNetworkMismatch, ""), nil
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return invalid(x402.ErrInvalidPayload, ""), nil
	}
	if evmPayload.Signature == "" {
		return invalid(ErrInvalidSignature, ""), nil
	}
	auth := evmPayload.Authorization

	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return invalid(x402.ErrInvalidNetwork, ""), nil
	}
	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return invalid(x402.ErrInvalidPaymentRequirements, ""), nil
	}

	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return invalid(ErrRecipientMismatch, auth.From), nil
	}

	authValue, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return invalid(x402.ErrInvalidPayload, auth.From), nil
	}
	requiredValue, ok := new(big.Int).SetString(requirements.AtomicAmount(), 10)
	if !ok {
		return invalid(x402.ErrInvalidPaymentRequirements, auth.From), nil
	}
	if authValue.Cmp(requiredValue) < 0 {
		return invalid(ErrAmountInsufficient, auth.From), nil
	}

	validAfter, ok1 := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, ok2 := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok1 || !ok2 {
		return invalid(x402.ErrInvalidPayload, auth.From), nil
	}
	now := big.NewInt(time.Now().Unix())
	if now.Cmp(validAfter) < 0 || now.Cmp(validBefore) > 0 {
		return invalid(ErrValidityWindow, auth.From), nil
	}

	tokenName, tokenVersion := domainFromRequirements(requirements, assetInfo, auth)

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil || len(signatureBytes) == 0 {
		return invalid(ErrInvalidSignature, auth.From), nil
	}

	payer := ""
	if len(signatureBytes) == 65 {
		recovered, err := RecoverEIP3009Signer(auth, signatureBytes, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
		if err == nil && strings.EqualFold(recovered, auth.From) {
			payer = recovered
		}
	}
	if payer == "" {
		// Not a matching EOA signature. Smart wallets sign via EIP-1271 or
		// counterfactually via ERC-6492; both validate through the universal
		// validator singleton.
		ok, err := f.verifySmartWalletSignature(ctx, auth, signatureBytes, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
		if err != nil || !ok {
			return invalid(ErrInvalidSignature, auth.From), nil
		}
		payer = auth.From
	}

	used, err := f.checkNonceUsed(ctx, auth.From, auth.Nonce, assetInfo.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to check authorization state: %w", err)
	}
	if used {
		return invalid(x402.ErrAuthorizationUsed, auth.From), nil
	}

	balance, err := f.signer.GetBalance(ctx, auth.From, assetInfo.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(authValue) < 0 {
		return invalid(x402.ErrInsufficientFunds, auth.From), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// verifySmartWalletSignature checks a non-EOA signature against the ERC-6492
// universal validator. The validator simulates any pending factory deployment
// and then runs EIP-1271 isValidSignature on the payer's wallet contract.
func (f *ExactEvmFacilitator) verifySmartWalletSignature(
	ctx context.Context,
	auth ExactEIP3009Authorization,
	signature []byte,
	chainID *big.Int,
	verifyingContract, tokenName, tokenVersion string,
) (bool, error) {
	digest, err := HashEIP3009Authorization(auth, chainID, verifyingContract, tokenName, tokenVersion)
	if err != nil {
		return false, err
	}
	var hash [32]byte
	copy(hash[:], digest)
	return VerifyERC6492Signature(ctx, f.signer, auth.From, hash, signature)
}

// Settle verifies the payment, then submits transferWithAuthorization and
// waits for inclusion. Reverts are classified by re-reading chain state.
func (f *ExactEvmFacilitator) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.SettleResponse, error) {
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.IsValid {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}

	evmPayload, _ := PayloadFromMap(payload.Payload)
	auth := evmPayload.Authorization

	networkStr := string(requirements.Network)
	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return nil, err
	}

	signatureBytes, _ := HexToBytes(evmPayload.Signature)

	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	nonceBytes, _ := HexToBytes(auth.Nonce)
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	var txHash string
	if len(signatureBytes) == 65 {
		var r, s [32]byte
		copy(r[:], signatureBytes[0:32])
		copy(s[:], signatureBytes[32:64])
		v := signatureBytes[64]
		if v < 27 {
			v += 27
		}
		txHash, err = f.signer.WriteContract(
			ctx,
			assetInfo.Address,
			TransferWithAuthorizationABI,
			FunctionTransferWithAuthorization,
			auth.From,
			auth.To,
			value,
			validAfter,
			validBefore,
			nonce,
			v,
			r,
			s,
		)
	} else {
		// Smart-wallet signatures go through the bytes overload.
		txHash, err = f.signer.WriteContract(
			ctx,
			assetInfo.Address,
			TransferWithAuthorizationBytesABI,
			FunctionTransferWithAuthorization,
			auth.From,
			auth.To,
			value,
			validAfter,
			validBefore,
			nonce,
			signatureBytes,
		)
	}
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: f.classifyRevert(ctx, auth, value, assetInfo.Address),
			Payer:       auth.From,
			Network:     requirements.Network,
		}, nil
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ErrTransactionTimeout,
			Payer:       auth.From,
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}
	if receipt.Status != TxStatusSuccess {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: f.classifyRevert(ctx, auth, value, assetInfo.Address),
			Payer:       auth.From,
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       auth.From,
	}, nil
}

// classifyRevert distinguishes the common transferWithAuthorization failure
// modes by re-reading chain state after the revert.
func (f *ExactEvmFacilitator) classifyRevert(ctx context.Context, auth ExactEIP3009Authorization, value *big.Int, tokenAddress string) string {
	if used, err := f.checkNonceUsed(ctx, auth.From, auth.Nonce, tokenAddress); err == nil && used {
		return x402.ErrAuthorizationUsed
	}
	if balance, err := f.signer.GetBalance(ctx, auth.From, tokenAddress); err == nil && balance.Cmp(value) < 0 {
		return x402.ErrInsufficientFunds
	}
	return x402.ErrTransactionFailed
}

func (f *ExactEvmFacilitator) checkNonceUsed(ctx context.Context, from string, nonce string, tokenAddress string) (bool, error) {
	nonceBytes, err := HexToBytes(nonce)
	if err != nil {
		return false, err
	}
	var nonceArr [32]byte
	copy(nonceArr[:], nonceBytes)

	result, err := f.signer.ReadContract(
		ctx,
		tokenAddress,
		AuthorizationStateABI,
		FunctionAuthorizationState,
		from,
		nonceArr,
	)
	if err != nil {
		return false, err
	}

	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from authorizationState")
	}
	return used, nil
}

// domainFromRequirements resolves the EIP-712 token name and version,
// preferring explicit values from requirements.extra, then the payload's
// carried version, then known token metadata.
func domainFromRequirements(requirements x402.PaymentRequirements, assetInfo *AssetInfo, auth ExactEIP3009Authorization) (string, string) {
	tokenName := assetInfo.Name
	tokenVersion := assetInfo.Version
	if auth.Version != "" {
		tokenVersion = auth.Version
	}
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}
	return tokenName, tokenVersion
}

func invalid(reason, payer string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}
