package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// VerifyERC6492Signature checks a smart-wallet signature through the
// UniversalSigValidator singleton. The validator handles both deployed
// EIP-1271 wallets and counterfactual ERC-6492 envelopes: for the latter it
// simulates the wallet's factory deployment inside the eth_call before asking
// isValidSignature, so nothing is committed on chain.
//
// A validator answer of false comes back as (false, nil); an error means the
// call itself could not be made.
func VerifyERC6492Signature(
	ctx context.Context,
	signer FacilitatorEvmSigner,
	signerAddress string,
	hash [32]byte,
	signature []byte,
) (bool, error) {
	result, err := signer.ReadContract(
		ctx,
		UniversalSigValidatorAddress,
		UniversalSigValidatorABI,
		"isValidSig",
		common.HexToAddress(signerAddress),
		hash,
		signature,
	)
	if err != nil {
		return false, fmt.Errorf("signature validator call failed: %w", err)
	}
	valid, ok := result.(bool)
	return valid && ok, nil
}
