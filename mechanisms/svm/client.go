package svm

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402labs/x402-go"
)

// ExactSvmClient implements x402.SchemeNetworkClient for exact SVM payments.
// It builds a TransferChecked transaction with the facilitator as fee payer,
// signs it as the token owner, and leaves the fee-payer signature slot
// blank.
type ExactSvmClient struct {
	signer ClientSvmSigner
	config *ClientConfig
}

// NewExactSvmClient creates a client mechanism backed by the given signer.
// An optional ClientConfig overrides the network's default RPC endpoint.
func NewExactSvmClient(signer ClientSvmSigner, config ...*ClientConfig) *ExactSvmClient {
	c := &ExactSvmClient{signer: signer}
	if len(config) > 0 {
		c.config = config[0]
	}
	return c
}

// Scheme returns the scheme identifier.
func (c *ExactSvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds and partially signs the payment transaction.
// The destination associated token account is created in the same
// transaction when it does not exist yet.
func (c *ExactSvmClient) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	feePayerAddr, ok := "", false
	if requirements.Extra != nil {
		feePayerAddr, ok = requirements.Extra["feePayer"].(string)
	}
	if !ok || feePayerAddr == "" {
		return x402.PartialPaymentPayload{}, fmt.Errorf("feePayer is required in payment requirements extra for Solana payments")
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerAddr)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid feePayer address: %w", err)
	}

	asset := requirements.Asset
	if asset == "" {
		asset = config.DefaultAsset.Address
	}
	mintPubkey, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid asset address: %w", err)
	}
	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	amount, err := strconv.ParseUint(requirements.AtomicAmount(), 10, 64)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %w", err)
	}

	rpcURL := config.RPCURL
	if c.config != nil && c.config.RPCURL != "" {
		rpcURL = c.config.RPCURL
	}
	rpcClient := rpc.New(rpcURL)

	mintAccount, err := rpcClient.GetAccountInfo(ctx, mintPubkey)
	if err != nil || mintAccount == nil || mintAccount.Value == nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get mint account %s: %w", asset, err)
	}
	tokenProgramID := mintAccount.Value.Owner
	if tokenProgramID != solana.TokenProgramID && tokenProgramID != solana.Token2022ProgramID {
		return x402.PartialPaymentPayload{}, fmt.Errorf("asset %s was not created by a known token program", asset)
	}
	var mintData token.Mint
	if err := bin.NewBinDecoder(mintAccount.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to decode mint data: %w", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(c.signer.Address(), mintPubkey)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to derive source token account: %w", err)
	}
	destinationATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	sourceAccount, err := rpcClient.GetAccountInfo(ctx, sourceATA)
	if err != nil || sourceAccount == nil || sourceAccount.Value == nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("%s: source token account does not exist for %s", ErrATANotFound, c.signer.Address())
	}

	createDestination := false
	destAccount, err := rpcClient.GetAccountInfo(ctx, destinationATA)
	if err != nil || destAccount == nil || destAccount.Value == nil {
		createDestination = true
	}

	latestBlockhash, err := rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	computeLimit := ComputeUnitLimitTransfer
	if createDestination {
		computeLimit = ComputeUnitLimitTransferWithCreate
	}
	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(computeLimit).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}
	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(DefaultComputeUnitPriceMicrolamports).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build compute price instruction: %w", err)
	}
	transferIx, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(mintData.Decimals).
		SetSourceAccount(sourceATA).
		SetMintAccount(mintPubkey).
		SetDestinationAccount(destinationATA).
		SetOwnerAccount(c.signer.Address()).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	builder := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice)
	if createDestination {
		// The fee payer funds the destination account's rent.
		builder.AddInstruction(
			associatedtokenaccount.NewCreateInstruction(feePayer, payToPubkey, mintPubkey).Build(),
		)
	}
	tx, err := builder.
		AddInstruction(transferIx).
		SetRecentBlockHash(latestBlockhash.Value.Blockhash).
		SetFeePayer(feePayer).
		Build()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	base64Tx, err := EncodeTransaction(tx)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	svmPayload := &ExactSvmPayload{Transaction: base64Tx}
	return x402.PartialPaymentPayload{
		X402Version: 2,
		Payload:     svmPayload.ToMap(),
	}, nil
}
