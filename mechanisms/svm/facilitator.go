package svm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402labs/x402-go"
)

// ExactSvmFacilitator implements x402.SchemeNetworkFacilitator for SVM exact
// payments. Verification is structural plus a signed simulation; settlement
// adds the fee-payer signature, submits the transaction, and waits for
// confirmation.
type ExactSvmFacilitator struct {
	signer FacilitatorSvmSigner
}

// NewExactSvmFacilitator creates a facilitator mechanism backed by the given
// signer.
func NewExactSvmFacilitator(signer FacilitatorSvmSigner) *ExactSvmFacilitator {
	return &ExactSvmFacilitator{signer: signer}
}

// Scheme returns the scheme identifier.
func (f *ExactSvmFacilitator) Scheme() string {
	return SchemeExact
}

// CaipFamily returns the network family this facilitator serves.
func (f *ExactSvmFacilitator) CaipFamily() string {
	return CaipFamilySVM
}

// GetExtra advertises a fee payer address for the network. Random selection
// spreads load across the available keypairs.
func (f *ExactSvmFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	if len(addresses) == 0 {
		return nil
	}
	return map[string]interface{}{
		"feePayer": addresses[rand.Intn(len(addresses))].String(),
	}
}

// GetSigners returns the fee payer addresses available on the network.
func (f *ExactSvmFacilitator) GetSigners(network x402.Network) []string {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}

// Verify checks the payment transaction without submitting it: instruction
// layout, compute budget bounds, transfer destination and amount, fee payer
// custody, and finally a signed simulation.
func (f *ExactSvmFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	scheme, network := payload.SchemeNetwork()
	if scheme != SchemeExact || requirements.Scheme != SchemeExact {
		return invalid(x402.ErrUnsupportedScheme, ""), nil
	}
	if !network.Match(requirements.Network) {
		return invalid(x402.ErrNetworkMismatch, ""), nil
	}
	networkStr := string(requirements.Network)

	feePayerStr, ok := "", false
	if requirements.Extra != nil {
		feePayerStr, ok = requirements.Extra["feePayer"].(string)
	}
	if !ok || feePayerStr == "" {
		return invalid(ErrMissingFeePayer, ""), nil
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return invalid(ErrMissingFeePayer, ""), nil
	}

	signerAddresses := f.GetSigners(requirements.Network)
	if !contains(signerAddresses, feePayerStr) {
		return invalid(ErrFeePayerNotManaged, ""), nil
	}

	svmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return invalid(ErrInvalidTransaction, ""), nil
	}
	tx, err := DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return invalid(ErrTransactionDecode, ""), nil
	}

	requiredAmount, err := strconv.ParseUint(requirements.AtomicAmount(), 10, 64)
	if err != nil {
		return invalid(x402.ErrInvalidPaymentRequirements, ""), nil
	}

	instructions := tx.Message.Instructions
	isSwig := IsSwigTransaction(tx)
	if isSwig {
		parsed, err := ParseSwigTransaction(tx)
		if err != nil {
			return invalid(ErrInvalidTransaction, ""), nil
		}
		instructions = parsed.Instructions
	}

	if len(instructions) != 3 && len(instructions) != 4 {
		return invalid(ErrInstructionsLength, ""), nil
	}

	if err := f.verifyComputeLimitInstruction(tx, instructions[0]); err != nil {
		return invalid(err.Error(), ""), nil
	}
	if err := f.verifyComputePriceInstruction(tx, instructions[1]); err != nil {
		return invalid(err.Error(), ""), nil
	}

	payer, err := tokenPayerFromInstructions(tx, instructions)
	if err != nil {
		return invalid(ErrNoTransferInstruction, ""), nil
	}

	if len(instructions) == 4 {
		if err := f.verifyCreateATAInstruction(tx, instructions[2], requirements); err != nil {
			return invalid(err.Error(), payer), nil
		}
	}

	transfer := instructions[len(instructions)-1]
	if err := f.verifyTransferInstruction(tx, transfer, requirements, requiredAmount, signerAddresses); err != nil {
		return invalid(err.Error(), payer), nil
	}

	if err := f.signer.SignTransaction(ctx, tx, feePayer, networkStr); err != nil {
		return invalid(ErrSigningFailed, payer), nil
	}

	// Simulation is the final gate: it catches everything structural checks
	// cannot, such as insufficient balance and closed accounts.
	if sim, ok := f.signer.(SwigSimulator); isSwig && ok {
		result, err := sim.SimulateSwigTransaction(ctx, tx, networkStr)
		if err != nil {
			return invalid(ErrSimulationFailed, payer), nil
		}
		if err := VerifySwigSimulation(result, requiredAmount); err != nil {
			return invalid(err.Error(), payer), nil
		}
	} else if err := f.signer.SimulateTransaction(ctx, tx, networkStr); err != nil {
		return invalid(ErrSimulationFailed, payer), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle verifies the payment, then signs as fee payer, submits the
// transaction, and waits for confirmation. The transaction signature is the
// settlement receipt.
func (f *ExactSvmFacilitator) Settle(
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
	payer := verifyResp.Payer
	networkStr := string(requirements.Network)

	svmPayload, _ := PayloadFromMap(payload.Payload)
	tx, err := DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return nil, fmt.Errorf("failed to decode verified transaction: %w", err)
	}

	feePayerStr, _ := requirements.Extra["feePayer"].(string)
	expectedFeePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrMissingFeePayer,
			Payer:       payer,
			Network:     requirements.Network,
		}, nil
	}
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(expectedFeePayer) {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrFeePayerMismatch,
			Payer:       payer,
			Network:     requirements.Network,
		}, nil
	}

	if err := f.signer.SignTransaction(ctx, tx, expectedFeePayer, networkStr); err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrSigningFailed,
			Payer:       payer,
			Network:     requirements.Network,
		}, nil
	}

	signature, err := f.signer.SendTransaction(ctx, tx, networkStr)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ErrTransactionFailed,
			Payer:       payer,
			Network:     requirements.Network,
		}, nil
	}

	if err := f.signer.ConfirmTransaction(ctx, signature, networkStr); err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrConfirmationFailed,
			Payer:       payer,
			Transaction: signature.String(),
			Network:     requirements.Network,
		}, nil
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: signature.String(),
		Network:     requirements.Network,
		Payer:       payer,
	}, nil
}

func (f *ExactSvmFacilitator) verifyComputeLimitInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID, err := programID(tx, inst)
	if err != nil || !progID.Equals(solana.ComputeBudget) {
		return errors.New(ErrComputeLimitInstruction)
	}
	// SetComputeUnitLimit discriminator.
	if len(inst.Data) < 1 || inst.Data[0] != 2 {
		return errors.New(ErrComputeLimitInstruction)
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return errors.New(ErrComputeLimitInstruction)
	}
	if _, err := computebudget.DecodeInstruction(accounts, inst.Data); err != nil {
		return errors.New(ErrComputeLimitInstruction)
	}
	return nil
}

func (f *ExactSvmFacilitator) verifyComputePriceInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID, err := programID(tx, inst)
	if err != nil || !progID.Equals(solana.ComputeBudget) {
		return errors.New(ErrComputePriceInstruction)
	}
	// SetComputeUnitPrice discriminator.
	if len(inst.Data) < 1 || inst.Data[0] != 3 {
		return errors.New(ErrComputePriceInstruction)
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return errors.New(ErrComputePriceInstruction)
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return errors.New(ErrComputePriceInstruction)
	}
	priceInst, ok := decoded.Impl.(*computebudget.SetComputeUnitPrice)
	if !ok {
		return errors.New(ErrComputePriceInstruction)
	}
	// An uncapped price would let a client spend the facilitator's lamports.
	if priceInst.MicroLamports > MaxComputeUnitPriceMicrolamports {
		return errors.New(ErrComputePriceTooHigh)
	}
	return nil
}

// verifyCreateATAInstruction checks the optional third instruction: it must
// create exactly the destination associated token account for the required
// recipient and mint.
func (f *ExactSvmFacilitator) verifyCreateATAInstruction(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirements,
) error {
	progID, err := programID(tx, inst)
	if err != nil || !progID.Equals(solana.SPLAssociatedTokenAccountProgramID) {
		return errors.New(ErrCreateATAInstruction)
	}

	// Create account order: payer, ata, wallet, mint, system, token program.
	if len(inst.Accounts) < 4 {
		return errors.New(ErrCreateATAInstruction)
	}
	keys := make([]solana.PublicKey, 4)
	for i := 0; i < 4; i++ {
		idx := int(inst.Accounts[i])
		if idx >= len(tx.Message.AccountKeys) {
			return errors.New(ErrCreateATAInstruction)
		}
		keys[i] = tx.Message.AccountKeys[idx]
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return errors.New(ErrRecipientMismatch)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return errors.New(ErrMintMismatch)
	}
	expectedATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return errors.New(ErrRecipientMismatch)
	}

	if !keys[1].Equals(expectedATA) || !keys[2].Equals(payToPubkey) || !keys[3].Equals(mintPubkey) {
		return errors.New(ErrCreateATAInstruction)
	}
	return nil
}

func (f *ExactSvmFacilitator) verifyTransferInstruction(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirements,
	requiredAmount uint64,
	signerAddresses []string,
) error {
	progID, err := programID(tx, inst)
	if err != nil || (!progID.Equals(solana.TokenProgramID) && !progID.Equals(solana.Token2022ProgramID)) {
		return errors.New(ErrNoTransferInstruction)
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil || len(accounts) < 4 {
		return errors.New(ErrNoTransferInstruction)
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return errors.New(ErrNoTransferInstruction)
	}
	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return errors.New(ErrNoTransferInstruction)
	}

	// The facilitator must never sign away its own tokens. TransferChecked
	// account order: source, mint, destination, authority.
	authority := accounts[3].PublicKey.String()
	if contains(signerAddresses, authority) {
		return errors.New(ErrFeePayerTransferringFunds)
	}

	if accounts[1].PublicKey.String() != requirements.Asset {
		return errors.New(ErrMintMismatch)
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return errors.New(ErrRecipientMismatch)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return errors.New(ErrMintMismatch)
	}
	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return errors.New(ErrRecipientMismatch)
	}
	if !transferChecked.GetDestinationAccount().PublicKey.Equals(expectedDestATA) {
		return errors.New(ErrRecipientMismatch)
	}

	if transferChecked.Amount == nil || *transferChecked.Amount < requiredAmount {
		return errors.New(ErrAmountInsufficient)
	}
	return nil
}

func programID(tx *solana.Transaction, inst solana.CompiledInstruction) (solana.PublicKey, error) {
	if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
		return solana.PublicKey{}, fmt.Errorf("program id index out of range")
	}
	return tx.Message.AccountKeys[inst.ProgramIDIndex], nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func invalid(reason, payer string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}
