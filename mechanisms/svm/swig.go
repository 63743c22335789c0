package svm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// Swig program-wallet support. A Swig payment wraps the token transfer in a
// signV2 instruction: the wallet program re-executes the embedded compact
// instructions with the wallet PDA as authority. The facilitator flattens
// the transaction back into the regular instruction layout for structural
// checks, then relies on simulation for the wallet-level guarantees.
const (
	// SwigProgramAddress is the Swig wallet program.
	SwigProgramAddress = "swigypWHEksbC64pWKwah1WTeh9JXwx8H1rJHLdbQMB"

	// Secp256r1PrecompileAddress is the secp256r1 signature verification
	// precompile used by passkey-backed Swig roles.
	Secp256r1PrecompileAddress = "Secp256r1SigVerify1111111111111111111111111"

	// SwigSignV2Discriminator is the signV2 instruction discriminator.
	SwigSignV2Discriminator uint16 = 11

	// SwigVerifyMagic is the return value the wallet program must emit from
	// a successful payment authorization ("x402").
	SwigVerifyMagic uint32 = 0x78343032
)

// SwigCompactInstruction is a decoded compact instruction embedded in a Swig
// signV2 instruction payload. Indices reference the outer transaction's
// account key list.
type SwigCompactInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// DecodeSwigCompactInstructions parses the compact instructions embedded in
// the data payload of a Swig signV2 instruction.
//
// Outer instruction data layout:
//
//	[0..1]  discriminator         U16 LE
//	[2..3]  instructionPayloadLen U16 LE
//	[4..7]  roleId                U32 LE
//	[8..]   compact instructions  (instructionPayloadLen bytes)
//
// Each compact instruction:
//
//	[0]         programIDIndex U8
//	[1]         numAccounts    U8
//	[2..N+1]    accounts       []U8
//	[N+2..N+3]  dataLen        U16 LE
//	[N+4..]     data           raw bytes
func DecodeSwigCompactInstructions(data []byte) ([]SwigCompactInstruction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("swig instruction data too short: need ≥4 bytes, got %d", len(data))
	}

	payloadLen := int(binary.LittleEndian.Uint16(data[2:4]))
	startOffset := 8
	if len(data) < startOffset+payloadLen {
		return nil, fmt.Errorf("swig instruction data truncated: payload needs %d bytes but only %d available after offset %d",
			payloadLen, len(data)-startOffset, startOffset)
	}

	var results []SwigCompactInstruction
	offset := startOffset
	endOffset := startOffset + payloadLen

	for offset < endOffset {
		programIDIndex := data[offset]
		offset++

		if offset >= endOffset {
			break
		}
		numAccounts := int(data[offset])
		offset++

		if offset+numAccounts > endOffset {
			break
		}
		accounts := make([]uint8, numAccounts)
		copy(accounts, data[offset:offset+numAccounts])
		offset += numAccounts

		if offset+2 > endOffset {
			break
		}
		dataLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if offset+dataLen > endOffset {
			break
		}
		instrData := make([]byte, dataLen)
		copy(instrData, data[offset:offset+dataLen])
		offset += dataLen

		results = append(results, SwigCompactInstruction{
			ProgramIDIndex: programIDIndex,
			Accounts:       accounts,
			Data:           instrData,
		})
	}

	return results, nil
}

// IsSwigTransaction reports whether the transaction has the Swig layout:
// every instruction except the last is a compute budget or secp256r1
// precompile instruction, and the last is a Swig signV2 instruction.
func IsSwigTransaction(tx *solana.Transaction) bool {
	instructions := tx.Message.Instructions
	if len(instructions) == 0 {
		return false
	}

	secp256r1Pubkey := solana.MustPublicKeyFromBase58(Secp256r1PrecompileAddress)
	swigPubkey := solana.MustPublicKeyFromBase58(SwigProgramAddress)

	for i := 0; i < len(instructions)-1; i++ {
		if int(instructions[i].ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return false
		}
		progID := tx.Message.AccountKeys[instructions[i].ProgramIDIndex]
		if !progID.Equals(solana.ComputeBudget) && !progID.Equals(secp256r1Pubkey) {
			return false
		}
	}

	lastInst := instructions[len(instructions)-1]
	if int(lastInst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
		return false
	}
	progID := tx.Message.AccountKeys[lastInst.ProgramIDIndex]
	if !progID.Equals(swigPubkey) {
		return false
	}
	if len(lastInst.Data) < 2 {
		return false
	}
	return binary.LittleEndian.Uint16(lastInst.Data[0:2]) == SwigSignV2Discriminator
}

// ParseSwigResult holds the flattened instructions and the Swig PDA paying
// the transfer.
type ParseSwigResult struct {
	Instructions []solana.CompiledInstruction
	SwigPDA      string
}

// ParseSwigTransaction flattens a Swig transaction into the regular
// instruction layout: the outer compute budget instructions followed by the
// compact instructions embedded in signV2, with account indices widened to
// reference the outer key list. Secp256r1 precompile instructions are
// dropped; they only carry passkey signatures.
func ParseSwigTransaction(tx *solana.Transaction) (*ParseSwigResult, error) {
	instructions := tx.Message.Instructions
	if len(instructions) == 0 {
		return nil, errors.New("no instructions")
	}

	secp256r1Pubkey := solana.MustPublicKeyFromBase58(Secp256r1PrecompileAddress)

	var result []solana.CompiledInstruction
	for i := 0; i < len(instructions)-1; i++ {
		progID := tx.Message.AccountKeys[instructions[i].ProgramIDIndex]
		if !progID.Equals(secp256r1Pubkey) {
			result = append(result, instructions[i])
		}
	}

	signV2 := instructions[len(instructions)-1]

	// The signV2 instruction's first account is the Swig wallet PDA.
	if len(signV2.Accounts) < 1 || int(signV2.Accounts[0]) >= len(tx.Message.AccountKeys) {
		return nil, errors.New(ErrNoTransferInstruction)
	}
	swigPDA := tx.Message.AccountKeys[signV2.Accounts[0]].String()

	compactInstructions, err := DecodeSwigCompactInstructions(signV2.Data)
	if err != nil {
		return nil, err
	}

	for _, ci := range compactInstructions {
		accounts := make([]uint16, len(ci.Accounts))
		for j, a := range ci.Accounts {
			accounts[j] = uint16(a)
		}
		result = append(result, solana.CompiledInstruction{
			ProgramIDIndex: uint16(ci.ProgramIDIndex),
			Accounts:       accounts,
			Data:           ci.Data,
		})
	}

	return &ParseSwigResult{
		Instructions: result,
		SwigPDA:      swigPDA,
	}, nil
}

// SwigSimulation captures the simulated effects of a Swig payment that the
// structural checks cannot see.
type SwigSimulation struct {
	// ReturnData is the wallet program's return data.
	ReturnData []byte
	// WalletInvocations counts how many times the wallet program ran.
	WalletInvocations int
	// FeePayerLamportsDelta is the fee payer's lamport change with the
	// transaction fee already excluded.
	FeePayerLamportsDelta int64
	// DestinationTokenDelta is the destination token account's balance
	// increase.
	DestinationTokenDelta uint64
}

// SwigSimulator is an optional FacilitatorSvmSigner capability that exposes
// simulation effects for program-wallet payments.
type SwigSimulator interface {
	SimulateSwigTransaction(ctx context.Context, tx *solana.Transaction, network string) (*SwigSimulation, error)
}

// VerifySwigSimulation enforces the wallet-level payment guarantees: the
// wallet program authorized the payment (magic return value), ran exactly
// once, did not drain the fee payer, and the destination actually received
// at least the required amount.
func VerifySwigSimulation(sim *SwigSimulation, requiredAmount uint64) error {
	if len(sim.ReturnData) < 4 || binary.LittleEndian.Uint32(sim.ReturnData[0:4]) != SwigVerifyMagic {
		return errors.New(ErrSimulationFailed)
	}
	if sim.WalletInvocations != 1 {
		return errors.New(ErrSimulationFailed)
	}
	if sim.FeePayerLamportsDelta < 0 {
		return errors.New(ErrFeePayerTransferringFunds)
	}
	if sim.DestinationTokenDelta < requiredAmount {
		return errors.New(ErrAmountInsufficient)
	}
	return nil
}
