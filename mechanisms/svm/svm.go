// Package svm implements the exact payment scheme for Solana networks using
// SPL token TransferChecked instructions. Clients build and partially sign
// the payment transaction with the facilitator as fee payer; the facilitator
// verifies it structurally, signs the remaining slot, simulates, and settles
// by submitting the transaction. Swig program-wallet payments are supported
// through an embedded-instruction sub-verifier. Legacy v1 network names
// (solana, solana-devnet, solana-testnet) are served through thin wrappers
// over the canonical CAIP-2 mechanisms.
package svm
