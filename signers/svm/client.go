// Package svm provides key- and callback-backed implementations of the
// client-side SVM signing capability.
package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	x402svm "github.com/x402labs/x402-go/mechanisms/svm"
)

// SignTransactionFunc signs a Solana transaction in place.
type SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) error

// ClientSigner implements x402svm.ClientSvmSigner through a signing
// callback, so keys can live in wallets or remote signers.
type ClientSigner struct {
	publicKey       solana.PublicKey
	signTransaction SignTransactionFunc
}

// NewClientSigner creates a client signer from a public key and signing
// callback.
func NewClientSigner(publicKey solana.PublicKey, signFunc SignTransactionFunc) (x402svm.ClientSvmSigner, error) {
	if publicKey == (solana.PublicKey{}) {
		return nil, fmt.Errorf("public key is required")
	}
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}
	return &ClientSigner{publicKey: publicKey, signTransaction: signFunc}, nil
}

// NewClientSignerFromPrivateKey creates a client signer from a
// base58-encoded private key held in memory.
func NewClientSignerFromPrivateKey(privateKeyBase58 string) (x402svm.ClientSvmSigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	signFunc := func(ctx context.Context, tx *solana.Transaction) error {
		return signTransactionWithPrivateKey(ctx, privateKey, tx)
	}
	return NewClientSigner(privateKey.PublicKey(), signFunc)
}

// Address returns the signer's public key.
func (s *ClientSigner) Address() solana.PublicKey {
	return s.publicKey
}

// SignTransaction adds the client's signature at its account index, leaving
// other signature slots untouched.
func (s *ClientSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return s.signTransaction(ctx, tx)
}

func signTransactionWithPrivateKey(_ context.Context, privateKey solana.PrivateKey, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	signature, err := privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	accountIndex, err := tx.GetAccountIndex(privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}
	if len(tx.Signatures) <= int(accountIndex) {
		newSignatures := make([]solana.Signature, accountIndex+1)
		copy(newSignatures, tx.Signatures)
		tx.Signatures = newSignatures
	}
	tx.Signatures[accountIndex] = signature
	return nil
}
