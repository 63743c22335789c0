// Package evm implements the exact payment scheme for EVM networks using
// EIP-3009 TransferWithAuthorization. Clients sign authorizations off-chain;
// the facilitator verifies them by local EIP-712 recovery plus on-chain
// nonce and balance checks, and settles by submitting the transfer from its
// own key. Legacy v1 network names (base, base-sepolia) are served through
// thin wrappers over the canonical CAIP-2 mechanisms.
package evm
