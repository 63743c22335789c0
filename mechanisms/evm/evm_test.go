package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402labs/x402-go"
)

// keySigner signs EIP-712 digests with a real secp256k1 key so recovery
// paths are exercised end to end.
type keySigner struct {
	key *ecdsa.PrivateKey
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &keySigner{key: key}
}

func (s *keySigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

func (s *keySigner) SignTypedData(
	ctx context.Context,
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

type mockFacilitatorSigner struct {
	balances   map[string]*big.Int
	noncesUsed map[string]bool
	writeErr   error
	txHash     string
	txSuccess  bool
}

func (m *mockFacilitatorSigner) GetAddresses() []string {
	return []string{"0x00000000000000000000000000000000000Fee1"}
}

func (m *mockFacilitatorSigner) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	if functionName == FunctionAuthorizationState {
		nonce := args[1].([32]byte)
		return m.noncesUsed[BytesToHex(nonce[:])], nil
	}
	return nil, fmt.Errorf("unexpected read: %s", functionName)
}

func (m *mockFacilitatorSigner) VerifyTypedData(ctx context.Context, address string, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}, signature []byte) (bool, error) {
	return true, nil
}

func (m *mockFacilitatorSigner) WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error) {
	if m.writeErr != nil {
		return "", m.writeErr
	}
	return m.txHash, nil
}

func (m *mockFacilitatorSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error) {
	status := uint64(TxStatusFailed)
	if m.txSuccess {
		status = TxStatusSuccess
	}
	return &TransactionReceipt{Status: status, BlockNumber: 12345, TxHash: txHash}, nil
}

func (m *mockFacilitatorSigner) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if balance, ok := m.balances[strings.ToLower(address)]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}

func (m *mockFacilitatorSigner) GetChainID(ctx context.Context) (*big.Int, error) {
	return ChainIDBaseSepolia, nil
}

func testRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           "eip155:84532",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:            "10000",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 300,
	}
}

func signedPayload(t *testing.T, signer *keySigner, requirements x402.PaymentRequirements) x402.PaymentPayload {
	t.Helper()
	client := NewExactEvmClient(signer)
	partial, err := client.CreatePaymentPayload(context.Background(), requirements)
	require.NoError(t, err)
	return x402.PaymentPayload{
		X402Version: 2,
		Payload:     partial.Payload,
		Accepted:    requirements,
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{"0.01", 6, "10000", false},
		{"1", 6, "1000000", false},
		{"1.5", 6, "1500000", false},
		{"0.000001", 6, "1", false},
		{"0.0000001", 6, "", true},
		{"abc", 6, "", true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.amount, tt.decimals)
		if tt.wantErr {
			assert.Error(t, err, tt.amount)
			continue
		}
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got.String(), tt.amount)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.01", FormatAmount(big.NewInt(10000), 6))
	assert.Equal(t, "1", FormatAmount(big.NewInt(1000000), 6))
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1500000), 6))
}

func TestParsePrice(t *testing.T) {
	service := NewExactEvmService()

	got, err := service.ParsePrice("$0.01", "eip155:84532")
	require.NoError(t, err)
	assert.Equal(t, "10000", got.Amount)
	assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", got.Asset)

	got, err = service.ParsePrice("1000000", "eip155:84532")
	require.NoError(t, err)
	assert.Equal(t, "1000000", got.Amount)

	_, err = service.ParsePrice("$0.01", "eip155:999")
	assert.Error(t, err)
}

func TestCreateNonce(t *testing.T) {
	nonce, err := CreateNonce()
	require.NoError(t, err)
	raw, err := HexToBytes(nonce)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := CreateNonce()
	require.NoError(t, err)
	assert.NotEqual(t, nonce, other)
}

func TestClientCreatePaymentPayload(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()

	payload := signedPayload(t, signer, requirements)

	evmPayload, err := PayloadFromMap(payload.Payload)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), evmPayload.Authorization.From)
	assert.Equal(t, requirements.PayTo, evmPayload.Authorization.To)
	assert.Equal(t, "10000", evmPayload.Authorization.Value)
	assert.NotEmpty(t, evmPayload.Signature)

	validAfter, _ := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	now := time.Now().Unix()
	assert.LessOrEqual(t, validAfter.Int64(), now)
	assert.Greater(t, validBefore.Int64(), now)
	assert.Equal(t, int64(300+ValidAfterSkewSeconds), validBefore.Int64()-validAfter.Int64())
}

func TestRecoverEIP3009Signer(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	evmPayload, err := PayloadFromMap(payload.Payload)
	require.NoError(t, err)
	sig, err := HexToBytes(evmPayload.Signature)
	require.NoError(t, err)

	recovered, err := RecoverEIP3009Signer(
		evmPayload.Authorization, sig, ChainIDBaseSepolia,
		requirements.Asset, "USDC", "2",
	)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestFacilitatorVerify(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	facilitatorSigner := &mockFacilitatorSigner{
		balances:   map[string]*big.Int{strings.ToLower(signer.Address()): big.NewInt(1000000)},
		noncesUsed: map[string]bool{},
	}
	facilitator := NewExactEvmFacilitator(facilitatorSigner)

	resp, err := facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, signer.Address(), resp.Payer)
}

func TestFacilitatorVerifyAmountInsufficient(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	requirements.Amount = "5000"
	payload := signedPayload(t, signer, requirements)

	// Server raises the price after the client signed for less.
	requirements.Amount = "10000"

	facilitator := NewExactEvmFacilitator(&mockFacilitatorSigner{noncesUsed: map[string]bool{}})
	resp, err := facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrAmountInsufficient, resp.InvalidReason)
}

func TestFacilitatorVerifyRecipientMismatch(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	requirements.PayTo = "0x1111111111111111111111111111111111111111"

	facilitator := NewExactEvmFacilitator(&mockFacilitatorSigner{noncesUsed: map[string]bool{}})
	resp, err := facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrRecipientMismatch, resp.InvalidReason)
}

func TestFacilitatorVerifyUsedNonce(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	evmPayload, err := PayloadFromMap(payload.Payload)
	require.NoError(t, err)

	facilitatorSigner := &mockFacilitatorSigner{
		balances:   map[string]*big.Int{strings.ToLower(signer.Address()): big.NewInt(1000000)},
		noncesUsed: map[string]bool{evmPayload.Authorization.Nonce: true},
	}
	facilitator := NewExactEvmFacilitator(facilitatorSigner)

	resp, err := facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402.ErrAuthorizationUsed, resp.InvalidReason)
}

func TestFacilitatorVerifyInsufficientBalance(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	facilitatorSigner := &mockFacilitatorSigner{
		balances:   map[string]*big.Int{strings.ToLower(signer.Address()): big.NewInt(100)},
		noncesUsed: map[string]bool{},
	}
	facilitator := NewExactEvmFacilitator(facilitatorSigner)

	resp, err := facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, x402.ErrInsufficientFunds, resp.InvalidReason)
}

func TestFacilitatorVerifyTamperedAuthorization(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	// Inflate the signed value; recovery must not yield the claimed payer.
	auth := payload.Payload["authorization"].(map[string]interface{})
	auth["value"] = "999999999"

	facilitatorSigner := &mockFacilitatorSigner{
		balances:   map[string]*big.Int{strings.ToLower(signer.Address()): big.NewInt(10000000000)},
		noncesUsed: map[string]bool{},
	}
	facilitator := NewExactEvmFacilitator(facilitatorSigner)

	resp, err := facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrInvalidSignature, resp.InvalidReason)
}

func TestFacilitatorSettle(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	facilitatorSigner := &mockFacilitatorSigner{
		balances:   map[string]*big.Int{strings.ToLower(signer.Address()): big.NewInt(1000000)},
		noncesUsed: map[string]bool{},
		txHash:     "0xabc123",
		txSuccess:  true,
	}
	facilitator := NewExactEvmFacilitator(facilitatorSigner)

	resp, err := facilitator.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xabc123", resp.Transaction)
	assert.Equal(t, x402.Network("eip155:84532"), resp.Network)
	assert.Equal(t, signer.Address(), resp.Payer)
}

func TestFacilitatorSettleRevertClassification(t *testing.T) {
	signer := newKeySigner(t)
	requirements := testRequirements()
	payload := signedPayload(t, signer, requirements)

	facilitatorSigner := &mockFacilitatorSigner{
		balances:   map[string]*big.Int{strings.ToLower(signer.Address()): big.NewInt(1000000)},
		noncesUsed: map[string]bool{},
		txHash:     "0xdead",
		txSuccess:  false,
	}
	facilitator := NewExactEvmFacilitator(facilitatorSigner)

	resp, err := facilitator.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, x402.ErrTransactionFailed, resp.ErrorReason)
}

func TestCanonicalNetwork(t *testing.T) {
	assert.Equal(t, "eip155:8453", CanonicalNetwork("base"))
	assert.Equal(t, "eip155:84532", CanonicalNetwork("base-sepolia"))
	assert.Equal(t, "eip155:8453", CanonicalNetwork("eip155:8453"))
	assert.Equal(t, "base", LegacyNetworkName("eip155:8453"))
}

func TestPayloadMapRoundTrip(t *testing.T) {
	payload := &ExactEIP3009Payload{
		Signature: "0xdeadbeef",
		Authorization: ExactEIP3009Authorization{
			From:        "0x1111111111111111111111111111111111111111",
			To:          "0x2222222222222222222222222222222222222222",
			Value:       "10000",
			ValidAfter:  "100",
			ValidBefore: "400",
			Nonce:       "0x" + strings.Repeat("ab", 32),
			Version:     "2",
		},
	}

	decoded, err := PayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	_, err = PayloadFromMap(map[string]interface{}{"signature": "0x00"})
	assert.Error(t, err)
}
