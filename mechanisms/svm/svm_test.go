package svm

import (
	"context"
	"fmt"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402labs/x402-go"
)

// mockSvmSigner is a scriptable FacilitatorSvmSigner. Structural verification
// never needs real signatures, so SignTransaction is a no-op.
type mockSvmSigner struct {
	feePayers  []solana.PublicKey
	simErr     error
	sendErr    error
	confirmErr error
	signature  solana.Signature
	sendCalls  int
}

func (m *mockSvmSigner) GetAddresses(ctx context.Context, network string) []solana.PublicKey {
	return m.feePayers
}

func (m *mockSvmSigner) SignTransaction(ctx context.Context, tx *solana.Transaction, feePayer solana.PublicKey, network string) error {
	return nil
}

func (m *mockSvmSigner) SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error {
	return m.simErr
}

func (m *mockSvmSigner) SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error) {
	m.sendCalls++
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	return m.signature, nil
}

func (m *mockSvmSigner) ConfirmTransaction(ctx context.Context, signature solana.Signature, network string) error {
	return m.confirmErr
}

// payment describes a transaction to build for a test case.
type payment struct {
	owner    solana.PublicKey
	feePayer solana.PublicKey
	mint     solana.PublicKey
	payTo    solana.PublicKey
	amount   uint64
	price    uint64

	dropComputeLimit bool
	extraTransfers   int
	destOverride     *solana.PublicKey
}

func paymentTx(t *testing.T, p payment) *solana.Transaction {
	t.Helper()

	sourceATA, _, err := solana.FindAssociatedTokenAddress(p.owner, p.mint)
	require.NoError(t, err)
	dest, _, err := solana.FindAssociatedTokenAddress(p.payTo, p.mint)
	require.NoError(t, err)
	if p.destOverride != nil {
		dest = *p.destOverride
	}

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(ComputeUnitLimitTransfer).
		ValidateAndBuild()
	require.NoError(t, err)

	price := p.price
	if price == 0 {
		price = DefaultComputeUnitPriceMicrolamports
	}
	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(price).
		ValidateAndBuild()
	require.NoError(t, err)

	builder := solana.NewTransactionBuilder()
	if !p.dropComputeLimit {
		builder.AddInstruction(cuLimit)
	}
	builder.AddInstruction(cuPrice)
	for i := 0; i <= p.extraTransfers; i++ {
		transfer, err := token.NewTransferCheckedInstructionBuilder().
			SetAmount(p.amount).
			SetDecimals(uint8(DefaultDecimals)).
			SetSourceAccount(sourceATA).
			SetMintAccount(p.mint).
			SetDestinationAccount(dest).
			SetOwnerAccount(p.owner).
			ValidateAndBuild()
		require.NoError(t, err)
		builder.AddInstruction(transfer)
	}

	tx, err := builder.
		SetRecentBlockHash(solana.Hash(p.mint)).
		SetFeePayer(p.feePayer).
		Build()
	require.NoError(t, err)
	return tx
}

func paymentPayload(t *testing.T, tx *solana.Transaction, requirements x402.PaymentRequirements) x402.PaymentPayload {
	t.Helper()
	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)
	return x402.PaymentPayload{
		X402Version: 2,
		Payload:     (&ExactSvmPayload{Transaction: encoded}).ToMap(),
		Accepted:    requirements,
	}
}

func svmRequirements(payTo solana.PublicKey, feePayer solana.PublicKey) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           x402.Network(SolanaDevnetCAIP2),
		Asset:             USDCDevnetAddress,
		Amount:            "1000",
		PayTo:             payTo.String(),
		MaxTimeoutSeconds: 60,
		Extra:             map[string]interface{}{"feePayer": feePayer.String()},
	}
}

type verifyFixture struct {
	owner       *solana.Wallet
	payTo       *solana.Wallet
	feePayer    *solana.Wallet
	mint        solana.PublicKey
	signer      *mockSvmSigner
	facilitator *ExactSvmFacilitator
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()
	f := &verifyFixture{
		owner:    solana.NewWallet(),
		payTo:    solana.NewWallet(),
		feePayer: solana.NewWallet(),
		mint:     solana.MustPublicKeyFromBase58(USDCDevnetAddress),
	}
	f.signer = &mockSvmSigner{feePayers: []solana.PublicKey{f.feePayer.PublicKey()}}
	f.facilitator = NewExactSvmFacilitator(f.signer)
	return f
}

func (f *verifyFixture) basePayment() payment {
	return payment{
		owner:    f.owner.PublicKey(),
		feePayer: f.feePayer.PublicKey(),
		mint:     f.mint,
		payTo:    f.payTo.PublicKey(),
		amount:   1000,
	}
}

func TestFacilitatorVerifyValidTransaction(t *testing.T) {
	f := newVerifyFixture(t)
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())
	payload := paymentPayload(t, paymentTx(t, f.basePayment()), requirements)

	resp, err := f.facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, resp.IsValid, "reason: %s", resp.InvalidReason)
	assert.Equal(t, f.owner.PublicKey().String(), resp.Payer)
}

func TestFacilitatorVerifyRejectsBadLayouts(t *testing.T) {
	f := newVerifyFixture(t)
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())

	tests := []struct {
		name   string
		mutate func(p *payment)
		reason string
	}{
		{
			name:   "two instructions",
			mutate: func(p *payment) { p.dropComputeLimit = true },
			reason: ErrInstructionsLength,
		},
		{
			name:   "five instructions",
			mutate: func(p *payment) { p.extraTransfers = 2 },
			reason: ErrInstructionsLength,
		},
		{
			name:   "compute price above cap",
			mutate: func(p *payment) { p.price = MaxComputeUnitPriceMicrolamports + 1 },
			reason: ErrComputePriceTooHigh,
		},
		{
			name:   "amount below required",
			mutate: func(p *payment) { p.amount = 999 },
			reason: ErrAmountInsufficient,
		},
		{
			name: "wrong destination account",
			mutate: func(p *payment) {
				other := solana.NewWallet().PublicKey()
				ata, _, err := solana.FindAssociatedTokenAddress(other, p.mint)
				require.NoError(t, err)
				p.destOverride = &ata
			},
			reason: ErrRecipientMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.basePayment()
			tt.mutate(&p)
			payload := paymentPayload(t, paymentTx(t, p), requirements)

			resp, err := f.facilitator.Verify(context.Background(), payload, requirements)
			require.NoError(t, err)
			assert.False(t, resp.IsValid)
			assert.Equal(t, tt.reason, resp.InvalidReason)
		})
	}
}

func TestFacilitatorVerifyMintMismatch(t *testing.T) {
	f := newVerifyFixture(t)
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())

	p := f.basePayment()
	p.mint = solana.NewWallet().PublicKey()
	payload := paymentPayload(t, paymentTx(t, p), requirements)

	resp, err := f.facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrMintMismatch, resp.InvalidReason)
}

func TestFacilitatorVerifyFeePayerRules(t *testing.T) {
	f := newVerifyFixture(t)
	payload := paymentPayload(t, paymentTx(t, f.basePayment()),
		svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey()))

	// No fee payer declared at all.
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())
	requirements.Extra = nil
	resp, err := f.facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.Equal(t, ErrMissingFeePayer, resp.InvalidReason)

	// A fee payer the facilitator does not hold keys for.
	stranger := solana.NewWallet().PublicKey()
	resp, err = f.facilitator.Verify(context.Background(), payload,
		svmRequirements(f.payTo.PublicKey(), stranger))
	require.NoError(t, err)
	assert.Equal(t, ErrFeePayerNotManaged, resp.InvalidReason)
}

func TestFacilitatorVerifyFeePayerCannotMoveOwnFunds(t *testing.T) {
	f := newVerifyFixture(t)
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())

	// The transfer authority is the facilitator's own fee payer key.
	p := f.basePayment()
	p.owner = f.feePayer.PublicKey()
	payload := paymentPayload(t, paymentTx(t, p), requirements)

	resp, err := f.facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrFeePayerTransferringFunds, resp.InvalidReason)
}

func TestFacilitatorVerifySimulationGate(t *testing.T) {
	f := newVerifyFixture(t)
	f.signer.simErr = fmt.Errorf("insufficient lamports")
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())
	payload := paymentPayload(t, paymentTx(t, f.basePayment()), requirements)

	resp, err := f.facilitator.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Equal(t, ErrSimulationFailed, resp.InvalidReason)
	assert.Equal(t, f.owner.PublicKey().String(), resp.Payer)
}

func TestFacilitatorSettle(t *testing.T) {
	f := newVerifyFixture(t)
	f.signer.signature = solana.Signature{1, 2, 3}
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())
	payload := paymentPayload(t, paymentTx(t, f.basePayment()), requirements)

	resp, err := f.facilitator.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, f.signer.signature.String(), resp.Transaction)
	assert.Equal(t, f.owner.PublicKey().String(), resp.Payer)
	assert.Equal(t, 1, f.signer.sendCalls)
}

func TestFacilitatorSettleFeePayerMismatch(t *testing.T) {
	f := newVerifyFixture(t)

	// The requirement names a managed fee payer, but the transaction was
	// built around a different one.
	other := solana.NewWallet()
	p := f.basePayment()
	p.feePayer = other.PublicKey()
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())
	payload := paymentPayload(t, paymentTx(t, p), requirements)

	resp, err := f.facilitator.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrFeePayerMismatch, resp.ErrorReason)
	assert.Equal(t, 0, f.signer.sendCalls)
}

func TestFacilitatorSettleSendFailure(t *testing.T) {
	f := newVerifyFixture(t)
	f.signer.sendErr = fmt.Errorf("blockhash not found")
	requirements := svmRequirements(f.payTo.PublicKey(), f.feePayer.PublicKey())
	payload := paymentPayload(t, paymentTx(t, f.basePayment()), requirements)

	resp, err := f.facilitator.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, x402.ErrTransactionFailed, resp.ErrorReason)
}

func TestTransactionCodecRoundTrip(t *testing.T) {
	f := newVerifyFixture(t)
	tx := paymentTx(t, f.basePayment())

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)
	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	assert.Equal(t, tx.Message.AccountKeys, decoded.Message.AccountKeys)
	assert.Len(t, decoded.Message.Instructions, 3)

	_, err = DecodeTransaction("not base64!")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount  string
		want    uint64
		wantErr bool
	}{
		{"0.01", 10000, false},
		{"1", 1000000, false},
		{"1.5", 1500000, false},
		{"0.000001", 1, false},
		{"0.0000001", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.amount, DefaultDecimals)
		if tt.wantErr {
			assert.Error(t, err, tt.amount)
			continue
		}
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got, tt.amount)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.01", FormatAmount(10000, 6))
	assert.Equal(t, "1", FormatAmount(1000000, 6))
	assert.Equal(t, "1.5", FormatAmount(1500000, 6))
}

func TestServiceParsePrice(t *testing.T) {
	service := NewExactSvmService()
	network := x402.Network(SolanaDevnetCAIP2)

	got, err := service.ParsePrice("$0.01", network)
	require.NoError(t, err)
	assert.Equal(t, "10000", got.Amount)
	assert.Equal(t, USDCDevnetAddress, got.Asset)

	got, err = service.ParsePrice("0.05 USDC", network)
	require.NoError(t, err)
	assert.Equal(t, "50000", got.Amount)

	got, err = service.ParsePrice(map[string]interface{}{"amount": "12345"}, network)
	require.NoError(t, err)
	assert.Equal(t, "12345", got.Amount)
	assert.Equal(t, USDCDevnetAddress, got.Asset)

	_, err = service.ParsePrice("$0.01", "solana:unknown")
	assert.Error(t, err)
}

func TestServiceEnhancePaymentRequirements(t *testing.T) {
	service := NewExactSvmService()
	feePayer := solana.NewWallet().PublicKey().String()

	requirements := x402.PaymentRequirements{
		Scheme:  SchemeExact,
		Network: x402.Network(SolanaDevnetCAIP2),
		Amount:  "0.01",
	}
	kind := x402.SupportedKind{
		X402Version: 2,
		Scheme:      SchemeExact,
		Network:     x402.Network(SolanaDevnetCAIP2),
		Extra:       map[string]interface{}{"feePayer": feePayer},
	}

	enhanced, err := service.EnhancePaymentRequirements(context.Background(), requirements, kind, nil)
	require.NoError(t, err)
	assert.Equal(t, USDCDevnetAddress, enhanced.Asset)
	assert.Equal(t, "10000", enhanced.Amount)
	assert.Equal(t, feePayer, enhanced.Extra["feePayer"])
}

func TestNetworkHelpers(t *testing.T) {
	assert.True(t, IsValidNetwork(SolanaDevnetCAIP2))
	assert.True(t, IsValidNetwork(SolanaDevnetV1))
	assert.False(t, IsValidNetwork("solana:unknown"))

	assert.Equal(t, SolanaDevnetCAIP2, CanonicalNetwork(SolanaDevnetV1))
	assert.Equal(t, SolanaMainnetV1, LegacyNetworkName(SolanaMainnetCAIP2))

	info, err := GetAssetInfo(SolanaMainnetCAIP2, "usdc")
	require.NoError(t, err)
	assert.Equal(t, USDCMainnetAddress, info.Address)

	_, err = GetAssetInfo(SolanaMainnetCAIP2, "not-a-mint!")
	assert.Error(t, err)
}
