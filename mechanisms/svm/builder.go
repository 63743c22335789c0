package svm

import (
	x402 "github.com/x402labs/x402-go"
)

// V1Networks lists the legacy v1 SVM network names this mechanism serves.
var V1Networks = []string{
	SolanaMainnetV1,
	SolanaDevnetV1,
	SolanaTestnetV1,
}

// SvmClientConfig configures NewSvmClient.
type SvmClientConfig struct {
	// Signer creates and signs payment transactions as the token owner.
	Signer ClientSvmSigner
	// PaymentRequirementsSelector overrides the default selection (optional).
	PaymentRequirementsSelector x402.PaymentRequirementsSelector
	// Policies gate which requirements the client will pay (optional).
	Policies []x402.PaymentPolicy
	// ClientConfig overrides the default RPC endpoint (optional).
	ClientConfig *ClientConfig
}

// NewSvmClient creates an x402 client configured for SVM payments: the V2
// mechanism under the solana:* wildcard plus the legacy v1 network names.
func NewSvmClient(config SvmClientConfig) *x402.X402Client {
	opts := []x402.ClientOption{}

	if config.PaymentRequirementsSelector != nil {
		opts = append(opts, x402.WithPaymentSelector(config.PaymentRequirementsSelector))
	}
	for _, policy := range config.Policies {
		opts = append(opts, x402.WithPolicy(policy))
	}

	client := x402.NewClient(opts...)

	client.RegisterScheme(x402.Network(CaipFamilySVM), NewExactSvmClient(config.Signer, config.ClientConfig))

	clientV1 := NewExactSvmClientV1(config.Signer, config.ClientConfig)
	for _, network := range V1Networks {
		client.RegisterSchemeV1(x402.Network(network), clientV1)
	}

	return client
}

// RegisterFacilitator registers the SVM mechanisms with a facilitator: the
// V2 mechanism under the solana:* wildcard and the v1 mechanism under the
// legacy network names.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer FacilitatorSvmSigner) *x402.X402Facilitator {
	facilitator.Register(x402.Network(CaipFamilySVM), NewExactSvmFacilitator(signer))

	facilitatorV1 := NewExactSvmFacilitatorV1(signer)
	for _, network := range V1Networks {
		facilitator.RegisterV1(x402.Network(network), facilitatorV1)
	}
	return facilitator
}

// ServiceOptions returns resource-service options registering the SVM scheme
// service for the given networks (all configured CAIP-2 networks when none
// are named).
func ServiceOptions(networks ...string) []x402.ResourceServiceOption {
	service := NewExactSvmService()
	if len(networks) == 0 {
		networks = []string{SolanaMainnetCAIP2, SolanaDevnetCAIP2, SolanaTestnetCAIP2}
	}
	opts := make([]x402.ResourceServiceOption, 0, len(networks))
	for _, network := range networks {
		if IsValidNetwork(network) {
			opts = append(opts, x402.WithSchemeService(x402.Network(network), service))
		}
	}
	return opts
}
