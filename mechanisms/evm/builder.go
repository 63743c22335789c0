package evm

import (
	x402 "github.com/x402labs/x402-go"
)

// V1Networks lists the legacy v1 EVM network names this mechanism serves.
var V1Networks = []string{
	"base",
	"base-sepolia",
}

// EvmClientConfig configures NewEvmClient.
type EvmClientConfig struct {
	// Signer creates and signs payment payloads.
	Signer ClientEvmSigner
	// PaymentRequirementsSelector overrides the default selection (optional).
	PaymentRequirementsSelector x402.PaymentRequirementsSelector
	// Policies gate which requirements the client will pay (optional).
	Policies []x402.PaymentPolicy
}

// NewEvmClient creates an x402 client configured for EVM payments: the V2
// mechanism under the eip155:* wildcard plus the legacy v1 network names.
func NewEvmClient(config EvmClientConfig) *x402.X402Client {
	opts := []x402.ClientOption{}

	if config.PaymentRequirementsSelector != nil {
		opts = append(opts, x402.WithPaymentSelector(config.PaymentRequirementsSelector))
	}
	for _, policy := range config.Policies {
		opts = append(opts, x402.WithPolicy(policy))
	}

	client := x402.NewClient(opts...)

	client.RegisterScheme(x402.Network(CaipFamilyEVM), NewExactEvmClient(config.Signer))

	clientV1 := NewExactEvmClientV1(config.Signer)
	for _, network := range V1Networks {
		client.RegisterSchemeV1(x402.Network(network), clientV1)
	}

	return client
}

// RegisterFacilitator registers the EVM mechanisms with a facilitator: the
// V2 mechanism under the eip155:* wildcard and the v1 mechanism under the
// legacy network names.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer FacilitatorEvmSigner) *x402.X402Facilitator {
	facilitator.Register(x402.Network(CaipFamilyEVM), NewExactEvmFacilitator(signer))

	facilitatorV1 := NewExactEvmFacilitatorV1(signer)
	for _, network := range V1Networks {
		facilitator.RegisterV1(x402.Network(network), facilitatorV1)
	}
	return facilitator
}

// ServiceOptions returns resource-service options registering the EVM scheme
// service for the given networks (all configured CAIP-2 networks when none
// are named).
func ServiceOptions(networks ...string) []x402.ResourceServiceOption {
	service := NewExactEvmService()
	if len(networks) == 0 {
		networks = []string{"eip155:8453", "eip155:84532"}
	}
	opts := make([]x402.ResourceServiceOption, 0, len(networks))
	for _, network := range networks {
		if IsValidNetwork(network) {
			opts = append(opts, x402.WithSchemeService(x402.Network(network), service))
		}
	}
	return opts
}
