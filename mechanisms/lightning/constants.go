package lightning

const (
	// SchemeExact is the scheme identifier for exact payments.
	SchemeExact = "exact"

	// CaipFamilyLightning is the wildcard network pattern served by this
	// mechanism.
	CaipFamilyLightning = "btc-lightning:*"

	// AssetBTC is the asset symbol; amounts are millisatoshis.
	AssetBTC = "BTC"

	// MsatPerSat converts satoshis to the atomic unit.
	MsatPerSat = 1000

	// Lightning network identifiers, colon form.
	LightningMainnetCAIP2 = "btc-lightning:mainnet"
	LightningSignetCAIP2  = "btc-lightning:signet"
)

// Verification and settlement failure reasons for the exact Lightning
// scheme.
const (
	ErrInvalidInvoice     = "invalid_exact_lightning_payload_invoice"
	ErrNetworkPrefix      = "invalid_exact_lightning_payload_network_prefix"
	ErrInvoiceNotSettled  = "invalid_exact_lightning_invoice_not_settled"
	ErrAmountInsufficient = "invalid_exact_lightning_amount_insufficient"
	ErrLookupFailed       = "lightning_invoice_lookup_failed"
)

// NetworkConfig is per-network configuration.
type NetworkConfig struct {
	Name string
	// Prefix is the BOLT11 human-readable part prefix for the network.
	Prefix string
}

// NetworkConfigs maps CAIP-2-style identifiers to configuration.
var NetworkConfigs = map[string]NetworkConfig{
	LightningMainnetCAIP2: {Name: "Lightning Mainnet", Prefix: "lnbc"},
	LightningSignetCAIP2:  {Name: "Lightning Signet", Prefix: "lntbs"},
}

// NetworkAliases maps hyphenated legacy identifiers to canonical colon
// form.
var NetworkAliases = map[string]string{
	"btc-lightning-mainnet": LightningMainnetCAIP2,
	"btc-lightning-signet":  LightningSignetCAIP2,
}

// CanonicalNetwork normalizes a network identifier, resolving aliases.
func CanonicalNetwork(network string) string {
	if canonical, ok := NetworkAliases[network]; ok {
		return canonical
	}
	return network
}
