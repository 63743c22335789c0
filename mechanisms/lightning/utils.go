package lightning

import (
	"fmt"
	"strings"
)

// bech32Charset is the data character set shared by bech32 and BOLT11.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// CheckInvoiceStructure performs the structural checks the protocol can do
// without a BOLT11 decoder: lowercase, "ln" prefix, a separator, and data
// characters drawn from the bech32 charset. It does not validate the
// invoice signature or amount.
func CheckInvoiceStructure(bolt11 string) error {
	if bolt11 == "" {
		return fmt.Errorf("empty invoice")
	}
	if bolt11 != strings.ToLower(bolt11) {
		return fmt.Errorf("invoice must be lowercase")
	}
	if !strings.HasPrefix(bolt11, "ln") {
		return fmt.Errorf("invoice must start with ln")
	}
	// The separator is the last '1'; the human-readable part precedes it.
	sep := strings.LastIndex(bolt11, "1")
	if sep < 2 || sep == len(bolt11)-1 {
		return fmt.Errorf("invoice has no data part")
	}
	for _, c := range bolt11[sep+1:] {
		if !strings.ContainsRune(bech32Charset, c) {
			return fmt.Errorf("invoice data contains invalid character %q", c)
		}
	}
	return nil
}

// CheckNetworkPrefix verifies the invoice's human-readable part matches the
// network. "lnbc" also prefixes "lnbcrt" (regtest); prefix matching here is
// a routing sanity check, not an authenticity check.
func CheckNetworkPrefix(bolt11 string, network string) error {
	config, ok := NetworkConfigs[CanonicalNetwork(network)]
	if !ok {
		return fmt.Errorf("unsupported Lightning network: %s", network)
	}
	if !strings.HasPrefix(bolt11, config.Prefix) {
		return fmt.Errorf("invoice prefix does not match network %s", network)
	}
	return nil
}
