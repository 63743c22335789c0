// Package xrp implements the exact payment scheme for the XRP Ledger.
// Payments are native XRP denominated in drops. The ledger is consumed
// through the narrow LedgerClient capability interface; no XRPL driver is
// bundled.
package xrp
