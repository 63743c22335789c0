// Package lightning implements the exact payment scheme for the Bitcoin
// Lightning Network. The payer settles an invoice off-protocol and presents
// the BOLT11 string (plus an optional invoice identifier) as proof;
// verification is structural, and settlement confirms payment through the
// InvoiceLookup port.
package lightning
