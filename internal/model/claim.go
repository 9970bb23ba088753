package model

// ClaimToken is the opaque claim hash read from a tag.
// Only the extract package constructs values of this type from untrusted input.
type ClaimToken string

// String returns the token text
func (t ClaimToken) String() string {
	return string(t)
}

// ClaimStatus is the lifecycle position of a claim attempt
type ClaimStatus string

const (
	ClaimNone      ClaimStatus = "none"      // Nothing submitted yet
	ClaimPending   ClaimStatus = "pending"   // Accepted by the ledger, not yet settled
	ClaimConfirmed ClaimStatus = "confirmed" // Ledger confirmed the claim
	ClaimRejected  ClaimStatus = "rejected"  // Ledger (or timeout policy) refused the claim
)

// RejectReason explains a rejected claim
type RejectReason string

const (
	RejectAlreadyClaimed RejectReason = "already_claimed"
	RejectUnauthorized   RejectReason = "unauthorized"
	RejectNetworkFailure RejectReason = "network_failure"
	RejectTimeout        RejectReason = "timeout"
)

// ClaimResult is the tagged outcome of a claim attempt
type ClaimResult struct {
	Status ClaimStatus  `json:"status" yaml:"status"`
	ItemID uint64       `json:"item_id,omitempty" yaml:"item_id,omitempty"` // Set when confirmed
	Item   *Item        `json:"item,omitempty" yaml:"item,omitempty"`       // Metadata of the confirmed item
	Reason RejectReason `json:"reason,omitempty" yaml:"reason,omitempty"`   // Set when rejected
	TxID   string       `json:"tx_id,omitempty" yaml:"tx_id,omitempty"`     // Ledger transaction reference
}

// Pending returns a result for an accepted, unsettled submission
func Pending() ClaimResult {
	return ClaimResult{Status: ClaimPending}
}

// Confirmed returns a confirmed result for the given item
func Confirmed(itemID uint64, item *Item) ClaimResult {
	return ClaimResult{Status: ClaimConfirmed, ItemID: itemID, Item: item}
}

// Rejected returns a rejected result with the given reason
func Rejected(reason RejectReason) ClaimResult {
	return ClaimResult{Status: ClaimRejected, Reason: reason}
}

// IsSettled reports whether the result is final
func (r ClaimResult) IsSettled() bool {
	return r.Status == ClaimConfirmed || r.Status == ClaimRejected
}

// IsConfirmed reports whether the ledger confirmed the claim
func (r ClaimResult) IsConfirmed() bool {
	return r.Status == ClaimConfirmed
}

// IsRejected reports whether the claim was refused
func (r ClaimResult) IsRejected() bool {
	return r.Status == ClaimRejected
}

// StatusOrNone treats the zero value as "nothing submitted"
func (r ClaimResult) StatusOrNone() ClaimStatus {
	if r.Status == "" {
		return ClaimNone
	}
	return r.Status
}
