package model

import "time"

// ResourceKind identifies what a pool resource is.
type ResourceKind string

const (
	ResourceKindPaymentCard    ResourceKind = "payment_card"
	ResourceKindContactAddress ResourceKind = "contact_address"
)

// Known returns true if k is a recognized resource kind.
func (k ResourceKind) Known() bool {
	switch k {
	case ResourceKindPaymentCard, ResourceKindContactAddress:
		return true
	}
	return false
}

// Resource is a shared, quota-limited pool entry (payment instrument or
// recovery-contact address). The raw secret value never appears here; Ref is
// a masked display reference.
type Resource struct {
	ID   string       `json:"id"`
	Kind ResourceKind `json:"kind"`
	Ref  string       `json:"ref"`

	// DailyLimit is the maximum number of assignments per calendar day.
	DailyLimit int `json:"daily_limit"`

	// DailyUsage is the persisted usage count for the day the record was
	// loaded for. Resets implicitly at day rollover (usage is stored per
	// calendar day) or by an operator reset.
	DailyUsage int `json:"daily_usage"`

	// Disabled resources are never selected. Soft-disable only: a resource
	// is never deleted while jobs reference it.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
}

// Remaining returns the number of assignments left today, never negative.
func (r *Resource) Remaining() int {
	left := r.DailyLimit - r.DailyUsage
	if left < 0 {
		return 0
	}
	return left
}
