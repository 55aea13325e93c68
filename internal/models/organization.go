package models

import "time"

// OrganizationType distinguishes the two sides of the marketplace.
type OrganizationType string

const (
	OrgTypeMunicipality OrganizationType = "municipality"
	OrgTypeLender       OrganizationType = "lender"
)

// FeeStatus reflects an organization's platform fee standing. Commitments
// cannot be submitted while the owning organization is exempt_blocked.
type FeeStatus string

const (
	FeeStatusActive        FeeStatus = "active"
	FeeStatusExempt        FeeStatus = "exempt"
	FeeStatusExemptBlocked FeeStatus = "exempt_blocked"
)

// ValidFeeStatus reports whether status is a known fee standing.
func ValidFeeStatus(status FeeStatus) bool {
	switch status {
	case FeeStatusActive, FeeStatusExempt, FeeStatusExemptBlocked:
		return true
	}
	return false
}

// Organization is a registered municipality or lender.
type Organization struct {
	ID        string           `db:"id" json:"id"`
	Name      string           `db:"name" json:"name"`
	Type      OrganizationType `db:"type" json:"type"`
	FeeStatus FeeStatus        `db:"fee_status" json:"fee_status"`
	Active    bool             `db:"active" json:"active"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}
