package enums

import "fmt"

// PlanTier names a subscription tier.
type PlanTier string

const (
	PlanTierFree     PlanTier = "free"
	PlanTierPro      PlanTier = "pro"
	PlanTierBusiness PlanTier = "business"
)

var paidPlanTiers = []PlanTier{
	PlanTierPro,
	PlanTierBusiness,
}

// String implements fmt.Stringer.
func (p PlanTier) String() string {
	return string(p)
}

// IsPaid reports whether the tier is purchasable.
func (p PlanTier) IsPaid() bool {
	for _, candidate := range paidPlanTiers {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaidPlanTier converts raw input into a purchasable PlanTier.
func ParsePaidPlanTier(value string) (PlanTier, error) {
	for _, candidate := range paidPlanTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid paid plan tier %q", value)
}
