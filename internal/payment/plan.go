// Package payment models purchased credit top-ups. Checkout itself is an
// external collaborator; this package verifies its outcome and maps closed
// plan variants to credit grants.
package payment

// Plan is a closed variant; unknown ids are rejected at the boundary
// rather than branched on as free-form strings.
type Plan string

const (
	PlanBasic    Plan = "basic"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
)

// PlanInfo is the price/credit pairing for one plan.
type PlanInfo struct {
	Plan       Plan   `json:"id"`
	PriceCents int    `json:"priceCents"`
	Credits    int    `json:"credits"`
	PriceID    string `json:"-"`
}

var plans = map[Plan]PlanInfo{
	PlanBasic:    {Plan: PlanBasic, PriceCents: 500, Credits: 4, PriceID: "price_1RK0Pv07pXrOGn2pBX2MuGPy"},
	PlanStandard: {Plan: PlanStandard, PriceCents: 1000, Credits: 10, PriceID: "price_1RK0Qn07pXrOGn2poAZE4Omv"},
	PlanPremium:  {Plan: PlanPremium, PriceCents: 2000, Credits: 25, PriceID: "price_1RK0Qn07pXrOGn2pNYqnMD8y"},
}

// Lookup resolves a plan id, reporting whether it names a known variant.
func Lookup(p Plan) (PlanInfo, bool) {
	info, ok := plans[p]
	return info, ok
}

// Plans returns the plan table in ascending price order.
func Plans() []PlanInfo {
	return []PlanInfo{plans[PlanBasic], plans[PlanStandard], plans[PlanPremium]}
}
