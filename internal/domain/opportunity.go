package domain

import "time"

// OpportunityKind classifies a detected spread.
type OpportunityKind string

const (
	// OpportunityBinary spans a matched pair of binary markets.
	OpportunityBinary OpportunityKind = "binary"
	// OpportunityMultiOutcome spans a matched group across platforms.
	OpportunityMultiOutcome OpportunityKind = "multi_outcome"
	// OpportunityIntraBinary is Yes+No below 1 inside one market.
	OpportunityIntraBinary OpportunityKind = "intra_binary"
	// OpportunityNegRisk is a single-platform multi-outcome event whose
	// outcome asks sum below 1.
	OpportunityNegRisk OpportunityKind = "negrisk"
	// OpportunityLogical buys the harder market's No and the easier
	// market's Yes where the harder one resolving Yes forces the easier.
	OpportunityLogical OpportunityKind = "logical"
)

// OpportunityLeg is one purchase in an opportunity.
type OpportunityLeg struct {
	Platform     Platform `json:"platform"`
	NativeID     string   `json:"native_id"`
	OutcomeLabel string   `json:"outcome_label"`
	Price        float64  `json:"price"`
	FeeBps       float64  `json:"fee_bps"`
}

// ArbitrageOpportunity is a set of purchases that pays exactly 1 in every
// resolution, bought for TotalCost. Spread = 1 - TotalCost.
type ArbitrageOpportunity struct {
	ID         string           `json:"id"`
	Kind       OpportunityKind  `json:"kind"`
	Direction  string           `json:"direction"`
	PairKey    string           `json:"pair_key"`
	Title      string           `json:"title"`
	Legs       []OpportunityLeg `json:"legs"`
	TotalCost  float64          `json:"total_cost"`
	Spread     float64          `json:"spread"`
	SpreadBps  float64          `json:"spread_bps"`
	Confidence float64          `json:"confidence"`
	Origin     MatchOrigin      `json:"origin,omitempty"`
	DetectedAt time.Time        `json:"detected_at"`
}

// DedupKey identifies the same trade across cycles.
func (o ArbitrageOpportunity) DedupKey() string {
	return string(o.Kind) + ":" + o.PairKey + ":" + o.Direction
}
