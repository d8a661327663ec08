package domain

// ComponentScores breaks a pairwise score into its weighted parts, each in
// [0,1]. Absent components (no evidence on either side) are reported as 0.
type ComponentScores struct {
	Entity     float64 `json:"entity"`
	Numeric    float64 `json:"numeric"`
	Vocabulary float64 `json:"vocabulary"`
	String     float64 `json:"string"`
}

// MatchCandidate is the scorer's verdict on one (A, B) pair.
type MatchCandidate struct {
	A                     string          `json:"a"`
	B                     string          `json:"b"`
	Score                 float64         `json:"score"`
	KeywordScore          float64         `json:"keyword_score"`
	Components            ComponentScores `json:"components"`
	PassedHardConstraints bool            `json:"passed_hard_constraints"`
	Inverted              bool            `json:"inverted"`
	Reason                string          `json:"reason,omitempty"`
}

// Alignment says whether "Yes" on one side corresponds to "Yes" or "No" on
// the other.
type Alignment string

const (
	AlignmentSame     Alignment = "same"
	AlignmentInverted Alignment = "inverted"
)

// MatchOrigin records how a match was established.
type MatchOrigin string

const (
	OriginManual    MatchOrigin = "manual"
	OriginAutomatic MatchOrigin = "automatic"
)

// MatchedPair links two binary markets on different platforms.
type MatchedPair struct {
	A          MarketRef   `json:"a"`
	B          MarketRef   `json:"b"`
	Alignment  Alignment   `json:"alignment"`
	Confidence float64     `json:"confidence"`
	Origin     MatchOrigin `json:"origin"`
	ManualKey  string      `json:"manual_key,omitempty"`
}

// Key identifies the pair independent of A/B order.
func (p MatchedPair) Key() string {
	a, b := p.A.Key(), p.B.Key()
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// OutcomeRef points at one outcome of one market.
type OutcomeRef struct {
	Platform     Platform `json:"platform" toml:"platform"`
	NativeID     string   `json:"native_id" toml:"native_id"`
	OutcomeLabel string   `json:"outcome_label" toml:"outcome_label"`
}

// MarketKey returns the key of the market the outcome belongs to.
func (r OutcomeRef) MarketKey() string { return MarketKey(r.Platform, r.NativeID) }

// ManualMapping is a human-curated equivalence. Outcomes maps a canonical
// label ("yes", "no", "brazil") to the per-platform outcomes it denotes.
type ManualMapping struct {
	Key      string
	Outcomes map[string][]OutcomeRef
}

// GroupLeg is one canonical outcome of a matched group with the
// per-platform outcomes that pay out on it.
type GroupLeg struct {
	Label string       `json:"label"`
	Refs  []OutcomeRef `json:"refs"`
}

// MatchedGroup links multi-outcome events across platforms, outcome by
// outcome.
type MatchedGroup struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	Legs       []GroupLeg  `json:"legs"`
	Confidence float64     `json:"confidence"`
	Origin     MatchOrigin `json:"origin"`
}

// ImplicationKind names how one market implies another.
type ImplicationKind string

const (
	// ImplicationPriceThreshold links a stricter price threshold to a
	// looser one, e.g. "above $100k" to "above $90k".
	ImplicationPriceThreshold ImplicationKind = "price_threshold"
	// ImplicationTimeWindow links an earlier deadline to a later one.
	ImplicationTimeWindow ImplicationKind = "time_window"
)

// Implication links two binary markets on one platform: Hard resolving Yes
// forces Easy to resolve Yes.
type Implication struct {
	Kind   ImplicationKind `json:"kind"`
	Entity string          `json:"entity"`
	Hard   MarketRef       `json:"hard"`
	Easy   MarketRef       `json:"easy"`
}

// Key identifies the implication for cooldowns.
func (i Implication) Key() string { return "logical:" + i.Hard.Key() + ":" + i.Easy.Key() }
