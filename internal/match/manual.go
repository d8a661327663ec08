package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// manualFile is the on-disk layout:
//
//	[[mapping]]
//	key = "btc-100k-2025"
//	  [[mapping.outcome]]
//	  label = "yes"
//	  platform = "polymarket"
//	  native_id = "0xabc"
//	  outcome_label = "Yes"
type manualFile struct {
	Mapping []struct {
		Key     string `toml:"key"`
		Outcome []struct {
			Label string `toml:"label"`
			domain.OutcomeRef
		} `toml:"outcome"`
	} `toml:"mapping"`
}

// ManualTable holds curated equivalences keyed by market. It is immutable
// after construction.
type ManualTable struct {
	mappings []domain.ManualMapping
	byMarket map[string]int
}

// LoadManualTable reads a mapping file. An empty path yields an empty table.
func LoadManualTable(path string) (*ManualTable, error) {
	if path == "" {
		return NewManualTable(nil)
	}
	var f manualFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("match: decode manual mappings %s: %w", path, err)
	}
	return fromFile(f)
}

// ParseManualTable decodes mappings from TOML text.
func ParseManualTable(data string) (*ManualTable, error) {
	var f manualFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("match: decode manual mappings: %w", err)
	}
	return fromFile(f)
}

func fromFile(f manualFile) (*ManualTable, error) {
	mappings := make([]domain.ManualMapping, 0, len(f.Mapping))
	for _, m := range f.Mapping {
		mm := domain.ManualMapping{Key: m.Key, Outcomes: make(map[string][]domain.OutcomeRef)}
		for _, o := range m.Outcome {
			label := strings.ToLower(strings.TrimSpace(o.Label))
			mm.Outcomes[label] = append(mm.Outcomes[label], o.OutcomeRef)
		}
		mappings = append(mappings, mm)
	}
	return NewManualTable(mappings)
}

// NewManualTable validates mappings and indexes them by market. A market
// referenced under two keys, a duplicate key or an incomplete reference is
// a domain.ErrConfig.
func NewManualTable(mappings []domain.ManualMapping) (*ManualTable, error) {
	t := &ManualTable{byMarket: make(map[string]int)}
	keys := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		key := strings.TrimSpace(m.Key)
		if key == "" {
			return nil, fmt.Errorf("%w: manual mapping with empty key", domain.ErrConfig)
		}
		if _, dup := keys[key]; dup {
			return nil, fmt.Errorf("%w: duplicate manual mapping key %q", domain.ErrConfig, key)
		}
		keys[key] = struct{}{}
		if len(m.Outcomes) == 0 {
			return nil, fmt.Errorf("%w: manual mapping %q has no outcomes", domain.ErrConfig, key)
		}

		idx := len(t.mappings)
		for label, refs := range m.Outcomes {
			if label == "" {
				return nil, fmt.Errorf("%w: manual mapping %q has an empty outcome label", domain.ErrConfig, key)
			}
			for _, r := range refs {
				if r.Platform == "" || r.NativeID == "" || r.OutcomeLabel == "" {
					return nil, fmt.Errorf("%w: manual mapping %q: incomplete outcome reference", domain.ErrConfig, key)
				}
				mk := r.MarketKey()
				if prev, ok := t.byMarket[mk]; ok && prev != idx {
					return nil, fmt.Errorf("%w: market %s mapped under both %q and %q",
						domain.ErrConfig, mk, t.mappings[prev].Key, key)
				}
				t.byMarket[mk] = idx
			}
		}
		t.mappings = append(t.mappings, domain.ManualMapping{Key: key, Outcomes: m.Outcomes})
	}
	return t, nil
}

// Lookup returns the mapping that references the given market.
func (t *ManualTable) Lookup(platform domain.Platform, nativeID string) (domain.ManualMapping, bool) {
	idx, ok := t.byMarket[domain.MarketKey(platform, nativeID)]
	if !ok {
		return domain.ManualMapping{}, false
	}
	return t.mappings[idx], true
}

// Len returns the number of mappings.
func (t *ManualTable) Len() int { return len(t.mappings) }

// Mappings returns every mapping in file order.
func (t *ManualTable) Mappings() []domain.ManualMapping { return t.mappings }

// Matches converts the mappings that span the two sides into pairs and
// groups with confidence 1. inA and inB tell which side a platform belongs
// to; titles supplies display titles by market key.
func (t *ManualTable) Matches(inA, inB func(domain.Platform) bool, titles map[string]string) ([]domain.MatchedPair, []domain.MatchedGroup) {
	var pairs []domain.MatchedPair
	var groups []domain.MatchedGroup
	for _, m := range t.mappings {
		restricted := make(map[string][]domain.OutcomeRef)
		var aMarkets, bMarkets []domain.OutcomeRef
		seen := make(map[string]bool)
		for _, label := range sortedLabels(m.Outcomes) {
			for _, r := range m.Outcomes[label] {
				side := 0
				switch {
				case inA(r.Platform):
					side = 1
				case inB(r.Platform):
					side = 2
				default:
					continue
				}
				restricted[label] = append(restricted[label], r)
				if seen[r.MarketKey()] {
					continue
				}
				seen[r.MarketKey()] = true
				if side == 1 {
					aMarkets = append(aMarkets, r)
				} else {
					bMarkets = append(bMarkets, r)
				}
			}
		}
		if len(aMarkets) == 0 || len(bMarkets) == 0 {
			continue
		}

		if len(aMarkets) == 1 && len(bMarkets) == 1 {
			if p, ok := manualPair(m.Key, restricted, aMarkets[0], bMarkets[0], titles); ok {
				pairs = append(pairs, p)
				continue
			}
		}
		groups = append(groups, manualGroup(m.Key, restricted, titles))
	}
	return pairs, groups
}

func manualPair(key string, outcomes map[string][]domain.OutcomeRef, a, b domain.OutcomeRef, titles map[string]string) (domain.MatchedPair, bool) {
	for label := range outcomes {
		if label != "yes" && label != "no" {
			return domain.MatchedPair{}, false
		}
	}
	yesA, okA := yesLabel(outcomes, a.MarketKey())
	yesB, okB := yesLabel(outcomes, b.MarketKey())
	if !okA || !okB {
		return domain.MatchedPair{}, false
	}
	alignment := domain.AlignmentSame
	if yesA != yesB {
		alignment = domain.AlignmentInverted
	}
	return domain.MatchedPair{
		A:          domain.MarketRef{Platform: a.Platform, NativeID: a.NativeID, Title: titles[a.MarketKey()]},
		B:          domain.MarketRef{Platform: b.Platform, NativeID: b.NativeID, Title: titles[b.MarketKey()]},
		Alignment:  alignment,
		Confidence: 1,
		Origin:     domain.OriginManual,
		ManualKey:  key,
	}, true
}

// yesLabel returns the market's own label ("yes" or "no") for the
// canonical "yes" outcome.
func yesLabel(outcomes map[string][]domain.OutcomeRef, marketKey string) (string, bool) {
	for _, canonical := range []string{"yes", "no"} {
		for _, r := range outcomes[canonical] {
			if r.MarketKey() != marketKey {
				continue
			}
			own := strings.ToLower(strings.TrimSpace(r.OutcomeLabel))
			if own != "yes" && own != "no" {
				return "", false
			}
			if canonical == "no" {
				own = complement(own)
			}
			return own, true
		}
	}
	return "", false
}

func complement(label string) string {
	if label == "yes" {
		return "no"
	}
	return "yes"
}

func manualGroup(key string, outcomes map[string][]domain.OutcomeRef, titles map[string]string) domain.MatchedGroup {
	g := domain.MatchedGroup{Key: key, Confidence: 1, Origin: domain.OriginManual}
	for _, label := range sortedLabels(outcomes) {
		refs := append([]domain.OutcomeRef(nil), outcomes[label]...)
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].MarketKey() != refs[j].MarketKey() {
				return refs[i].MarketKey() < refs[j].MarketKey()
			}
			return refs[i].OutcomeLabel < refs[j].OutcomeLabel
		})
		g.Legs = append(g.Legs, domain.GroupLeg{Label: label, Refs: refs})
		if g.Title == "" {
			for _, r := range refs {
				if title := titles[r.MarketKey()]; title != "" {
					g.Title = title
					break
				}
			}
		}
	}
	if g.Title == "" {
		g.Title = key
	}
	return g
}

func sortedLabels(m map[string][]domain.OutcomeRef) []string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
