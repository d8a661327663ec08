package match

import (
	"math"
	"sort"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Edge is a scored (A, B) candidate that the assignment step may accept.
type Edge struct {
	A, B      domain.MarketRecord
	Candidate domain.MatchCandidate
	// Label is set on one-to-many legs: the outcome of the multi-outcome
	// side that the binary side prices.
	Label string
}

// exclusive reports whether accepting e consumes both markets outright.
func (e Edge) exclusive() bool { return e.Label == "" }

// legSides splits a one-to-many leg into its multi-outcome and binary ends.
func (e Edge) legSides() (multi, single domain.MarketRecord) {
	if e.A.IsMultiOutcome() {
		return e.A, e.B
	}
	return e.B, e.A
}

// AssignmentStrategy picks a conflict-free subset of edges. Exclusive edges
// use each market at most once; a multi-outcome market may instead collect
// one leg per outcome label.
type AssignmentStrategy interface {
	Assign(edges []Edge) []Edge
}

// Greedy accepts edges best score first, then by A key, B key and label.
// It is deterministic but not globally optimal.
type Greedy struct{}

// Assign implements AssignmentStrategy.
func (Greedy) Assign(edges []Edge) []Edge {
	sorted := append([]Edge(nil), edges...)
	sortEdges(sorted)

	used := make(map[string]bool)
	partial := make(map[string]bool)
	slots := make(map[string]bool)
	var out []Edge
	for _, e := range sorted {
		if e.exclusive() {
			a, b := e.A.Key(), e.B.Key()
			if used[a] || used[b] || partial[a] || partial[b] {
				continue
			}
			used[a], used[b] = true, true
		} else {
			multi, single := e.legSides()
			mk, sk := multi.Key(), single.Key()
			slot := mk + "\x00" + strings.ToLower(e.Label)
			if used[mk] || used[sk] || slots[slot] {
				continue
			}
			used[sk], partial[mk], slots[slot] = true, true, true
		}
		out = append(out, e)
	}
	return out
}

func sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Candidate.Score != b.Candidate.Score {
			return a.Candidate.Score > b.Candidate.Score
		}
		if a.A.Key() != b.A.Key() {
			return a.A.Key() < b.A.Key()
		}
		if a.B.Key() != b.B.Key() {
			return a.B.Key() < b.B.Key()
		}
		return a.Label < b.Label
	})
}

// Resolver turns manual matches and scored edges into the final one-to-one
// pairs and label-aligned groups.
type Resolver struct {
	strategy AssignmentStrategy
	ex       *Extractor
}

// NewResolver returns a resolver using strategy, Greedy when nil.
func NewResolver(strategy AssignmentStrategy, ex *Extractor) *Resolver {
	if strategy == nil {
		strategy = Greedy{}
	}
	return &Resolver{strategy: strategy, ex: ex}
}

// Resolve keeps every manual match, drops edges touching a manually mapped
// market, assigns the rest and builds the output sorted by key.
func (r *Resolver) Resolve(manualPairs []domain.MatchedPair, manualGroups []domain.MatchedGroup, edges []Edge) ([]domain.MatchedPair, []domain.MatchedGroup) {
	consumed := make(map[string]bool)
	for _, p := range manualPairs {
		consumed[p.A.Key()], consumed[p.B.Key()] = true, true
	}
	for _, g := range manualGroups {
		for _, leg := range g.Legs {
			for _, ref := range leg.Refs {
				consumed[ref.MarketKey()] = true
			}
		}
	}

	free := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !consumed[e.A.Key()] && !consumed[e.B.Key()] {
			free = append(free, e)
		}
	}

	pairs := append([]domain.MatchedPair(nil), manualPairs...)
	groups := append([]domain.MatchedGroup(nil), manualGroups...)

	legs := make(map[string][]Edge)
	var legOrder []string
	for _, e := range r.strategy.Assign(free) {
		switch {
		case !e.exclusive():
			multi, _ := e.legSides()
			if _, ok := legs[multi.Key()]; !ok {
				legOrder = append(legOrder, multi.Key())
			}
			legs[multi.Key()] = append(legs[multi.Key()], e)
		case e.A.IsMultiOutcome() && e.B.IsMultiOutcome():
			aligned := r.ex.alignOutcomes(e.A, e.B)
			if len(aligned) < 2 {
				continue
			}
			groups = append(groups, domain.MatchedGroup{
				Key:        "auto:" + e.A.Key() + "|" + e.B.Key(),
				Title:      e.A.MatchTitle(),
				Legs:       aligned,
				Confidence: e.Candidate.Score,
				Origin:     domain.OriginAutomatic,
			})
		default:
			alignment := domain.AlignmentSame
			if e.Candidate.Inverted {
				alignment = domain.AlignmentInverted
			}
			pairs = append(pairs, domain.MatchedPair{
				A:          e.A.Ref(),
				B:          e.B.Ref(),
				Alignment:  alignment,
				Confidence: e.Candidate.Score,
				Origin:     domain.OriginAutomatic,
			})
		}
	}
	for _, mk := range legOrder {
		groups = append(groups, buildLegGroup(legs[mk]))
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].A.Key() != pairs[j].A.Key() {
			return pairs[i].A.Key() < pairs[j].A.Key()
		}
		return pairs[i].B.Key() < pairs[j].B.Key()
	})
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return pairs, groups
}

// buildLegGroup assembles a multi-outcome market and the binary markets
// that each price one of its outcomes. Confidence is the weakest leg's.
func buildLegGroup(edges []Edge) domain.MatchedGroup {
	multi, _ := edges[0].legSides()
	g := domain.MatchedGroup{
		Key:        "auto:" + multi.Key(),
		Title:      multi.MatchTitle(),
		Confidence: math.Inf(1),
		Origin:     domain.OriginAutomatic,
	}
	byLabel := make(map[string][]Edge)
	for _, e := range edges {
		byLabel[strings.ToLower(e.Label)] = append(byLabel[strings.ToLower(e.Label)], e)
		g.Confidence = math.Min(g.Confidence, e.Candidate.Score)
	}
	for _, o := range multi.Outcomes {
		leg := domain.GroupLeg{
			Label: o.Label,
			Refs:  []domain.OutcomeRef{{Platform: multi.Platform, NativeID: multi.NativeID, OutcomeLabel: o.Label}},
		}
		for _, e := range byLabel[strings.ToLower(o.Label)] {
			_, single := e.legSides()
			own := "Yes"
			if e.Candidate.Inverted {
				own = "No"
			}
			leg.Refs = append(leg.Refs, domain.OutcomeRef{Platform: single.Platform, NativeID: single.NativeID, OutcomeLabel: own})
		}
		g.Legs = append(g.Legs, leg)
	}
	return g
}

// alignOutcomes pairs the outcomes of two multi-outcome markets by
// normalized label, then by canonical entity. Unmatched labels are dropped.
func (x *Extractor) alignOutcomes(a, b domain.MarketRecord) []domain.GroupLeg {
	bNorm := make([]string, len(b.Outcomes))
	bEnt := make([]string, len(b.Outcomes))
	for k, o := range b.Outcomes {
		bNorm[k] = Normalize(o.Label)
		bEnt[k] = x.entityKey(o.Label)
	}
	used := make([]bool, len(b.Outcomes))
	var legs []domain.GroupLeg
	for _, oa := range a.Outcomes {
		na := Normalize(oa.Label)
		j := -1
		for k := range b.Outcomes {
			if !used[k] && bNorm[k] == na {
				j = k
				break
			}
		}
		if ea := x.entityKey(oa.Label); j < 0 && ea != "" {
			for k := range b.Outcomes {
				if !used[k] && bEnt[k] == ea {
					j = k
					break
				}
			}
		}
		if j < 0 {
			continue
		}
		used[j] = true
		legs = append(legs, domain.GroupLeg{
			Label: oa.Label,
			Refs: []domain.OutcomeRef{
				{Platform: a.Platform, NativeID: a.NativeID, OutcomeLabel: oa.Label},
				{Platform: b.Platform, NativeID: b.NativeID, OutcomeLabel: b.Outcomes[j].Label},
			},
		})
	}
	return legs
}

// entityKey joins the canonical entities named in a label, "" when none.
func (x *Extractor) entityKey(label string) string {
	ents := x.Extract(label).OfKind(domain.TokenEntity)
	vals := make([]string, len(ents))
	for i, t := range ents {
		vals[i] = t.Value
	}
	return strings.Join(vals, "+")
}

// labelIn finds the single outcome label of multi that the binary title
// names, by phrase or by entity. Zero or several hits return false.
func (x *Extractor) labelIn(multi domain.MarketRecord, single features) (string, bool) {
	title := " " + strings.Join(single.words, " ") + " "
	found := ""
	for _, o := range multi.Outcomes {
		phrase := strings.Join(wordsOf(Normalize(o.Label)), " ")
		if phrase == "" {
			continue
		}
		hit := strings.Contains(title, " "+phrase+" ")
		if !hit {
			if ents := x.Extract(o.Label).OfKind(domain.TokenEntity); len(ents) > 0 {
				hit = true
				for _, t := range ents {
					if !single.tokens.Has(t) {
						hit = false
						break
					}
				}
			}
		}
		if !hit {
			continue
		}
		if found != "" {
			return "", false
		}
		found = o.Label
	}
	return found, found != ""
}
