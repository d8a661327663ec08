package pipeline

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// mergePairs drops pairs that an earlier pass already produced.
func mergePairs(passes [][]domain.MatchedPair) []domain.MatchedPair {
	seen := make(map[string]bool)
	var out []domain.MatchedPair
	for _, pairs := range passes {
		for _, p := range pairs {
			if seen[p.Key()] {
				continue
			}
			seen[p.Key()] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// linkPairs folds binary pairs that chain three or more markets together
// into one yes/no group, so the cheapest side on each venue can be combined.
// labels reports a market's Yes and No outcome labels. Components whose
// alignments contradict each other, or that hold a market without binary
// labels, keep their pairs.
func linkPairs(pairs []domain.MatchedPair, labels func(marketKey string) (yes, no string, ok bool)) ([]domain.MatchedPair, []domain.MatchedGroup) {
	type link struct {
		other    string
		inverted bool
		pair     int
	}
	adj := make(map[string][]link)
	refs := make(map[string]domain.MarketRef)
	for i, p := range pairs {
		a, b := p.A.Key(), p.B.Key()
		inv := p.Alignment == domain.AlignmentInverted
		adj[a] = append(adj[a], link{other: b, inverted: inv, pair: i})
		adj[b] = append(adj[b], link{other: a, inverted: inv, pair: i})
		refs[a], refs[b] = p.A, p.B
	}

	// flip[k] is true when market k's Yes pays on the component root's No.
	flip := make(map[string]bool)
	linked := make(map[int]bool)
	var groups []domain.MatchedGroup
	for _, p := range pairs {
		start := p.A.Key()
		if _, done := flip[start]; done {
			continue
		}
		flip[start] = false
		markets := []string{start}
		members := make(map[int]bool)
		conflict := false
		for q := 0; q < len(markets); q++ {
			m := markets[q]
			for _, l := range adj[m] {
				members[l.pair] = true
				want := flip[m] != l.inverted
				got, seen := flip[l.other]
				if !seen {
					flip[l.other] = want
					markets = append(markets, l.other)
					continue
				}
				if got != want {
					conflict = true
				}
			}
		}
		if conflict || len(markets) < 3 {
			continue
		}

		sort.Strings(markets)
		root := flip[markets[0]]
		g := domain.MatchedGroup{
			Key:    "linked:" + markets[0],
			Title:  refs[markets[0]].Title,
			Legs:   []domain.GroupLeg{{Label: "yes"}, {Label: "no"}},
			Origin: domain.OriginManual,
		}
		complete := true
		for _, mk := range markets {
			yes, no, ok := labels(mk)
			if !ok {
				complete = false
				break
			}
			if flip[mk] != root {
				yes, no = no, yes
			}
			r := refs[mk]
			g.Legs[0].Refs = append(g.Legs[0].Refs, domain.OutcomeRef{Platform: r.Platform, NativeID: r.NativeID, OutcomeLabel: yes})
			g.Legs[1].Refs = append(g.Legs[1].Refs, domain.OutcomeRef{Platform: r.Platform, NativeID: r.NativeID, OutcomeLabel: no})
		}
		if !complete {
			continue
		}
		first := true
		for i := range members {
			mp := pairs[i]
			if first || mp.Confidence < g.Confidence {
				g.Confidence = mp.Confidence
			}
			first = false
			if mp.Origin != domain.OriginManual {
				g.Origin = domain.OriginAutomatic
			}
			linked[i] = true
		}
		groups = append(groups, g)
	}

	if len(linked) == 0 {
		return pairs, nil
	}
	kept := make([]domain.MatchedPair, 0, len(pairs)-len(linked))
	for i, p := range pairs {
		if !linked[i] {
			kept = append(kept, p)
		}
	}
	return kept, groups
}

// mergeGroups joins groups from different platform passes that share a key
// or any market, so an event listed on three platforms becomes one group
// with every platform's outcomes on each leg. Legs are joined by label,
// ignoring case. The merged group keeps the smallest key and confidence and
// is manual only when all its parts are.
func mergeGroups(groups []domain.MatchedGroup) []domain.MatchedGroup {
	if len(groups) < 2 {
		return groups
	}

	parent := make([]int, len(groups))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[max(ra, rb)] = min(ra, rb)
		}
	}

	owner := make(map[string]int)
	claim := func(k string, i int) {
		if j, ok := owner[k]; ok {
			union(i, j)
			return
		}
		owner[k] = i
	}
	for i, g := range groups {
		claim("key\x00"+g.Key, i)
		for _, leg := range g.Legs {
			for _, r := range leg.Refs {
				claim("mkt\x00"+r.MarketKey(), i)
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range groups {
		r := find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	out := make([]domain.MatchedGroup, 0, len(roots))
	for _, r := range roots {
		idx := members[r]
		if len(idx) == 1 {
			out = append(out, groups[idx[0]])
			continue
		}
		parts := make([]domain.MatchedGroup, len(idx))
		for k, i := range idx {
			parts[k] = groups[i]
		}
		out = append(out, joinGroups(parts))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func joinGroups(parts []domain.MatchedGroup) domain.MatchedGroup {
	merged := domain.MatchedGroup{
		Key:        parts[0].Key,
		Title:      parts[0].Title,
		Confidence: parts[0].Confidence,
		Origin:     domain.OriginManual,
	}

	legIdx := make(map[string]int)
	seenRef := make(map[string]bool)
	for _, g := range parts {
		if g.Key < merged.Key {
			merged.Key, merged.Title = g.Key, g.Title
		}
		merged.Confidence = min(merged.Confidence, g.Confidence)
		if g.Origin != domain.OriginManual {
			merged.Origin = domain.OriginAutomatic
		}
		for _, leg := range g.Legs {
			label := strings.ToLower(strings.TrimSpace(leg.Label))
			i, ok := legIdx[label]
			if !ok {
				i = len(merged.Legs)
				legIdx[label] = i
				merged.Legs = append(merged.Legs, domain.GroupLeg{Label: leg.Label})
			}
			for _, ref := range leg.Refs {
				rk := ref.MarketKey() + "\x00" + strings.ToLower(ref.OutcomeLabel)
				if seenRef[rk] {
					continue
				}
				seenRef[rk] = true
				merged.Legs[i].Refs = append(merged.Legs[i].Refs, ref)
			}
		}
	}

	sort.SliceStable(merged.Legs, func(i, j int) bool { return merged.Legs[i].Label < merged.Legs[j].Label })
	for i := range merged.Legs {
		refs := merged.Legs[i].Refs
		sort.SliceStable(refs, func(a, b int) bool { return refs[a].MarketKey() < refs[b].MarketKey() })
	}
	return merged
}
