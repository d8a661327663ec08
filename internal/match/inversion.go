package match

import "fmt"

// polarPair lists two opposite word families. A title using one family and
// a counterpart title using the other describe complementary outcomes.
type polarPair struct {
	name     string
	positive []string
	negative []string
}

var polarPairs = []polarPair{
	{"win/lose",
		[]string{"win", "wins", "won", "winning", "victory"},
		[]string{"lose", "loses", "lost", "losing", "defeat", "defeated"}},
	{"above/below",
		[]string{"above", "over", "exceed", "exceeds", "exceeded", "higher", "greater", "more", "surpass", "surpasses"},
		[]string{"below", "under", "less", "lower", "fewer", "beneath"}},
	{"rise/fall",
		[]string{"rise", "rises", "rising", "increase", "increases", "gain", "gains"},
		[]string{"fall", "falls", "falling", "decrease", "decreases", "drop", "drops", "decline", "declines"}},
	{"pass/reject",
		[]string{"pass", "passes", "passed", "approve", "approves", "approved", "confirm", "confirmed"},
		[]string{"reject", "rejects", "rejected", "veto", "vetoed", "block", "blocked", "deny", "denied"}},
	{"remain/leave",
		[]string{"remain", "remains", "stay", "stays"},
		[]string{"leave", "leaves", "exit", "exits", "resign", "resigns", "ousted"}},
}

type polar struct {
	pair int
	sign int
}

// polarity maps every family word to its pair index and sign.
var polarity = func() map[string]polar {
	m := make(map[string]polar)
	for i, p := range polarPairs {
		for _, w := range p.positive {
			m[w] = polar{pair: i, sign: 1}
		}
		for _, w := range p.negative {
			m[w] = polar{pair: i, sign: -1}
		}
	}
	return m
}()

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {}, "fail": {}, "fails": {}, "failed": {},
}

// detectInversion reports whether two titles describe opposite outcomes of
// the same proposition. Each opposed word family and a differing parity of
// negation words count as one flip; an odd number of flips inverts. This is
// a lexical heuristic: it cannot see inversions phrased without these words.
func detectInversion(aWords, bWords []string) (bool, string) {
	aSigns, aNeg := polarProfile(aWords)
	bSigns, bNeg := polarProfile(bWords)

	flips := 0
	var reason string
	for i := range polarPairs {
		a, b := aSigns[i], bSigns[i]
		if a != 0 && b != 0 && a != b && a != 2 && b != 2 {
			flips++
			reason = fmt.Sprintf("opposed %s", polarPairs[i].name)
		}
	}
	if aNeg%2 != bNeg%2 {
		flips++
		reason = "negation parity differs"
	}
	if flips%2 == 1 {
		return true, reason
	}
	return false, ""
}

// polarProfile returns, per polar pair, 0 (absent), 1 or -1 (one family
// present) or 2 (both present), plus the number of negation words.
func polarProfile(words []string) ([]int, int) {
	signs := make([]int, len(polarPairs))
	neg := 0
	for _, w := range words {
		if _, ok := negations[w]; ok {
			neg++
			continue
		}
		p, ok := polarity[w]
		if !ok {
			continue
		}
		switch signs[p.pair] {
		case 0:
			signs[p.pair] = p.sign
		case -p.sign:
			signs[p.pair] = 2
		}
	}
	return signs, neg
}
