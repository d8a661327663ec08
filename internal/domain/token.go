package domain

import "sort"

// TokenKind tags what an extracted token represents.
type TokenKind uint8

const (
	TokenEntity TokenKind = iota + 1
	TokenYear
	TokenNumeric
	TokenPrice
	TokenWord
)

func (k TokenKind) String() string {
	switch k {
	case TokenEntity:
		return "entity"
	case TokenYear:
		return "year"
	case TokenNumeric:
		return "numeric"
	case TokenPrice:
		return "price"
	case TokenWord:
		return "word"
	default:
		return "unknown"
	}
}

// Token is a typed, normalized keyword. Value is canonical: entity aliases
// collapse to one name, prices are plain decimal strings.
type Token struct {
	Kind  TokenKind
	Value string
}

func (t Token) String() string { return t.Kind.String() + ":" + t.Value }

// TokenSet is an unordered set of tokens.
type TokenSet map[Token]struct{}

// NewTokenSet builds a set from the given tokens.
func NewTokenSet(tokens ...Token) TokenSet {
	s := make(TokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Len returns the number of tokens.
func (s TokenSet) Len() int { return len(s) }

// Add inserts t.
func (s TokenSet) Add(t Token) { s[t] = struct{}{} }

// Has reports whether t is in the set.
func (s TokenSet) Has(t Token) bool {
	_, ok := s[t]
	return ok
}

// OfKind returns the tokens of the given kinds in sorted order.
func (s TokenSet) OfKind(kinds ...TokenKind) []Token {
	var out []Token
	for t := range s {
		for _, k := range kinds {
			if t.Kind == k {
				out = append(out, t)
				break
			}
		}
	}
	sortTokens(out)
	return out
}

// Sorted returns every token ordered by kind, then value.
func (s TokenSet) Sorted() []Token {
	out := make([]Token, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sortTokens(out)
	return out
}

func sortTokens(ts []Token) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Kind != ts[j].Kind {
			return ts[i].Kind < ts[j].Kind
		}
		return ts[i].Value < ts[j].Value
	})
}
