package match

import (
	"testing"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func tok(kind domain.TokenKind, v string) domain.Token { return domain.Token{Kind: kind, Value: v} }

func TestExtract(t *testing.T) {
	ex := NewExtractor(2012, 2099)

	tests := []struct {
		name  string
		title string
		want  []domain.Token
	}{
		{
			name:  "html and dollar amount",
			title: "Will <b>Bitcoin</b> reach $100,000 by 2025?",
			want: []domain.Token{
				tok(domain.TokenEntity, "bitcoin"),
				tok(domain.TokenYear, "2025"),
				tok(domain.TokenPrice, "100000"),
				tok(domain.TokenWord, "reach"),
			},
		},
		{
			name:  "alias and suffix",
			title: "BTC hits $100k before end of 2025",
			want: []domain.Token{
				tok(domain.TokenEntity, "bitcoin"),
				tok(domain.TokenYear, "2025"),
				tok(domain.TokenPrice, "100000"),
				tok(domain.TokenWord, "reach"),
			},
		},
		{
			name:  "direction words are left out",
			title: "ETH above $5k in 2026",
			want: []domain.Token{
				tok(domain.TokenEntity, "ethereum"),
				tok(domain.TokenYear, "2026"),
				tok(domain.TokenPrice, "5000"),
			},
		},
		{
			name:  "bare numbers and plural",
			title: "Fed cuts rates by 50 bps",
			want: []domain.Token{
				tok(domain.TokenEntity, "fed"),
				tok(domain.TokenNumeric, "50"),
				tok(domain.TokenWord, "bps"),
				tok(domain.TokenWord, "cuts"),
				tok(domain.TokenWord, "rate"),
			},
		},
		{
			name:  "escaped entity alias",
			title: "S&amp;P 500 closes above 6,000",
			want: []domain.Token{
				tok(domain.TokenEntity, "sp500"),
				tok(domain.TokenNumeric, "6000"),
			},
		},
		{
			name:  "accent folding",
			title: "Will Beyoncé win a Grammy?",
			want: []domain.Token{
				tok(domain.TokenWord, "beyonce"),
				tok(domain.TokenWord, "grammy"),
			},
		},
		{
			name:  "multi word alias and synonym",
			title: "Will Kamala Harris win the 2024 presidential election?",
			want: []domain.Token{
				tok(domain.TokenEntity, "harris"),
				tok(domain.TokenYear, "2024"),
				tok(domain.TokenWord, "election"),
				tok(domain.TokenWord, "president"),
			},
		},
		{
			name:  "amount words and percent",
			title: "Tesla sells 12 million cars with 75% margin",
			want: []domain.Token{
				tok(domain.TokenEntity, "tesla"),
				tok(domain.TokenNumeric, "75%"),
				tok(domain.TokenPrice, "12000000"),
				tok(domain.TokenWord, "cars"),
				tok(domain.TokenWord, "margin"),
				tok(domain.TokenWord, "sell"),
			},
		},
		{
			name:  "empty",
			title: "   ",
			want:  nil,
		},
		{
			name:  "tags only",
			title: "<p></p>",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Extract(tt.title).Sorted()
			if len(got) != len(tt.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tt.title, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Extract(%q)[%d] = %v, want %v", tt.title, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractYearRange(t *testing.T) {
	ex := NewExtractor(2012, 2030)
	got := ex.Extract("Population above 2045 in 2028")
	if !got.Has(tok(domain.TokenYear, "2028")) {
		t.Errorf("missing year 2028 in %v", got.Sorted())
	}
	if got.Has(tok(domain.TokenYear, "2045")) {
		t.Errorf("2045 is outside the year range but was tagged as a year")
	}
	if !got.Has(tok(domain.TokenNumeric, "2045")) {
		t.Errorf("2045 should fall back to a numeric token, got %v", got.Sorted())
	}
}

func TestExtractDeterministic(t *testing.T) {
	ex := NewExtractor(2012, 2099)
	title := "Will Donald Trump win the 2028 election with over 300 electoral votes?"
	first := ex.Extract(title).Sorted()
	for range 20 {
		again := ex.Extract(title).Sorted()
		if len(again) != len(first) {
			t.Fatalf("token count changed: %d vs %d", len(again), len(first))
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("token %d changed: %v vs %v", i, again[i], first[i])
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Will   <i>Trump</i>  WIN?  ", "will trump win?"},
		{"Trump won't win", "trump will not win"},
		{"Trump doesn’t run", "trump does not run"},
		{"Pokémon &amp; Co", "pokemon & co"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
