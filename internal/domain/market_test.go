package domain

import (
	"errors"
	"math"
	"testing"
)

func TestMarketRecordValidate(t *testing.T) {
	ok := MarketRecord{
		Platform: PlatformKalshi,
		NativeID: "KXBTC",
		Title:    "Bitcoin above $100k",
		Outcomes: BinaryOutcomes(Price(0.4), nil),
	}

	tests := []struct {
		name    string
		mutate  func(*MarketRecord)
		wantErr bool
	}{
		{"valid", func(*MarketRecord) {}, false},
		{"no platform", func(r *MarketRecord) { r.Platform = "" }, true},
		{"no id", func(r *MarketRecord) { r.NativeID = " " }, true},
		{"blank title", func(r *MarketRecord) { r.Title = "\t" }, true},
		{"price above one", func(r *MarketRecord) { r.Outcomes = BinaryOutcomes(Price(1.2), nil) }, true},
		{"negative price", func(r *MarketRecord) { r.Outcomes = BinaryOutcomes(Price(-0.1), nil) }, true},
		{"nan price", func(r *MarketRecord) { r.Outcomes = BinaryOutcomes(Price(math.NaN()), nil) }, true},
		{"empty label", func(r *MarketRecord) { r.Outcomes[1].Label = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ok
			r.Outcomes = append([]Outcome(nil), ok.Outcomes...)
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("error %v does not wrap ErrMalformedRecord", err)
			}
		})
	}
}

func TestMatchTitle(t *testing.T) {
	binary := MarketRecord{Title: "Will Brazil win?", EventTitle: "World Cup Winner", Outcomes: BinaryOutcomes(nil, nil)}
	if got := binary.MatchTitle(); got != "Will Brazil win?" {
		t.Errorf("binary MatchTitle() = %q", got)
	}
	event := MarketRecord{
		Title:      "Brazil",
		EventTitle: "World Cup Winner",
		Outcomes:   []Outcome{{Label: "Brazil"}, {Label: "France"}, {Label: "Spain"}},
	}
	if got := event.MatchTitle(); got != "World Cup Winner" {
		t.Errorf("multi-outcome MatchTitle() = %q", got)
	}
	if _, ok := event.Outcome("  france "); !ok {
		t.Errorf("Outcome lookup should ignore case and spacing")
	}
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a := MarketRef{Platform: PlatformPolymarket, NativeID: "1"}
	b := MarketRef{Platform: PlatformKalshi, NativeID: "K"}
	if (MatchedPair{A: a, B: b}).Key() != (MatchedPair{A: b, B: a}).Key() {
		t.Errorf("pair key depends on order")
	}
}
