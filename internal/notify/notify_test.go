package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Kind:      domain.OpportunityBinary,
		Title:     "Will BTC close above $100k on Dec 31, 2026?",
		TotalCost: 0.92,
		Spread:    0.08,
		SpreadBps: 800,
		Legs: []domain.OpportunityLeg{
			{Platform: domain.PlatformPolymarket, NativeID: "0xabc", OutcomeLabel: "Yes", Price: 0.42},
			{Platform: domain.PlatformKalshi, NativeID: "BTC-26DEC31", OutcomeLabel: "No", Price: 0.5, FeeBps: 100},
		},
		Confidence: 0.91,
		Origin:     domain.OriginManual,
	}
}

func TestNotifierEventFilter(t *testing.T) {
	tests := []struct {
		name    string
		events  []string
		event   string
		wantHit bool
	}{
		{"no filter allows all", nil, EventCycleFailed, true},
		{"listed event", []string{"opportunity", " cycle_failed "}, EventCycleFailed, true},
		{"unlisted event", []string{"opportunity"}, EventPlatformDown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSender{name: "rec"}
			n := NewNotifier([]Sender{s}, tt.events, 0, discardLogger())
			if err := n.Notify(context.Background(), tt.event, "t", "m"); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if got := len(s.titles) == 1; got != tt.wantHit {
				t.Fatalf("delivered = %v, want %v", got, tt.wantHit)
			}
		})
	}
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discardLogger())

	err := n.Notify(context.Background(), EventStartup, "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping boom", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("a failing sender must not block the others")
	}
}

func TestNotifyOpportunityThreshold(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventOpportunity}, 1000, discardLogger())

	if err := n.NotifyOpportunity(context.Background(), sampleOpportunity()); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 0 {
		t.Fatal("800 bps is below the 1000 bps notification floor")
	}

	n = NewNotifier([]Sender{s}, []string{EventOpportunity}, 500, discardLogger())
	if err := n.NotifyOpportunity(context.Background(), sampleOpportunity()); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 1 || s.titles[0] != "Cross-platform binary spread 8.00%" {
		t.Fatalf("titles = %v", s.titles)
	}
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	if n.Enabled() {
		t.Fatal("nil notifier reports enabled")
	}
	if err := n.NotifyOpportunity(context.Background(), sampleOpportunity()); err != nil {
		t.Fatal(err)
	}
}

func TestFormatOpportunity(t *testing.T) {
	_, body := FormatOpportunity(sampleOpportunity())
	for _, want := range []string{
		"BUY Yes on polymarket (0xabc) @ 0.420",
		"BUY No on kalshi (BTC-26DEC31) @ 0.500 +100bps fee",
		"Cost 0.9200, spread 800 bps, confidence 0.91",
		"(manual mapping)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err := s.Send(context.Background(), "A<B", "x & y"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
	if got["text"] != "<b>A&lt;B</b>\nx &amp; y" {
		t.Errorf("text = %q", got["text"])
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
		anyErr  bool
	}{
		{"no content", http.StatusNoContent, nil, false},
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload discordPayload
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&payload)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewDiscordSender(srv.URL, WithHTTPClient(srv.Client())).Send(context.Background(), "title", "msg")
			if (err != nil) != tt.anyErr {
				t.Fatalf("err = %v, want error %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(payload.Embeds) != 1 || payload.Embeds[0].Title != "title" {
				t.Fatalf("payload = %+v", payload)
			}
		})
	}
}
