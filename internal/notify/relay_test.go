package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
)

// chanBus is a minimal domain.EventBus delivering pre-loaded messages.
type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.ch, nil
}

func (b *chanBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}

func (b *chanBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// recordingSender captures delivered notifications.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, title+": "+message)
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRelayForwardsSaleEvent(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{domain.EventItemSold}, testLogger())
	relay := NewRelay(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	payload, _ := json.Marshal(map[string]any{
		"type": domain.EventItemSold,
		"payload": map[string]any{
			"asset_id": 7, "price": 100, "fee": 2, "buyer": "0xabc",
		},
	})
	bus.ch <- payload

	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })

	got := sender.snapshot()[0]
	if !strings.Contains(got, "Item sold") || !strings.Contains(got, "100") {
		t.Errorf("notification = %q, want sale summary", got)
	}
}

func TestRelayFiltersUnwantedEvents(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{domain.EventItemSold}, testLogger())
	relay := NewRelay(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	filtered, _ := json.Marshal(map[string]any{
		"type":    domain.EventItemListed,
		"payload": map[string]any{"asset_id": 1},
	})
	wanted, _ := json.Marshal(map[string]any{
		"type":    domain.EventItemSold,
		"payload": map[string]any{"asset_id": 2, "price": 5, "fee": 0, "buyer": "0xabc"},
	})
	bus.ch <- filtered
	bus.ch <- wanted

	waitFor(t, func() bool { return len(sender.snapshot()) == 1 })

	if got := sender.snapshot(); len(got) != 1 || !strings.Contains(got[0], "Asset 2") {
		t.Errorf("notifications = %v, want only the sale for asset 2", got)
	}
}

func TestRenderAuctionEnded(t *testing.T) {
	title, msg := render(busEvent{
		Type:    domain.EventAuctionEnded,
		Payload: map[string]any{"asset_id": 3, "sold": true, "winner": "0xdef", "price": 40, "fee": 1},
	})
	if title != "Auction won" || !strings.Contains(msg, "0xdef") {
		t.Errorf("render sold auction = %q, %q", title, msg)
	}

	title, msg = render(busEvent{
		Type:    domain.EventAuctionEnded,
		Payload: map[string]any{"asset_id": 3, "sold": false},
	})
	if title != "Auction closed unsold" || !strings.Contains(msg, "no bids") {
		t.Errorf("render unsold auction = %q, %q", title, msg)
	}
}
