package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestBus_ExactAndWildcardMatch(t *testing.T) {
	bus := NewBus(nil)

	var exact, prefix, all, other int
	bus.Subscribe(CardCreated, func(ctx context.Context, evt Event) { exact++ })
	bus.Subscribe("card.*", func(ctx context.Context, evt Event) { prefix++ })
	bus.Subscribe("*", func(ctx context.Context, evt Event) { all++ })
	bus.Subscribe("list.created", func(ctx context.Context, evt Event) { other++ })

	bus.Publish(context.Background(), Event{Type: CardCreated, CardID: uuid.New()})
	bus.Publish(context.Background(), Event{Type: CardMoved, CardID: uuid.New()})

	if exact != 1 {
		t.Fatalf("exact subscriber fired %d times, want 1", exact)
	}
	if prefix != 2 {
		t.Fatalf("prefix subscriber fired %d times, want 2", prefix)
	}
	if all != 2 {
		t.Fatalf("wildcard subscriber fired %d times, want 2", all)
	}
	if other != 0 {
		t.Fatalf("unrelated subscriber fired %d times, want 0", other)
	}
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus(nil)

	var after int
	bus.Subscribe("card.*", func(ctx context.Context, evt Event) { panic("boom") })
	bus.Subscribe("card.*", func(ctx context.Context, evt Event) { after++ })

	// 订阅者 panic 不应波及后续订阅者或发布方
	bus.Publish(context.Background(), Event{Type: CardAssigned, CardID: uuid.New()})

	if after != 1 {
		t.Fatalf("subscriber after panic fired %d times, want 1", after)
	}
}

func TestBus_PayloadDelivered(t *testing.T) {
	bus := NewBus(nil)

	var got Event
	bus.Subscribe(FieldUpdated, func(ctx context.Context, evt Event) { got = evt })

	id := uuid.New()
	bus.Publish(context.Background(), Event{
		Type:    FieldUpdated,
		CardID:  id,
		Payload: map[string]interface{}{"field_id": "f1", "value": "high"},
	})

	if got.CardID != id {
		t.Fatalf("unexpected card id: %v", got.CardID)
	}
	if got.Payload["field_id"] != "f1" || got.Payload["value"] != "high" {
		t.Fatalf("unexpected payload: %v", got.Payload)
	}
}
