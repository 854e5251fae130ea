package events

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Domain event names published by the card service and consumed by the
// automation dispatcher.
const (
	CardCreated  = "card.created"
	CardUpdated  = "card.updated"
	CardMoved    = "card.moved"
	CardAssigned = "card.assigned"
	FieldUpdated = "card.field_updated"
)

// Event 领域事件：type + 实体 ID + 原始负载
type Event struct {
	Type    string                 `json:"type"`
	CardID  uuid.UUID              `json:"card_id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// HandlerFunc consumes one event. It runs inline on the publisher's
// goroutine, so it must decide fast and defer slow work elsewhere.
type HandlerFunc func(ctx context.Context, evt Event)

type subscription struct {
	pattern string
	fn      HandlerFunc
}

// Bus is a minimal in-process publish/subscribe bus keyed by event name.
// Patterns ending in ".*" match any event sharing the prefix ("card.*").
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *logrus.Logger
}

func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn for every event whose type matches pattern.
func (b *Bus) Subscribe(pattern string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, fn: fn})
}

// Publish delivers evt to every matching subscriber, in registration order.
// A panicking subscriber is logged and does not affect the others or the
// publishing request.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !match(sub.pattern, evt.Type) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Errorf("events: subscriber panic on %s: %v", evt.Type, r)
				}
			}()
			sub.fn(ctx, evt)
		}()
	}
}

func match(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}
