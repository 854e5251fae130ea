package automation

import (
	"context"
	"testing"

	"kanbo/internal/events"
	"kanbo/internal/models"
)

type stubTrigger struct{ kind string }

func (s *stubTrigger) Meta() HandlerMeta { return HandlerMeta{Type: s.kind, Label: s.kind} }
func (s *stubTrigger) Fields(context.Context, FieldsRequest) ([]Field, error) {
	return nil, nil
}
func (s *stubTrigger) SampleData(context.Context, FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
func (s *stubTrigger) Execute(context.Context, events.Event, *models.Automation, *models.AutomationStep) (bool, error) {
	return true, nil
}

type stubAction struct{ kind string }

func (s *stubAction) Meta() HandlerMeta { return HandlerMeta{Type: s.kind, Label: s.kind} }
func (s *stubAction) Fields(context.Context, FieldsRequest) ([]Field, error) {
	return nil, nil
}
func (s *stubAction) SampleData(context.Context, FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
func (s *stubAction) Execute(context.Context, ActionInput) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func TestRegistry_LookupByKind(t *testing.T) {
	r := NewRegistry()
	r.RegisterTrigger(&stubTrigger{kind: "card_created"})
	r.RegisterAction(&stubAction{kind: "set_field"})

	if _, ok := r.Trigger("card_created"); !ok {
		t.Fatal("registered trigger not found")
	}
	if _, ok := r.Action("set_field"); !ok {
		t.Fatal("registered action not found")
	}

	// 未注册的 kind 返回 false 而不是 panic
	if _, ok := r.Trigger("nope"); ok {
		t.Fatal("unknown trigger should not resolve")
	}
	if _, ok := r.Action("card_created"); ok {
		t.Fatal("trigger kind must not resolve as action")
	}
}

func TestRegistry_MetadataSorted(t *testing.T) {
	r := NewRegistry()
	r.RegisterAction(&stubAction{kind: "notify"})
	r.RegisterAction(&stubAction{kind: "add_comment"})
	r.RegisterAction(&stubAction{kind: "move_card"})

	metas := r.Actions()
	if len(metas) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(metas))
	}
	for i := 1; i < len(metas); i++ {
		if metas[i-1].Type > metas[i].Type {
			t.Fatalf("metadata not sorted: %v", metas)
		}
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &stubTrigger{kind: "card_moved"}
	second := &stubTrigger{kind: "card_moved"}
	r.RegisterTrigger(first)
	r.RegisterTrigger(second)

	h, _ := r.Trigger("card_moved")
	if h != TriggerHandler(second) {
		t.Fatal("re-registration should keep the last handler")
	}
	if len(r.Triggers()) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(r.Triggers()))
	}
}
