package handlers

import (
	"context"
	"fmt"

	"kanbo/internal/automation"
	"kanbo/internal/events"
	"kanbo/internal/models"
)

// Trigger kinds.
const (
	TriggerCardCreated  = "card_created"
	TriggerCardMoved    = "card_moved"
	TriggerFieldUpdated = "field_updated"
	TriggerCardAssigned = "card_assigned"
)

// CardCreatedTrigger fires for every new card in the automation's lists.
// An optional stage filter narrows it to cards created in that stage.
type CardCreatedTrigger struct {
	tb *automation.Toolbox
}

func NewCardCreatedTrigger(tb *automation.Toolbox) *CardCreatedTrigger {
	return &CardCreatedTrigger{tb: tb}
}

func (t *CardCreatedTrigger) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     TriggerCardCreated,
		Label:    "Card created",
		Icon:     "plus-square",
		Category: "card",
	}
}

func (t *CardCreatedTrigger) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	stages, err := stageOptions(ctx, t.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "stage_id", Title: "Stage", Kind: "select", Required: false, Options: stages},
	}, nil
}

func (t *CardCreatedTrigger) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card": map[string]interface{}{
			"id":       "8e7d26fa-6f76-4b6e-9e2f-000000000001",
			"title":    "Draft launch checklist",
			"stage_id": "8e7d26fa-6f76-4b6e-9e2f-000000000002",
		},
	}, nil
}

func (t *CardCreatedTrigger) Execute(ctx context.Context, evt events.Event, am *models.Automation, step *models.AutomationStep) (bool, error) {
	data := automation.DecodeData(step.Data)
	want := dataString(data, "stage_id")
	if want == "" {
		return true, nil
	}
	card, _ := evt.Payload["card"].(map[string]interface{})
	got, _ := card["stage_id"].(string)
	return got == want, nil
}

// CardMovedTrigger fires when a card changes stage. The configured from/to
// sets narrow the transition; an empty set matches any stage.
type CardMovedTrigger struct {
	tb *automation.Toolbox
}

func NewCardMovedTrigger(tb *automation.Toolbox) *CardMovedTrigger {
	return &CardMovedTrigger{tb: tb}
}

func (t *CardMovedTrigger) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     TriggerCardMoved,
		Label:    "Card moved to stage",
		Icon:     "arrow-right",
		Category: "card",
	}
}

func (t *CardMovedTrigger) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	stages, err := stageOptions(ctx, t.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "from", Title: "From stages", Kind: "select", Required: false, Options: stages},
		{ID: "to", Title: "To stages", Kind: "select", Required: true, Options: stages},
	}, nil
}

func (t *CardMovedTrigger) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card": map[string]interface{}{
			"id":    "8e7d26fa-6f76-4b6e-9e2f-000000000001",
			"title": "Draft launch checklist",
		},
		"from_stage_id": "8e7d26fa-6f76-4b6e-9e2f-000000000002",
		"to_stage_id":   "8e7d26fa-6f76-4b6e-9e2f-000000000003",
	}, nil
}

func (t *CardMovedTrigger) Execute(ctx context.Context, evt events.Event, am *models.Automation, step *models.AutomationStep) (bool, error) {
	data := automation.DecodeData(step.Data)
	from := dataStringSet(data, "from")
	to := dataStringSet(data, "to")

	fromID, _ := evt.Payload["from_stage_id"].(string)
	toID, _ := evt.Payload["to_stage_id"].(string)
	if len(from) > 0 {
		if _, ok := from[fromID]; !ok {
			return false, nil
		}
	}
	if len(to) > 0 {
		if _, ok := to[toID]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// FieldUpdatedTrigger fires when a configured custom field changes value on
// a card, optionally only when it changes to a specific value.
type FieldUpdatedTrigger struct {
	tb *automation.Toolbox
}

func NewFieldUpdatedTrigger(tb *automation.Toolbox) *FieldUpdatedTrigger {
	return &FieldUpdatedTrigger{tb: tb}
}

func (t *FieldUpdatedTrigger) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     TriggerFieldUpdated,
		Label:    "Field updated",
		Icon:     "edit-3",
		Category: "field",
	}
}

func (t *FieldUpdatedTrigger) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	fields, err := fieldOptions(ctx, t.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "field_id", Title: "Field", Kind: "select", Required: true, Options: fields},
		{ID: "to_value", Title: "Changes to", Kind: "text", Required: false},
	}, nil
}

func (t *FieldUpdatedTrigger) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card": map[string]interface{}{
			"id": "8e7d26fa-6f76-4b6e-9e2f-000000000001",
		},
		"field_id": "8e7d26fa-6f76-4b6e-9e2f-000000000004",
		"value":    "high",
	}, nil
}

func (t *FieldUpdatedTrigger) Execute(ctx context.Context, evt events.Event, am *models.Automation, step *models.AutomationStep) (bool, error) {
	data := automation.DecodeData(step.Data)
	wantField := dataString(data, "field_id")
	if wantField == "" {
		return false, nil
	}
	gotField, _ := evt.Payload["field_id"].(string)
	if gotField != wantField {
		return false, nil
	}
	if wantValue := dataString(data, "to_value"); wantValue != "" {
		got := fmt.Sprintf("%v", evt.Payload["value"])
		return got == wantValue, nil
	}
	return true, nil
}

// CardAssignedTrigger fires when a card is assigned, optionally only to one
// of the configured members.
type CardAssignedTrigger struct {
	tb *automation.Toolbox
}

func NewCardAssignedTrigger(tb *automation.Toolbox) *CardAssignedTrigger {
	return &CardAssignedTrigger{tb: tb}
}

func (t *CardAssignedTrigger) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     TriggerCardAssigned,
		Label:    "Card assigned",
		Icon:     "user-check",
		Category: "card",
	}
}

func (t *CardAssignedTrigger) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	users, err := userOptions(ctx, t.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "assignees", Title: "Assignees", Kind: "user", Required: false, Options: users},
	}, nil
}

func (t *CardAssignedTrigger) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card": map[string]interface{}{
			"id": "8e7d26fa-6f76-4b6e-9e2f-000000000001",
		},
		"assignee_id": "42",
	}, nil
}

func (t *CardAssignedTrigger) Execute(ctx context.Context, evt events.Event, am *models.Automation, step *models.AutomationStep) (bool, error) {
	data := automation.DecodeData(step.Data)
	assignees := dataStringSet(data, "assignees")
	if len(assignees) == 0 {
		return true, nil
	}
	got := fmt.Sprintf("%v", evt.Payload["assignee_id"])
	_, ok := assignees[got]
	return ok, nil
}
