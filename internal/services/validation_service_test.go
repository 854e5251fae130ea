package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"kanbo/internal/automation"
	autohandlers "kanbo/internal/automation/handlers"
	"kanbo/internal/models"
)

func newValidationFixture(t *testing.T) (*AutomationService, *ValidationService) {
	t.Helper()
	db := newTestDB(t)
	registry := automation.NewRegistry()
	autohandlers.RegisterAll(registry, automation.NewToolbox(db, nil))
	svc := NewAutomationService(db, nil)
	return svc, NewValidationService(svc, registry, nil)
}

func TestValidateStep_KindChecks(t *testing.T) {
	_, validation := newValidationFixture(t)
	ctx := context.Background()

	res := validation.ValidateStep(ctx, StepValidationRequest{Tag: models.StepTagAction})
	if res.IsValid || res.Message != "Step kind is empty" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = validation.ValidateStep(ctx, StepValidationRequest{
		Tag:   models.StepTagTrigger,
		Value: "card_exploded",
	})
	if res.IsValid || res.Message != `No trigger handler registered for "card_exploded"` {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = validation.ValidateStep(ctx, StepValidationRequest{
		Tag:   models.StepTagAction,
		Value: "launch_rocket",
	})
	if res.IsValid || res.Message != `No action handler registered for "launch_rocket"` {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestValidateStep_RequiredFields(t *testing.T) {
	_, validation := newValidationFixture(t)
	ctx := context.Background()

	// set_field 要求 field_id 和 value
	res := validation.ValidateStep(ctx, StepValidationRequest{
		Tag:   models.StepTagAction,
		Value: "set_field",
		Data:  map[string]interface{}{"field_id": "f1"},
	})
	if res.IsValid || res.Message != `Required field "Value" is empty` {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = validation.ValidateStep(ctx, StepValidationRequest{
		Tag:   models.StepTagAction,
		Value: "set_field",
		Data:  map[string]interface{}{"field_id": "f1", "value": "high"},
	})
	if !res.IsValid {
		t.Fatalf("expected valid, got %+v", res)
	}

	// 空字符串和空数组都算空值
	res = validation.ValidateStep(ctx, StepValidationRequest{
		Tag:   models.StepTagAction,
		Value: "notify",
		Data:  map[string]interface{}{"message": ""},
	})
	if res.IsValid {
		t.Fatal("empty string should fail required check")
	}
	res = validation.ValidateStep(ctx, StepValidationRequest{
		Tag:   models.StepTagTrigger,
		Value: "card_moved",
		Data:  map[string]interface{}{"to": []interface{}{}},
	})
	if res.IsValid {
		t.Fatal("empty list should fail required check")
	}
}

func TestValidateAutomationBeforeRun_Gates(t *testing.T) {
	automations, validation := newValidationFixture(t)
	ctx := context.Background()

	// 缺失的自动化判为无效而不是报错
	res := validation.ValidateAutomationBeforeRun(ctx, uuid.New())
	if res.IsValid {
		t.Fatal("missing automation should be invalid")
	}

	am, err := automations.Create(ctx, &AutomationRequest{
		Name:        "Valid one",
		TriggerType: "card_created",
		Steps: []AutomationStepRequest{
			{Value: "notify", Data: map[string]interface{}{"message": "hi"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	res = validation.ValidateAutomationBeforeRun(ctx, am.ID)
	if !res.IsValid {
		t.Fatalf("expected valid automation, got %+v", res)
	}

	// 超过步数上限
	over, err := automations.Create(ctx, &AutomationRequest{
		Name:        "Too long",
		TriggerType: "card_created",
		Steps: []AutomationStepRequest{
			{Value: "notify", Data: map[string]interface{}{"message": "1"}},
			{Value: "notify", Data: map[string]interface{}{"message": "2"}},
			{Value: "notify", Data: map[string]interface{}{"message": "3"}},
			{Value: "notify", Data: map[string]interface{}{"message": "4"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	res = validation.ValidateAutomationBeforeRun(ctx, over.ID)
	want := fmt.Sprintf("Automation cannot have more than %d steps", maxAutomationSteps)
	if res.IsValid || res.Message != want {
		t.Fatalf("unexpected result: %+v", res)
	}

	// 空触发器
	empty, err := automations.Create(ctx, &AutomationRequest{Name: "No trigger"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	res = validation.ValidateAutomationBeforeRun(ctx, empty.ID)
	if res.IsValid || res.Message != "Automation trigger is empty" {
		t.Fatalf("unexpected result: %+v", res)
	}

	// 步骤引用已拆除的处理器
	stale, err := automations.Create(ctx, &AutomationRequest{
		Name:        "Stale handler",
		TriggerType: "card_created",
		Steps: []AutomationStepRequest{
			{Value: "fax_document", Data: map[string]interface{}{}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	res = validation.ValidateAutomationBeforeRun(ctx, stale.ID)
	if res.IsValid || res.Message != `No action handler registered for "fax_document"` {
		t.Fatalf("unexpected result: %+v", res)
	}
}
