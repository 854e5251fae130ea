package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kanbo/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Workspace{}, &models.Space{}, &models.List{},
		&models.Stage{}, &models.ListField{}, &models.ListMember{},
		&models.Card{}, &models.CardComment{},
		&models.Automation{}, &models.AutomationStep{}, &models.AutomationLocation{},
		&models.AutomationRun{}, &models.AutomationStepRun{}, &models.AutomationJob{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func createChainFixture(t *testing.T, svc *AutomationService, listID uuid.UUID) *models.Automation {
	t.Helper()
	am, err := svc.Create(context.Background(), &AutomationRequest{
		Name:        "Escalate bugs",
		TriggerType: "card_created",
		Steps: []AutomationStepRequest{
			{Value: "set_field", Data: map[string]interface{}{"field_id": "f1", "value": "high"}},
			{Value: "notify", Data: map[string]interface{}{"message": "created {{trigger.card.title}}"}},
		},
		Locations: []AutomationLocationRequest{
			{LocationID: listID, LocationType: models.LocationTypeList},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return am
}

func TestAutomationService_CreateBuildsChain(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)
	listID := uuid.New()

	am := createChainFixture(t, svc, listID)

	if am.TriggerStep == nil || am.TriggerStep.Value == nil || *am.TriggerStep.Value != "card_created" {
		t.Fatalf("unexpected trigger step: %+v", am.TriggerStep)
	}
	if len(am.Steps) != 2 {
		t.Fatalf("expected 2 action steps, got %d", len(am.Steps))
	}
	// 链表顺序：触发器 → set_field → notify → nil
	if am.TriggerStep.NextStepID == nil || *am.TriggerStep.NextStepID != am.Steps[0].ID {
		t.Fatal("trigger does not point at first action")
	}
	if am.Steps[0].NextStepID == nil || *am.Steps[0].NextStepID != am.Steps[1].ID {
		t.Fatal("first action does not point at second")
	}
	if am.Steps[1].NextStepID != nil {
		t.Fatal("final step must have nil next pointer")
	}
	if *am.Steps[0].Value != "set_field" || *am.Steps[1].Value != "notify" {
		t.Fatalf("steps out of order: %v, %v", *am.Steps[0].Value, *am.Steps[1].Value)
	}
	if len(am.Locations) != 1 || am.Locations[0].LocationID != listID {
		t.Fatalf("unexpected locations: %+v", am.Locations)
	}
}

func TestAutomationService_CreateHonorsDisabledFlag(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)

	disabled := false
	am, err := svc.Create(context.Background(), &AutomationRequest{
		Name:        "Dormant",
		TriggerType: "card_created",
		Enabled:     &disabled,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if am.Enabled {
		t.Fatal("created automation should be disabled")
	}

	// 直接查行，确认 false 确实落库而不是被列默认值吃掉
	var row models.Automation
	if err := db.First(&row, "id = ?", am.ID).Error; err != nil {
		t.Fatalf("reload automation: %v", err)
	}
	if row.Enabled {
		t.Fatal("persisted row should keep enabled=false")
	}
}

func TestAutomationService_UpdateReordersChain(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)
	am := createChainFixture(t, svc, uuid.New())

	first, second := am.Steps[0], am.Steps[1]

	// 交换两个动作的顺序
	updated, err := svc.Update(context.Background(), am.ID, &AutomationRequest{
		Name:        am.Name,
		TriggerType: am.TriggerType,
		Steps: []AutomationStepRequest{
			{ID: &second.ID, Value: "notify", Data: map[string]interface{}{"message": "x"}},
			{ID: &first.ID, Value: "set_field", Data: map[string]interface{}{"field_id": "f1", "value": "low"}},
		},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(updated.Steps) != 2 {
		t.Fatalf("expected 2 steps after reorder, got %d", len(updated.Steps))
	}
	if updated.Steps[0].ID != second.ID || updated.Steps[1].ID != first.ID {
		t.Fatal("chain order does not follow the request")
	}
	if updated.Steps[1].NextStepID != nil {
		t.Fatal("new final step must have nil next pointer")
	}
}

func TestAutomationService_UpdateDropsRemovedSteps(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)
	am := createChainFixture(t, svc, uuid.New())

	keep := am.Steps[0]
	updated, err := svc.Update(context.Background(), am.ID, &AutomationRequest{
		Name:        am.Name,
		TriggerType: am.TriggerType,
		Steps: []AutomationStepRequest{
			{ID: &keep.ID, Value: "set_field", Data: map[string]interface{}{"field_id": "f1", "value": "high"}},
		},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(updated.Steps) != 1 || updated.Steps[0].ID != keep.ID {
		t.Fatalf("expected single kept step, got %+v", updated.Steps)
	}
	if updated.Steps[0].NextStepID != nil {
		t.Fatal("kept step should be the chain tail")
	}

	// 移除的步骤是软删除，历史行保留
	var total, live int64
	db.Unscoped().Model(&models.AutomationStep{}).Where("automation_id = ?", am.ID).Count(&total)
	db.Model(&models.AutomationStep{}).Where("automation_id = ?", am.ID).Count(&live)
	if total != 3 {
		t.Fatalf("expected 3 historic step rows (trigger + 2 actions), got %d", total)
	}
	if live != 2 {
		t.Fatalf("expected 2 live step rows (trigger + kept action), got %d", live)
	}
}

func TestAutomationService_UpdateRelinksAroundRemovedMiddleStep(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)

	am, err := svc.Create(context.Background(), &AutomationRequest{
		Name:        "Three step chain",
		TriggerType: "card_created",
		Steps: []AutomationStepRequest{
			{Value: "set_field", Data: map[string]interface{}{"field_id": "f1", "value": "a"}},
			{Value: "add_comment", Data: map[string]interface{}{"content": "b"}},
			{Value: "notify", Data: map[string]interface{}{"message": "c"}},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	first, third := am.Steps[0], am.Steps[2]

	// 去掉中间一步，第一步应直接指向原第三步
	updated, err := svc.Update(context.Background(), am.ID, &AutomationRequest{
		Name:        am.Name,
		TriggerType: am.TriggerType,
		Steps: []AutomationStepRequest{
			{ID: &first.ID, Value: "set_field", Data: map[string]interface{}{"field_id": "f1", "value": "a"}},
			{ID: &third.ID, Value: "notify", Data: map[string]interface{}{"message": "c"}},
		},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(updated.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(updated.Steps))
	}
	if updated.Steps[0].ID != first.ID || updated.Steps[1].ID != third.ID {
		t.Fatal("chain should keep first and former third step in order")
	}
	if updated.Steps[0].NextStepID == nil || *updated.Steps[0].NextStepID != third.ID {
		t.Fatal("first step should point directly at the former third step")
	}
	if updated.Steps[1].NextStepID != nil {
		t.Fatal("tail step must have nil next pointer")
	}
}

func TestAutomationService_DuplicateIsIsolated(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)
	src := createChainFixture(t, svc, uuid.New())

	dup, err := svc.Duplicate(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}

	if dup.ID == src.ID {
		t.Fatal("duplicate must get a fresh id")
	}
	if dup.Name != "Copy of "+src.Name {
		t.Fatalf("unexpected duplicate name: %q", dup.Name)
	}
	if len(dup.Steps) != len(src.Steps) {
		t.Fatalf("step count mismatch: %d vs %d", len(dup.Steps), len(src.Steps))
	}
	for i := range dup.Steps {
		if dup.Steps[i].ID == src.Steps[i].ID {
			t.Fatal("duplicate steps must get fresh ids")
		}
		if *dup.Steps[i].Value != *src.Steps[i].Value {
			t.Fatalf("step %d value mismatch", i)
		}
	}

	// 修改副本不影响原件
	if _, err := svc.Update(context.Background(), dup.ID, &AutomationRequest{
		Name:        dup.Name,
		TriggerType: dup.TriggerType,
		Steps:       []AutomationStepRequest{},
	}); err != nil {
		t.Fatalf("Update of duplicate failed: %v", err)
	}
	reloaded, err := svc.FindOne(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if len(reloaded.Steps) != 2 {
		t.Fatalf("original chain was affected, got %d steps", len(reloaded.Steps))
	}
}

func TestAutomationService_FindAllInListsAndSpaces(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)
	ctx := context.Background()

	listID := uuid.New()
	spaceID := uuid.New()

	byList := createChainFixture(t, svc, listID)

	bySpace, err := svc.Create(ctx, &AutomationRequest{
		Name:        "Space wide",
		TriggerType: "card_created",
		Locations: []AutomationLocationRequest{
			{LocationID: spaceID, LocationType: models.LocationTypeSpace},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	disabled := false
	if _, err := svc.Create(ctx, &AutomationRequest{
		Name:        "Disabled",
		TriggerType: "card_created",
		Enabled:     &disabled,
		Locations: []AutomationLocationRequest{
			{LocationID: listID, LocationType: models.LocationTypeList},
		},
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Create(ctx, &AutomationRequest{
		Name:        "Other trigger",
		TriggerType: "card_moved",
		Locations: []AutomationLocationRequest{
			{LocationID: listID, LocationType: models.LocationTypeList},
		},
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := svc.FindAllInListsAndSpaces(ctx, "card_created",
		[]uuid.UUID{listID}, []uuid.UUID{spaceID})
	if err != nil {
		t.Fatalf("FindAllInListsAndSpaces failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	found := map[uuid.UUID]bool{}
	for _, a := range got {
		found[a.ID] = true
	}
	if !found[byList.ID] || !found[bySpace.ID] {
		t.Fatalf("wrong automations matched: %v", found)
	}

	// 空位置集合直接返回空
	none, err := svc.FindAllInListsAndSpaces(ctx, "card_created", nil, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v (%v)", none, err)
	}
}

func TestAutomationService_DeleteKeepsLedger(t *testing.T) {
	db := newTestDB(t)
	svc := NewAutomationService(db, nil)
	am := createChainFixture(t, svc, uuid.New())

	run := &models.AutomationRun{AutomationID: am.ID, CardID: uuid.New(), Status: models.RunStatusSuccess}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}

	if err := svc.Delete(context.Background(), am.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.FindOne(context.Background(), am.ID); err != ErrAutomationNotFound {
		t.Fatalf("expected ErrAutomationNotFound, got %v", err)
	}

	// 运行账本在删除后保留
	var runs int64
	db.Model(&models.AutomationRun{}).Where("automation_id = ?", am.ID).Count(&runs)
	if runs != 1 {
		t.Fatalf("run ledger should survive deletion, got %d rows", runs)
	}
}
