package automation_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kanbo/internal/automation"
	autohandlers "kanbo/internal/automation/handlers"
	"kanbo/internal/models"
	"kanbo/internal/services"
)

type executorEnv struct {
	db       *gorm.DB
	executor *automation.Executor
	svc      *services.AutomationService
	registry *automation.Registry
	list     *models.List
	card     *models.Card
}

// feedStub 收集执行器推送的运行状态
type feedStub struct {
	runs []*models.AutomationRun
}

func (f *feedStub) NotifyRun(run *models.AutomationRun) { f.runs = append(f.runs, run) }

func newExecutorEnv(t *testing.T) (*executorEnv, *feedStub) {
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
		t.Fatalf("migrate: %v", err)
	}

	list := &models.List{Name: "Sprint", SpaceID: uuid.New()}
	if err := db.Create(list).Error; err != nil {
		t.Fatalf("create list: %v", err)
	}
	card := &models.Card{ListID: list.ID, Title: "Ship it"}
	if err := db.Create(card).Error; err != nil {
		t.Fatalf("create card: %v", err)
	}

	registry := automation.NewRegistry()
	autohandlers.RegisterAll(registry, automation.NewToolbox(db, nil))
	svc := services.NewAutomationService(db, nil)
	executor := automation.NewExecutor(db, nil, registry, svc)
	feed := &feedStub{}
	executor.SetNotifier(feed)

	return &executorEnv{db: db, executor: executor, svc: svc, registry: registry, list: list, card: card}, feed
}

func (e *executorEnv) job(t *testing.T, am *models.Automation) *models.AutomationJob {
	t.Helper()
	return &models.AutomationJob{
		AutomationID: am.ID,
		CardID:       e.card.ID,
		Payload: automation.EncodeData(map[string]interface{}{
			"card": map[string]interface{}{
				"id":    e.card.ID.String(),
				"title": e.card.Title,
			},
		}),
	}
}

func TestExecutor_RunsChainAndResolvesPlaceholders(t *testing.T) {
	env, feed := newExecutorEnv(t)
	fieldID := uuid.New().String()

	am, err := env.svc.Create(context.Background(), &services.AutomationRequest{
		Name:        "Escalate",
		TriggerType: "card_created",
		Steps: []services.AutomationStepRequest{
			{Value: "set_field", Data: map[string]interface{}{"field_id": fieldID, "value": "high"}},
			{Value: "add_comment", Data: map[string]interface{}{
				"content": "{{trigger.card.title}} marked {{step_1.value}}",
			}},
		},
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}

	if err := env.executor.ExecuteJob(context.Background(), env.job(t, am)); err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}

	// 字段写入了卡片
	var card models.Card
	if err := env.db.First(&card, "id = ?", env.card.ID).Error; err != nil {
		t.Fatalf("load card: %v", err)
	}
	data := automation.DecodeData(card.Data)
	if data[fieldID] != "high" {
		t.Fatalf("card data = %v", data)
	}

	// 评论内容经过了占位符解析
	var comment models.CardComment
	if err := env.db.First(&comment, "card_id = ?", env.card.ID).Error; err != nil {
		t.Fatalf("load comment: %v", err)
	}
	if comment.Content != "Ship it marked high" {
		t.Fatalf("comment content = %q", comment.Content)
	}
	if comment.Kind != "system" || comment.UserID != nil {
		t.Fatalf("comment should be a system comment: %+v", comment)
	}

	// 审计账本：一次运行，两条步骤记录，顺序与链一致
	var run models.AutomationRun
	if err := env.db.First(&run, "automation_id = ?", am.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != models.RunStatusSuccess {
		t.Fatalf("run status = %q", run.Status)
	}
	var stepRuns []models.AutomationStepRun
	if err := env.db.Order("order_index ASC").Find(&stepRuns, "run_id = ?", run.ID).Error; err != nil {
		t.Fatalf("load step runs: %v", err)
	}
	if len(stepRuns) != 2 {
		t.Fatalf("expected 2 step runs, got %d", len(stepRuns))
	}
	for i, sr := range stepRuns {
		if sr.OrderIndex != i || sr.Status != models.RunStatusSuccess {
			t.Fatalf("step run %d = %+v", i, sr)
		}
	}

	if len(feed.runs) != 1 || feed.runs[0].Status != models.RunStatusSuccess {
		t.Fatalf("feed notifications = %+v", feed.runs)
	}
}

func TestExecutor_MidChainFailureKeepsEarlierEffects(t *testing.T) {
	env, feed := newExecutorEnv(t)

	am, err := env.svc.Create(context.Background(), &services.AutomationRequest{
		Name:        "Partially broken",
		TriggerType: "card_created",
		Steps: []services.AutomationStepRequest{
			{Value: "add_comment", Data: map[string]interface{}{"content": "first step ran"}},
			{Value: "assign_member", Data: map[string]interface{}{"assignee_id": "not-a-number"}},
		},
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}

	if err := env.executor.ExecuteJob(context.Background(), env.job(t, am)); err == nil {
		t.Fatal("expected ExecuteJob to fail")
	}

	// 第一步的副作用保留，不做补偿回滚
	var count int64
	if err := env.db.Model(&models.CardComment{}).
		Where("card_id = ?", env.card.ID).Count(&count).Error; err != nil {
		t.Fatalf("count comments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 comment, got %d", count)
	}

	var run models.AutomationRun
	if err := env.db.First(&run, "automation_id = ?", am.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != models.RunStatusFailed || run.Error == nil {
		t.Fatalf("run = %+v", run)
	}

	var stepRuns []models.AutomationStepRun
	if err := env.db.Order("order_index ASC").Find(&stepRuns, "run_id = ?", run.ID).Error; err != nil {
		t.Fatalf("load step runs: %v", err)
	}
	if len(stepRuns) != 2 {
		t.Fatalf("expected 2 step runs, got %d", len(stepRuns))
	}
	if stepRuns[0].Status != models.RunStatusSuccess {
		t.Fatalf("first step run = %+v", stepRuns[0])
	}
	if stepRuns[1].Status != models.RunStatusFailed || stepRuns[1].Error == nil {
		t.Fatalf("second step run = %+v", stepRuns[1])
	}

	if len(feed.runs) != 1 || feed.runs[0].Status != models.RunStatusFailed {
		t.Fatalf("feed notifications = %+v", feed.runs)
	}
}

// combustAction 执行即 panic，用来验证账本的最终态
type combustAction struct{}

func (a *combustAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{Type: "combust", Label: "Combust"}
}

func (a *combustAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	return nil, nil
}

func (a *combustAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (a *combustAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	panic("handler exploded")
}

func TestExecutor_PanickingStepFinalizesRun(t *testing.T) {
	env, feed := newExecutorEnv(t)
	env.registry.RegisterAction(&combustAction{})

	am, err := env.svc.Create(context.Background(), &services.AutomationRequest{
		Name:        "Volatile",
		TriggerType: "card_created",
		Steps: []services.AutomationStepRequest{
			{Value: "combust", Data: map[string]interface{}{}},
		},
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}

	err = env.executor.ExecuteJob(context.Background(), env.job(t, am))
	if err == nil {
		t.Fatal("expected ExecuteJob to surface the panic as an error")
	}

	// 运行记录必须收尾为 failed 并带上错误，不能停在 running
	var run models.AutomationRun
	if err := env.db.First(&run, "automation_id = ?", am.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != models.RunStatusFailed {
		t.Fatalf("run status = %q, want failed", run.Status)
	}
	if run.Error == nil || *run.Error == "" {
		t.Fatal("run error should be populated")
	}

	if len(feed.runs) != 1 || feed.runs[0].Status != models.RunStatusFailed {
		t.Fatalf("feed notifications = %+v", feed.runs)
	}
}

func TestExecutor_MissingCardFailsRun(t *testing.T) {
	env, _ := newExecutorEnv(t)

	am, err := env.svc.Create(context.Background(), &services.AutomationRequest{
		Name:        "Orphan",
		TriggerType: "card_created",
		Steps: []services.AutomationStepRequest{
			{Value: "notify", Data: map[string]interface{}{"message": "x"}},
		},
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}

	job := &models.AutomationJob{AutomationID: am.ID, CardID: uuid.New()}
	if err := env.executor.ExecuteJob(context.Background(), job); err == nil {
		t.Fatal("expected failure for missing card")
	}

	var run models.AutomationRun
	if err := env.db.First(&run, "automation_id = ?", am.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != models.RunStatusFailed {
		t.Fatalf("run status = %q", run.Status)
	}
}
