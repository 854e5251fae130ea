package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kanbo/internal/events"
	"kanbo/internal/models"
	"kanbo/internal/services"
)

// eventRecorder 记录总线上发布的全部事件
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(_ context.Context, evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newCardTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *eventRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:card_" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Workspace{}, &models.Space{}, &models.List{},
		&models.Stage{}, &models.ListField{}, &models.ListMember{},
		&models.Card{}, &models.CardComment{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	bus := events.NewBus(nil)
	recorder := &eventRecorder{}
	bus.Subscribe("card.*", recorder.record)

	handler := NewCardHandler(services.NewCardService(db, nil, bus), logrus.New())
	router := gin.New()
	RegisterCardRoutes(router.Group("/api"), handler)
	return router, db, recorder
}

func seedCardBoard(t *testing.T, db *gorm.DB) (*models.List, *models.Stage, *models.Stage) {
	t.Helper()
	list := &models.List{Name: "Sprint"}
	if err := db.Create(list).Error; err != nil {
		t.Fatalf("create list: %v", err)
	}
	todo := &models.Stage{ListID: list.ID, Name: "Todo", Position: 0}
	done := &models.Stage{ListID: list.ID, Name: "Done", Position: 1}
	if err := db.Create(todo).Error; err != nil {
		t.Fatalf("create stage: %v", err)
	}
	if err := db.Create(done).Error; err != nil {
		t.Fatalf("create stage: %v", err)
	}
	return list, todo, done
}

func TestCardHandler_CreateMoveLifecycle(t *testing.T) {
	router, db, recorder := newCardTestRouter(t)
	list, todo, done := seedCardBoard(t, db)

	payload := map[string]interface{}{
		"title":    "Fix login",
		"stage_id": todo.ID.String(),
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/api/lists/"+list.ID.String()+"/cards", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d, body: %s", w.Code, w.Body.String())
	}
	var card models.Card
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	assert.Equal(t, "Fix login", card.Title)

	// 移动卡片触发 card.moved 事件
	body, _ = json.Marshal(map[string]interface{}{"stage_id": done.ID.String()})
	req = httptest.NewRequest("POST", "/api/cards/"+card.ID.String()+"/move", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var moved models.Card
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	if assert.NotNil(t, moved.StageID) {
		assert.Equal(t, done.ID, *moved.StageID)
	}

	assert.Equal(t, []string{events.CardCreated, events.CardMoved}, recorder.types())
}

func TestCardHandler_Get_NotFound(t *testing.T) {
	router, _, _ := newCardTestRouter(t)

	req := httptest.NewRequest("GET", "/api/cards/8e7d26fa-6f76-4b6e-9e2f-000000000001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCardHandler_Move_MissingStage(t *testing.T) {
	router, db, _ := newCardTestRouter(t)
	list, todo, _ := seedCardBoard(t, db)

	card := &models.Card{ListID: list.ID, StageID: &todo.ID, Title: "Stuck"}
	if err := db.Create(card).Error; err != nil {
		t.Fatalf("create card: %v", err)
	}

	// stage_id 为必填字段
	req := httptest.NewRequest("POST", "/api/cards/"+card.ID.String()+"/move", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCardHandler_AddComment(t *testing.T) {
	router, db, _ := newCardTestRouter(t)
	list, todo, _ := seedCardBoard(t, db)

	card := &models.Card{ListID: list.ID, StageID: &todo.ID, Title: "Discuss"}
	if err := db.Create(card).Error; err != nil {
		t.Fatalf("create card: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"content": "looks good"})
	req := httptest.NewRequest("POST", "/api/cards/"+card.ID.String()+"/comments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d, body: %s", w.Code, w.Body.String())
	}

	var count int64
	if err := db.Model(&models.CardComment{}).Where("card_id = ?", card.ID).Count(&count).Error; err != nil {
		t.Fatalf("count comments: %v", err)
	}
	assert.Equal(t, int64(1), count)
}
