package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/events"
	"kanbo/internal/models"
)

var ErrCardNotFound = errors.New("card not found")

// CardRequest 创建/更新卡片的请求
type CardRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	StageID     *uuid.UUID             `json:"stage_id"`
	AssigneeID  *uint                  `json:"assignee_id"`
	Data        map[string]interface{} `json:"data"`
	DueDate     *time.Time             `json:"due_date"`
}

// CardService is thin CRUD over cards plus the event publication the
// automation engine hangs off: every mutation that automations can react to
// goes out on the bus after commit.
type CardService struct {
	db     *gorm.DB
	logger *logrus.Logger
	bus    *events.Bus
}

func NewCardService(db *gorm.DB, logger *logrus.Logger, bus *events.Bus) *CardService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CardService{db: db, logger: logger, bus: bus}
}

func (s *CardService) Get(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	var card models.Card
	err := s.db.WithContext(ctx).
		Preload("Stage").
		Preload("Assignee").
		Preload("Comments").
		First(&card, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

func (s *CardService) ListByList(ctx context.Context, listID uuid.UUID) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).
		Where("list_id = ?", listID).
		Order("created_at ASC").
		Find(&cards).Error
	return cards, err
}

func (s *CardService) Create(ctx context.Context, listID uuid.UUID, creatorID uint, req *CardRequest) (*models.Card, error) {
	if req == nil || req.Title == "" {
		return nil, fmt.Errorf("title required")
	}
	card := &models.Card{
		ListID:      listID,
		StageID:     req.StageID,
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		CreatorID:   creatorID,
		DueDate:     req.DueDate,
	}
	if req.Data != nil {
		raw, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		card.Data = raw
	}
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, err
	}

	s.publish(ctx, events.CardCreated, card, nil)
	return card, nil
}

// Update merges scalar fields and diffs custom field values, emitting one
// field_updated event per changed field.
func (s *CardService) Update(ctx context.Context, id uuid.UUID, req *CardRequest) (*models.Card, error) {
	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.DueDate != nil {
		updates["due_date"] = req.DueDate
	}

	var changedFields map[string]interface{}
	if req.Data != nil {
		old := map[string]interface{}{}
		if len(card.Data) > 0 {
			_ = json.Unmarshal(card.Data, &old)
		}
		changedFields = map[string]interface{}{}
		for k, v := range req.Data {
			if prev, ok := old[k]; !ok || fmt.Sprintf("%v", prev) != fmt.Sprintf("%v", v) {
				changedFields[k] = v
			}
			old[k] = v
		}
		raw, err := json.Marshal(old)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		updates["data"] = raw
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(card).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	card, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.CardUpdated, card, nil)
	for fieldID, value := range changedFields {
		s.publish(ctx, events.FieldUpdated, card, map[string]interface{}{
			"field_id": fieldID,
			"value":    value,
		})
	}
	return card, nil
}

// Move puts the card into another stage and publishes the transition.
func (s *CardService) Move(ctx context.Context, id uuid.UUID, stageID uuid.UUID) (*models.Card, error) {
	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var from string
	if card.StageID != nil {
		from = card.StageID.String()
	}
	if err := s.db.WithContext(ctx).Model(card).Update("stage_id", stageID).Error; err != nil {
		return nil, err
	}
	card.StageID = &stageID

	s.publish(ctx, events.CardMoved, card, map[string]interface{}{
		"from_stage_id": from,
		"to_stage_id":   stageID.String(),
	})
	return card, nil
}

// Assign sets the card's assignee and publishes the assignment.
func (s *CardService) Assign(ctx context.Context, id uuid.UUID, assigneeID uint) (*models.Card, error) {
	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(card).Update("assignee_id", assigneeID).Error; err != nil {
		return nil, err
	}
	card.AssigneeID = &assigneeID

	s.publish(ctx, events.CardAssigned, card, map[string]interface{}{
		"assignee_id": fmt.Sprintf("%d", assigneeID),
	})
	return card, nil
}

func (s *CardService) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Card{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	return nil
}

// AddComment leaves a user comment; comments do not feed automations.
func (s *CardService) AddComment(ctx context.Context, cardID uuid.UUID, userID uint, content string) (*models.CardComment, error) {
	if content == "" {
		return nil, fmt.Errorf("content required")
	}
	comment := &models.CardComment{
		CardID:  cardID,
		UserID:  &userID,
		Content: content,
		Kind:    "comment",
	}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// publish merges the card snapshot into extra and hands the event to the
// bus. The dispatcher decides fast and defers execution, so publishing
// inline keeps the request path cheap.
func (s *CardService) publish(ctx context.Context, eventType string, card *models.Card, extra map[string]interface{}) {
	if s.bus == nil {
		return
	}
	payload := map[string]interface{}{
		"card": cardSnapshot(card),
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.bus.Publish(ctx, events.Event{Type: eventType, CardID: card.ID, Payload: payload})
}

// cardSnapshot is the card shape placed into trigger payloads; it is what
// {{trigger.card.*}} placeholders resolve against.
func cardSnapshot(card *models.Card) map[string]interface{} {
	snap := map[string]interface{}{
		"id":      card.ID.String(),
		"title":   card.Title,
		"list_id": card.ListID.String(),
	}
	if card.StageID != nil {
		snap["stage_id"] = card.StageID.String()
	}
	if card.AssigneeID != nil {
		snap["assignee_id"] = fmt.Sprintf("%d", *card.AssigneeID)
	}
	if len(card.Data) > 0 {
		data := map[string]interface{}{}
		if err := json.Unmarshal(card.Data, &data); err == nil {
			snap["data"] = data
		}
	}
	return snap
}
