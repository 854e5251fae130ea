package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/models"
)

var ErrListNotFound = errors.New("list not found")

// ListFieldRequest 字段定义请求
type ListFieldRequest struct {
	Title    string   `json:"title"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Position int      `json:"position"`
}

// ListService 列表、阶段、字段与成员管理。字段与阶段的增删直接改变
// 自动化的校验结果，引用陈旧字段的自动化会在下一次事件上被跳过。
type ListService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewListService(db *gorm.DB, logger *logrus.Logger) *ListService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ListService{db: db, logger: logger}
}

func (s *ListService) Create(ctx context.Context, spaceID uuid.UUID, name string) (*models.List, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	list := &models.List{SpaceID: spaceID, Name: name}
	if err := s.db.WithContext(ctx).Create(list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListService) Get(ctx context.Context, id uuid.UUID) (*models.List, error) {
	var list models.List
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Members.User").
		First(&list, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListNotFound
		}
		return nil, err
	}
	return &list, nil
}

func (s *ListService) ListBySpace(ctx context.Context, spaceID uuid.UUID) ([]models.List, error) {
	var lists []models.List
	err := s.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("position ASC, created_at ASC").
		Find(&lists).Error
	return lists, err
}

func (s *ListService) Update(ctx context.Context, id uuid.UUID, name string, position *int) (*models.List, error) {
	list, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if position != nil {
		updates["position"] = *position
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(list).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *ListService) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.List{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrListNotFound
	}
	return nil
}

// AddStage 在列表尾部追加一个阶段
func (s *ListService) AddStage(ctx context.Context, listID uuid.UUID, name string) (*models.Stage, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Stage{}).Where("list_id = ?", listID).Count(&count).Error; err != nil {
		return nil, err
	}
	stage := &models.Stage{ListID: listID, Name: name, Position: int(count)}
	if err := s.db.WithContext(ctx).Create(stage).Error; err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *ListService) DeleteStage(ctx context.Context, stageID uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.Stage{}, "id = ?", stageID).Error
}

// AddField 定义一个自定义字段；select 类型带可选值
func (s *ListService) AddField(ctx context.Context, listID uuid.UUID, req *ListFieldRequest) (*models.ListField, error) {
	if req == nil || req.Title == "" || req.Kind == "" {
		return nil, fmt.Errorf("title and kind required")
	}
	field := &models.ListField{
		ListID:   listID,
		Title:    req.Title,
		Kind:     req.Kind,
		Required: req.Required,
		Position: req.Position,
	}
	if len(req.Options) > 0 {
		raw, err := json.Marshal(req.Options)
		if err != nil {
			return nil, err
		}
		field.Options = raw
	}
	if err := s.db.WithContext(ctx).Create(field).Error; err != nil {
		return nil, err
	}
	return field, nil
}

func (s *ListService) UpdateField(ctx context.Context, fieldID uuid.UUID, req *ListFieldRequest) (*models.ListField, error) {
	var field models.ListField
	if err := s.db.WithContext(ctx).First(&field, "id = ?", fieldID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("field not found")
		}
		return nil, err
	}
	updates := map[string]interface{}{"required": req.Required}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Kind != "" {
		updates["kind"] = req.Kind
	}
	if len(req.Options) > 0 {
		raw, err := json.Marshal(req.Options)
		if err != nil {
			return nil, err
		}
		updates["options"] = raw
	}
	if err := s.db.WithContext(ctx).Model(&field).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &field, nil
}

// DeleteField 删除字段定义。卡片 Data 中的旧值不清理，由自动化校验
// 在运行前兜底。
func (s *ListService) DeleteField(ctx context.Context, fieldID uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.ListField{}, "id = ?", fieldID).Error
}

func (s *ListService) AddMember(ctx context.Context, listID uuid.UUID, userID uint, role string) (*models.ListMember, error) {
	if role == "" {
		role = "member"
	}
	var existing models.ListMember
	err := s.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	member := &models.ListMember{ListID: listID, UserID: userID, Role: role}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, err
	}
	return member, nil
}

func (s *ListService) RemoveMember(ctx context.Context, listID uuid.UUID, userID uint) error {
	return s.db.WithContext(ctx).
		Where("list_id = ? AND user_id = ?", listID, userID).
		Delete(&models.ListMember{}).Error
}
