package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/models"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrSpaceNotFound     = errors.New("space not found")
)

// WorkspaceService 工作区与空间的层级管理
type WorkspaceService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewWorkspaceService(db *gorm.DB, logger *logrus.Logger) *WorkspaceService {
	if logger == nil {
		logger = logrus.New()
	}
	return &WorkspaceService{db: db, logger: logger}
}

func (s *WorkspaceService) CreateWorkspace(ctx context.Context, name string, ownerID uint) (*models.Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	ws := &models.Workspace{Name: name, OwnerID: ownerID}
	if err := s.db.WithContext(ctx).Create(ws).Error; err != nil {
		return nil, err
	}
	return ws, nil
}

func (s *WorkspaceService) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var ws models.Workspace
	err := s.db.WithContext(ctx).Preload("Spaces").First(&ws, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (s *WorkspaceService) ListWorkspaces(ctx context.Context, ownerID uint) ([]models.Workspace, error) {
	var list []models.Workspace
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&list).Error
	return list, err
}

func (s *WorkspaceService) UpdateWorkspace(ctx context.Context, id uuid.UUID, name string) (*models.Workspace, error) {
	ws, err := s.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		if err := s.db.WithContext(ctx).Model(ws).Update("name", name).Error; err != nil {
			return nil, err
		}
		ws.Name = name
	}
	return ws, nil
}

func (s *WorkspaceService) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Workspace{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWorkspaceNotFound
	}
	return nil
}

func (s *WorkspaceService) CreateSpace(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Space, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	if _, err := s.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	sp := &models.Space{WorkspaceID: workspaceID, Name: name}
	if err := s.db.WithContext(ctx).Create(sp).Error; err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *WorkspaceService) GetSpace(ctx context.Context, id uuid.UUID) (*models.Space, error) {
	var sp models.Space
	err := s.db.WithContext(ctx).Preload("Lists").First(&sp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSpaceNotFound
		}
		return nil, err
	}
	return &sp, nil
}

func (s *WorkspaceService) ListSpaces(ctx context.Context, workspaceID uuid.UUID) ([]models.Space, error) {
	var list []models.Space
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("position ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

func (s *WorkspaceService) UpdateSpace(ctx context.Context, id uuid.UUID, name string, position *int) (*models.Space, error) {
	sp, err := s.GetSpace(ctx, id)
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
		if err := s.db.WithContext(ctx).Model(sp).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetSpace(ctx, id)
}

func (s *WorkspaceService) DeleteSpace(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Space{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSpaceNotFound
	}
	return nil
}
