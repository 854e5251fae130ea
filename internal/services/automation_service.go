package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/automation"
	"kanbo/internal/models"
)

// ErrAutomationNotFound is surfaced as 404 at the handler boundary.
var ErrAutomationNotFound = errors.New("automation not found")

// AutomationStepRequest is one incoming action step. A non-nil ID merges
// into the matching existing step; a nil ID creates a new one.
type AutomationStepRequest struct {
	ID    *uuid.UUID             `json:"id"`
	Value string                 `json:"value"`
	Data  map[string]interface{} `json:"data"`
}

// AutomationLocationRequest scopes an automation to a list or space.
type AutomationLocationRequest struct {
	LocationID   uuid.UUID `json:"location_id" binding:"required"`
	LocationType string    `json:"location_type" binding:"required"`
}

// AutomationRequest 创建/更新自动化的请求
type AutomationRequest struct {
	Name        string                      `json:"name" binding:"required"`
	TriggerType string                      `json:"trigger_type"`
	Conditions  map[string]interface{}      `json:"conditions"`
	TriggerData map[string]interface{}      `json:"trigger_data"`
	Steps       []AutomationStepRequest     `json:"steps"`
	Locations   []AutomationLocationRequest `json:"locations"`
	Enabled     *bool                       `json:"enabled"`
	CreatedBy   string                      `json:"-"`
}

// AutomationService owns automation definitions: metadata, locations and
// the persisted step chain. Every mutation runs in one transaction so the
// chain is never observably half-relinked.
type AutomationService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{db: db, logger: logger}
}

// FindOne loads the automation with its trigger, locations and the full
// action chain. The chain is rebuilt with a single recursive query instead
// of N sequential round-trips; the depth bound caps traversal of corrupted
// (cyclic) data.
func (s *AutomationService) FindOne(ctx context.Context, id uuid.UUID) (*models.Automation, error) {
	var am models.Automation
	err := s.db.WithContext(ctx).
		Preload("TriggerStep").
		Preload("Locations").
		First(&am, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAutomationNotFound
		}
		return nil, err
	}

	if am.TriggerStep != nil && am.TriggerStep.NextStepID != nil {
		steps, err := s.loadChain(ctx, *am.TriggerStep.NextStepID)
		if err != nil {
			return nil, err
		}
		am.Steps = steps
	} else {
		am.Steps = []models.AutomationStep{}
	}
	return &am, nil
}

func (s *AutomationService) loadChain(ctx context.Context, headID uuid.UUID) ([]models.AutomationStep, error) {
	var steps []models.AutomationStep
	err := s.db.WithContext(ctx).Raw(`
		WITH RECURSIVE chain AS (
			SELECT s.*, 0 AS depth
			FROM automation_steps s
			WHERE s.id = ? AND s.deleted_at IS NULL
			UNION ALL
			SELECT s.*, c.depth + 1
			FROM automation_steps s
			JOIN chain c ON s.id = c.next_step_id
			WHERE s.deleted_at IS NULL AND c.depth < 50
		)
		SELECT id, automation_id, tag, value, data, next_step_id, created_at, updated_at, deleted_at
		FROM chain ORDER BY depth ASC`, headID).
		Scan(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("load step chain: %w", err)
	}
	return steps, nil
}

// Create inserts the automation, its trigger step (defaulting to an
// empty-condition trigger when none is given), every action step in order
// and the predecessor links, all in one transaction.
func (s *AutomationService) Create(ctx context.Context, req *AutomationRequest) (*models.Automation, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}

	am := &models.Automation{
		Name:        req.Name,
		TriggerType: req.TriggerType,
		Conditions:  automation.EncodeData(req.Conditions),
		Enabled:     true,
		CreatedBy:   req.CreatedBy,
	}
	if req.Enabled != nil {
		am.Enabled = *req.Enabled
	}
	if am.CreatedBy == "" {
		am.CreatedBy = "system"
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(am).Error; err != nil {
			return err
		}

		triggerValue := req.TriggerType
		trigger := &models.AutomationStep{
			AutomationID: am.ID,
			Tag:          models.StepTagTrigger,
			Value:        &triggerValue,
			Data:         automation.EncodeData(req.TriggerData),
		}
		if err := tx.Create(trigger).Error; err != nil {
			return err
		}
		if err := tx.Model(am).Update("trigger_step_id", trigger.ID).Error; err != nil {
			return err
		}
		am.TriggerStepID = &trigger.ID

		prev := trigger
		for i := range req.Steps {
			value := req.Steps[i].Value
			step := &models.AutomationStep{
				AutomationID: am.ID,
				Tag:          models.StepTagAction,
				Value:        &value,
				Data:         automation.EncodeData(req.Steps[i].Data),
			}
			if err := tx.Create(step).Error; err != nil {
				return err
			}
			if err := tx.Model(prev).Update("next_step_id", step.ID).Error; err != nil {
				return err
			}
			prev = step
		}

		for _, loc := range req.Locations {
			row := &models.AutomationLocation{
				AutomationID: am.ID,
				LocationID:   loc.LocationID,
				LocationType: loc.LocationType,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.FindOne(ctx, am.ID)
}

// Update replaces locations, merges scalar fields, replaces the trigger
// step, upserts the incoming action steps and relinks the whole chain to
// the incoming order. Existing steps missing from the request are
// soft-deleted; the final step's next-pointer is explicitly nulled.
func (s *AutomationService) Update(ctx context.Context, id uuid.UUID, req *AutomationRequest) (*models.Automation, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 全量替换作用域
		if err := tx.Where("automation_id = ?", id).Delete(&models.AutomationLocation{}).Error; err != nil {
			return err
		}
		for _, loc := range req.Locations {
			row := &models.AutomationLocation{
				AutomationID: id,
				LocationID:   loc.LocationID,
				LocationType: loc.LocationType,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"name":         req.Name,
			"trigger_type": req.TriggerType,
			"conditions":   automation.EncodeData(req.Conditions),
		}
		if req.Enabled != nil {
			updates["enabled"] = *req.Enabled
		}
		if err := tx.Model(&models.Automation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		if existing.TriggerStep == nil {
			return fmt.Errorf("automation %s has no trigger step", id)
		}
		triggerValue := req.TriggerType
		if err := tx.Model(existing.TriggerStep).Updates(map[string]interface{}{
			"value": triggerValue,
			"data":  automation.EncodeData(req.TriggerData),
		}).Error; err != nil {
			return err
		}

		// 按请求顺序 upsert 动作步骤
		kept := make(map[uuid.UUID]bool, len(req.Steps))
		ordered := make([]uuid.UUID, 0, len(req.Steps))
		for i := range req.Steps {
			in := req.Steps[i]
			value := in.Value
			if in.ID != nil {
				if err := tx.Model(&models.AutomationStep{}).
					Where("id = ? AND automation_id = ?", *in.ID, id).
					Updates(map[string]interface{}{
						"value": value,
						"data":  automation.EncodeData(in.Data),
					}).Error; err != nil {
					return err
				}
				kept[*in.ID] = true
				ordered = append(ordered, *in.ID)
				continue
			}
			step := &models.AutomationStep{
				AutomationID: id,
				Tag:          models.StepTagAction,
				Value:        &value,
				Data:         automation.EncodeData(in.Data),
			}
			if err := tx.Create(step).Error; err != nil {
				return err
			}
			kept[step.ID] = true
			ordered = append(ordered, step.ID)
		}

		// 重建链表指针：触发器 → 第一个动作 → … → 末步指针置空
		prevID := existing.TriggerStep.ID
		for _, stepID := range ordered {
			if err := tx.Model(&models.AutomationStep{}).
				Where("id = ?", prevID).
				Update("next_step_id", stepID).Error; err != nil {
				return err
			}
			prevID = stepID
		}
		if err := tx.Model(&models.AutomationStep{}).
			Where("id = ?", prevID).
			Update("next_step_id", nil).Error; err != nil {
			return err
		}

		// 软删除请求中不再出现的旧步骤，保留其历史行
		for i := range existing.Steps {
			old := existing.Steps[i]
			if kept[old.ID] {
				continue
			}
			if err := tx.Delete(&models.AutomationStep{}, "id = ?", old.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.FindOne(ctx, id)
}

// Delete soft-removes the automation and hard-deletes its location rows in
// one transaction. Steps and the run ledger stay behind for audit.
func (s *AutomationService) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("automation_id = ?", id).Delete(&models.AutomationLocation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Automation{}, "id = ?", id).Error
	})
}

// Duplicate deep-copies an automation's trigger, steps and locations into a
// new automation. Every new row gets a fresh id; chain order is preserved
// with all-new links, so mutating the copy never touches the original.
func (s *AutomationService) Duplicate(ctx context.Context, id uuid.UUID) (*models.Automation, error) {
	src, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}

	dup := &models.Automation{
		Name:        "Copy of " + src.Name,
		TriggerType: src.TriggerType,
		Conditions:  src.Conditions,
		Enabled:     src.Enabled,
		CreatedBy:   src.CreatedBy,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dup).Error; err != nil {
			return err
		}

		var prev *models.AutomationStep
		if src.TriggerStep != nil {
			trigger := &models.AutomationStep{
				AutomationID: dup.ID,
				Tag:          models.StepTagTrigger,
				Value:        src.TriggerStep.Value,
				Data:         src.TriggerStep.Data,
			}
			if err := tx.Create(trigger).Error; err != nil {
				return err
			}
			if err := tx.Model(dup).Update("trigger_step_id", trigger.ID).Error; err != nil {
				return err
			}
			dup.TriggerStepID = &trigger.ID
			prev = trigger
		}

		for i := range src.Steps {
			step := &models.AutomationStep{
				AutomationID: dup.ID,
				Tag:          models.StepTagAction,
				Value:        src.Steps[i].Value,
				Data:         src.Steps[i].Data,
			}
			if err := tx.Create(step).Error; err != nil {
				return err
			}
			if prev != nil {
				if err := tx.Model(prev).Update("next_step_id", step.ID).Error; err != nil {
					return err
				}
			}
			prev = step
		}

		for _, loc := range src.Locations {
			row := &models.AutomationLocation{
				AutomationID: dup.ID,
				LocationID:   loc.LocationID,
				LocationType: loc.LocationType,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.FindOne(ctx, dup.ID)
}

// List 返回全部自动化（按创建时间倒序）
func (s *AutomationService) List(ctx context.Context) ([]models.Automation, error) {
	var out []models.Automation
	err := s.db.WithContext(ctx).
		Preload("TriggerStep").
		Preload("Locations").
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// FindAllInListsAndSpaces is the dispatcher's query: enabled automations
// whose trigger kind matches and whose locations intersect the given list
// or space id sets (an OR across the two location kinds).
func (s *AutomationService) FindAllInListsAndSpaces(ctx context.Context, triggerType string, listIDs, spaceIDs []uuid.UUID) ([]models.Automation, error) {
	if len(listIDs) == 0 && len(spaceIDs) == 0 {
		return []models.Automation{}, nil
	}

	q := s.db.WithContext(ctx).
		Model(&models.Automation{}).
		Distinct("automations.*").
		Joins("JOIN automation_locations al ON al.automation_id = automations.id").
		Where("automations.trigger_type = ? AND automations.enabled = ?", triggerType, true)

	switch {
	case len(listIDs) > 0 && len(spaceIDs) > 0:
		q = q.Where("(al.location_type = ? AND al.location_id IN ?) OR (al.location_type = ? AND al.location_id IN ?)",
			models.LocationTypeList, listIDs, models.LocationTypeSpace, spaceIDs)
	case len(listIDs) > 0:
		q = q.Where("al.location_type = ? AND al.location_id IN ?", models.LocationTypeList, listIDs)
	default:
		q = q.Where("al.location_type = ? AND al.location_id IN ?", models.LocationTypeSpace, spaceIDs)
	}

	var out []models.Automation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Runs reads the append-only ledger for one automation, newest first.
func (s *AutomationService) Runs(ctx context.Context, automationID uuid.UUID, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []models.AutomationRun
	err := s.db.WithContext(ctx).
		Preload("StepRuns", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Where("automation_id = ?", automationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
