package automation

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/models"
)

// Toolbox bundles the lookups every handler needs to resolve the entities
// reachable from an automation's configured locations. Field options are
// derived from the live schema of the targeted lists, so nothing here is
// cached.
type Toolbox struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewToolbox(db *gorm.DB, logger *logrus.Logger) *Toolbox {
	if logger == nil {
		logger = logrus.New()
	}
	return &Toolbox{db: db, logger: logger}
}

func (t *Toolbox) DB() *gorm.DB           { return t.db }
func (t *Toolbox) Logger() *logrus.Logger { return t.logger }

// AutomationLists resolves an automation's locations into concrete lists.
// Space-level locations expand to every list under the space at call time.
func (t *Toolbox) AutomationLists(ctx context.Context, automationID uuid.UUID) ([]models.List, error) {
	var locations []models.AutomationLocation
	if err := t.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Find(&locations).Error; err != nil {
		return nil, err
	}

	var listIDs, spaceIDs []uuid.UUID
	for _, loc := range locations {
		switch loc.LocationType {
		case models.LocationTypeList:
			listIDs = append(listIDs, loc.LocationID)
		case models.LocationTypeSpace:
			spaceIDs = append(spaceIDs, loc.LocationID)
		}
	}

	var lists []models.List
	q := t.db.WithContext(ctx)
	switch {
	case len(listIDs) > 0 && len(spaceIDs) > 0:
		q = q.Where("id IN ? OR space_id IN ?", listIDs, spaceIDs)
	case len(listIDs) > 0:
		q = q.Where("id IN ?", listIDs)
	case len(spaceIDs) > 0:
		q = q.Where("space_id IN ?", spaceIDs)
	default:
		return []models.List{}, nil
	}
	if err := q.Order("position ASC").Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

// CardFields returns the union of field definitions across the automation's
// lists, sorted required-first then alphabetically by title.
func (t *Toolbox) CardFields(ctx context.Context, automationID uuid.UUID) ([]models.ListField, error) {
	lists, err := t.AutomationLists(ctx, automationID)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return []models.ListField{}, nil
	}
	listIDs := make([]uuid.UUID, 0, len(lists))
	for _, l := range lists {
		listIDs = append(listIDs, l.ID)
	}

	var fields []models.ListField
	if err := t.db.WithContext(ctx).
		Where("list_id IN ?", listIDs).
		Find(&fields).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].Required != fields[j].Required {
			return fields[i].Required
		}
		return strings.ToLower(fields[i].Title) < strings.ToLower(fields[j].Title)
	})
	return fields, nil
}

// ListStages returns the stages of the automation's lists in board order.
func (t *Toolbox) ListStages(ctx context.Context, automationID uuid.UUID) ([]models.Stage, error) {
	lists, err := t.AutomationLists(ctx, automationID)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return []models.Stage{}, nil
	}
	listIDs := make([]uuid.UUID, 0, len(lists))
	for _, l := range lists {
		listIDs = append(listIDs, l.ID)
	}
	var stages []models.Stage
	if err := t.db.WithContext(ctx).
		Where("list_id IN ?", listIDs).
		Order("position ASC").
		Find(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

// ListUsers returns the users with access to any of the given lists,
// sorted by name. Assignee options come from here, so the answer tracks
// membership changes.
func (t *Toolbox) ListUsers(ctx context.Context, listIDs []uuid.UUID) ([]models.User, error) {
	if len(listIDs) == 0 {
		return []models.User{}, nil
	}
	var members []models.ListMember
	if err := t.db.WithContext(ctx).
		Where("list_id IN ?", listIDs).
		Find(&members).Error; err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(members))
	var userIDs []uint
	for _, m := range members {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		userIDs = append(userIDs, m.UserID)
	}
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := t.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Order("name ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
