package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"kanbo/internal/automation"
	"kanbo/internal/models"
)

// Action kinds.
const (
	ActionSetField     = "set_field"
	ActionMoveCard     = "move_card"
	ActionAssignMember = "assign_member"
	ActionAddComment   = "add_comment"
	ActionCreateCard   = "create_card"
	ActionNotify       = "notify"
)

// SetFieldAction writes a value into one of the card's custom fields.
type SetFieldAction struct {
	tb *automation.Toolbox
}

func NewSetFieldAction(tb *automation.Toolbox) *SetFieldAction { return &SetFieldAction{tb: tb} }

func (a *SetFieldAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     ActionSetField,
		Label:    "Set field value",
		Icon:     "sliders",
		Category: "field",
	}
}

func (a *SetFieldAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	fields, err := fieldOptions(ctx, a.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "field_id", Title: "Field", Kind: "select", Required: true, Options: fields},
		{ID: "value", Title: "Value", Kind: "text", Required: true},
	}, nil
}

func (a *SetFieldAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card_id":  "8e7d26fa-6f76-4b6e-9e2f-000000000001",
		"field_id": "8e7d26fa-6f76-4b6e-9e2f-000000000004",
		"value":    "high",
	}, nil
}

func (a *SetFieldAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	if err := requireSystem(ctx); err != nil {
		return nil, err
	}
	fieldID := dataString(in.Data, "field_id")
	if fieldID == "" {
		return nil, fmt.Errorf("set_field: field_id is required")
	}
	value, hasValue := in.Data["value"]
	if !hasValue {
		return nil, fmt.Errorf("set_field: value is required")
	}

	cardData := map[string]interface{}{}
	if len(in.Card.Data) > 0 {
		if err := json.Unmarshal(in.Card.Data, &cardData); err != nil {
			return nil, fmt.Errorf("set_field: card data: %w", err)
		}
	}
	cardData[fieldID] = value
	raw, err := json.Marshal(cardData)
	if err != nil {
		return nil, err
	}
	if err := a.tb.DB().WithContext(ctx).Model(&models.Card{}).
		Where("id = ?", in.Card.ID).
		Update("data", raw).Error; err != nil {
		return nil, err
	}
	in.Card.Data = raw
	return map[string]interface{}{
		"card_id":  in.Card.ID.String(),
		"field_id": fieldID,
		"value":    value,
	}, nil
}

// MoveCardAction moves the card to the configured stage.
type MoveCardAction struct {
	tb *automation.Toolbox
}

func NewMoveCardAction(tb *automation.Toolbox) *MoveCardAction { return &MoveCardAction{tb: tb} }

func (a *MoveCardAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     ActionMoveCard,
		Label:    "Move card",
		Icon:     "corner-down-right",
		Category: "card",
	}
}

func (a *MoveCardAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	stages, err := stageOptions(ctx, a.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "stage_id", Title: "Stage", Kind: "stage", Required: true, Options: stages},
	}, nil
}

func (a *MoveCardAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card_id":           "8e7d26fa-6f76-4b6e-9e2f-000000000001",
		"stage_id":          "8e7d26fa-6f76-4b6e-9e2f-000000000003",
		"previous_stage_id": "8e7d26fa-6f76-4b6e-9e2f-000000000002",
	}, nil
}

func (a *MoveCardAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	if err := requireSystem(ctx); err != nil {
		return nil, err
	}
	stageID, ok := dataUUID(in.Data, "stage_id")
	if !ok {
		return nil, fmt.Errorf("move_card: stage_id is required")
	}
	var previous string
	if in.Card.StageID != nil {
		previous = in.Card.StageID.String()
	}
	if err := a.tb.DB().WithContext(ctx).Model(&models.Card{}).
		Where("id = ?", in.Card.ID).
		Update("stage_id", stageID).Error; err != nil {
		return nil, err
	}
	in.Card.StageID = &stageID
	return map[string]interface{}{
		"card_id":           in.Card.ID.String(),
		"stage_id":          stageID.String(),
		"previous_stage_id": previous,
	}, nil
}

// AssignMemberAction assigns the card to the configured member.
type AssignMemberAction struct {
	tb *automation.Toolbox
}

func NewAssignMemberAction(tb *automation.Toolbox) *AssignMemberAction {
	return &AssignMemberAction{tb: tb}
}

func (a *AssignMemberAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     ActionAssignMember,
		Label:    "Assign member",
		Icon:     "user-plus",
		Category: "card",
	}
}

func (a *AssignMemberAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	users, err := userOptions(ctx, a.tb, req.AutomationID)
	if err != nil {
		return nil, err
	}
	return []automation.Field{
		{ID: "assignee_id", Title: "Assignee", Kind: "user", Required: true, Options: users},
	}, nil
}

func (a *AssignMemberAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card_id":     "8e7d26fa-6f76-4b6e-9e2f-000000000001",
		"assignee_id": "42",
	}, nil
}

func (a *AssignMemberAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	if err := requireSystem(ctx); err != nil {
		return nil, err
	}
	raw := dataString(in.Data, "assignee_id")
	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("assign_member: invalid assignee_id %q", raw)
	}
	uid := uint(userID)
	if err := a.tb.DB().WithContext(ctx).Model(&models.Card{}).
		Where("id = ?", in.Card.ID).
		Update("assignee_id", uid).Error; err != nil {
		return nil, err
	}
	in.Card.AssigneeID = &uid
	return map[string]interface{}{
		"card_id":     in.Card.ID.String(),
		"assignee_id": raw,
	}, nil
}

// AddCommentAction leaves a system comment on the card. Placeholders make
// this the natural place to surface trigger or prior-step values.
type AddCommentAction struct {
	tb *automation.Toolbox
}

func NewAddCommentAction(tb *automation.Toolbox) *AddCommentAction { return &AddCommentAction{tb: tb} }

func (a *AddCommentAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     ActionAddComment,
		Label:    "Add comment",
		Icon:     "message-square",
		Category: "card",
	}
}

func (a *AddCommentAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	return []automation.Field{
		{ID: "content", Title: "Content", Kind: "text", Required: true},
	}, nil
}

func (a *AddCommentAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"comment_id": 7,
		"content":    "Moved automatically after review",
	}, nil
}

func (a *AddCommentAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	if err := requireSystem(ctx); err != nil {
		return nil, err
	}
	content := dataString(in.Data, "content")
	if content == "" {
		return nil, fmt.Errorf("add_comment: content is required")
	}
	comment := &models.CardComment{
		CardID:    in.Card.ID,
		UserID:    nil, // 系统评论无用户
		Content:   content,
		Kind:      "system",
		CreatedAt: time.Now(),
	}
	if err := a.tb.DB().WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"comment_id": comment.ID,
		"content":    content,
	}, nil
}

// CreateCardAction creates a new card, by default in the triggering card's
// list.
type CreateCardAction struct {
	tb *automation.Toolbox
}

func NewCreateCardAction(tb *automation.Toolbox) *CreateCardAction { return &CreateCardAction{tb: tb} }

func (a *CreateCardAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     ActionCreateCard,
		Label:    "Create card",
		Icon:     "plus-circle",
		Category: "card",
	}
}

func (a *CreateCardAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	lists, err := a.tb.AutomationLists(ctx, req.AutomationID)
	if err != nil {
		return nil, err
	}
	opts := make([]automation.FieldOption, 0, len(lists))
	for _, l := range lists {
		opts = append(opts, automation.FieldOption{ID: l.ID.String(), Title: l.Name})
	}
	return []automation.Field{
		{ID: "title", Title: "Title", Kind: "text", Required: true},
		{ID: "description", Title: "Description", Kind: "text", Required: false},
		{ID: "list_id", Title: "List", Kind: "select", Required: false, Options: opts},
	}, nil
}

func (a *CreateCardAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"card_id": "8e7d26fa-6f76-4b6e-9e2f-000000000009",
		"title":   "Follow-up: launch checklist",
	}, nil
}

func (a *CreateCardAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	if err := requireSystem(ctx); err != nil {
		return nil, err
	}
	title := dataString(in.Data, "title")
	if title == "" {
		return nil, fmt.Errorf("create_card: title is required")
	}
	listID := in.Card.ListID
	if id, ok := dataUUID(in.Data, "list_id"); ok {
		listID = id
	}
	card := &models.Card{
		ID:          uuid.New(),
		ListID:      listID,
		Title:       title,
		Description: dataString(in.Data, "description"),
	}
	if err := a.tb.DB().WithContext(ctx).Create(card).Error; err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"card_id": card.ID.String(),
		"list_id": listID.String(),
		"title":   title,
	}, nil
}

// NotifyAction emits a log line carrying the (placeholder-resolved)
// message. Delivery beyond the log/run feed is out of scope here.
type NotifyAction struct {
	tb *automation.Toolbox
}

func NewNotifyAction(tb *automation.Toolbox) *NotifyAction { return &NotifyAction{tb: tb} }

func (a *NotifyAction) Meta() automation.HandlerMeta {
	return automation.HandlerMeta{
		Type:     ActionNotify,
		Label:    "Send notification",
		Icon:     "bell",
		Category: "notify",
	}
}

func (a *NotifyAction) Fields(ctx context.Context, req automation.FieldsRequest) ([]automation.Field, error) {
	return []automation.Field{
		{ID: "message", Title: "Message", Kind: "text", Required: true},
	}, nil
}

func (a *NotifyAction) SampleData(ctx context.Context, req automation.FieldsRequest) (map[string]interface{}, error) {
	return map[string]interface{}{
		"message": "Card 8e7d26fa moved to Done",
	}, nil
}

func (a *NotifyAction) Execute(ctx context.Context, in automation.ActionInput) (map[string]interface{}, error) {
	message := dataString(in.Data, "message")
	if message == "" {
		return nil, fmt.Errorf("notify: message is required")
	}
	a.tb.Logger().Infof("automation notify: %s", message)
	return map[string]interface{}{"message": message}, nil
}
