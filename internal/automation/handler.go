package automation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"kanbo/internal/events"
	"kanbo/internal/models"
)

// HandlerMeta 处理器静态元数据，供构建器 UI 展示
type HandlerMeta struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Icon     string `json:"icon"`
	Category string `json:"category"`
}

// FieldOption is one selectable value of a select/user field.
type FieldOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Field describes one configurable input a handler exposes. The schema is
// computed per automation instance (options come from the live schema and
// membership of the lists the automation targets), never cached globally.
type Field struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Kind     string        `json:"kind"` // text, number, select, user, stage
	Required bool          `json:"required"`
	Options  []FieldOption `json:"options,omitempty"`
}

// FieldsRequest carries the automation instance context a handler needs to
// compute its field schema or sample data. Data holds prior answers for
// schemas that depend on them.
type FieldsRequest struct {
	AutomationID uuid.UUID              `json:"automation_id"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

// Handler is the capability set common to triggers and actions.
type Handler interface {
	Meta() HandlerMeta
	Fields(ctx context.Context, req FieldsRequest) ([]Field, error)
	SampleData(ctx context.Context, req FieldsRequest) (map[string]interface{}, error)
}

// TriggerHandler decides whether an automation should fire for one event
// instance. Execute is the second-stage, fine-grained filter after the
// coarse {trigger kind, location} match done by the dispatcher.
type TriggerHandler interface {
	Handler
	Execute(ctx context.Context, evt events.Event, am *models.Automation, step *models.AutomationStep) (bool, error)
}

// ActionInput is everything an action needs to run one step.
type ActionInput struct {
	Automation *models.Automation
	Step       *models.AutomationStep
	Card       *models.Card
	// Data is the step configuration after placeholder resolution.
	Data map[string]interface{}
}

// ActionHandler performs a side effect and returns its outcome, which
// becomes the step's output for later placeholder resolution. Mutations of
// domain entities must run under the system principal (auth.WithSystem);
// failures are signalled by the returned error and are not retried.
type ActionHandler interface {
	Handler
	Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error)
}

// DecodeData unmarshals a step's raw JSON configuration. A nil or invalid
// blob yields an empty map so handlers never see nil.
func DecodeData(raw datatypes.JSON) map[string]interface{} {
	out := map[string]interface{}{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

// EncodeData marshals a handler output back into a JSON column value.
func EncodeData(data map[string]interface{}) datatypes.JSON {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
