package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Step tags. An automation owns exactly zero or one trigger step; every
// other step in its chain is an action.
const (
	StepTagTrigger = "trigger"
	StepTagAction  = "action"
)

// Location types an automation can be scoped to. A space-level location
// covers every list under that space, resolved at dispatch time.
const (
	LocationTypeList  = "list"
	LocationTypeSpace = "space"
)

// Run / job statuses.
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"

	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Automation 自动化规则定义
type Automation struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string         `gorm:"not null" json:"name"`
	TriggerType   string         `gorm:"index" json:"trigger_type"`
	Conditions    datatypes.JSON `json:"conditions,omitempty"` // 字段过滤条件
	TriggerStepID *uuid.UUID     `gorm:"type:uuid" json:"trigger_step_id"`
	Enabled       bool           `json:"enabled"`
	CreatedBy     string         `gorm:"default:'system'" json:"created_by"` // 用户 ID 或 system
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	TriggerStep *AutomationStep      `gorm:"foreignKey:TriggerStepID" json:"trigger_step,omitempty"`
	Locations   []AutomationLocation `gorm:"foreignKey:AutomationID" json:"locations,omitempty"`

	// Steps holds the reconstructed action chain in linked-list order.
	// It is populated by the service layer, not by gorm preloading.
	Steps []AutomationStep `gorm:"-" json:"steps,omitempty"`
}

// AutomationStep 步骤：以 NextStepID 构成单链表，链表头是触发器步骤。
// 不变量：链无环；末步 NextStepID 为空；任一步骤至多被一个前驱引用。
type AutomationStep struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID uuid.UUID      `gorm:"type:uuid;index" json:"automation_id"`
	Tag          string         `gorm:"not null" json:"tag"` // trigger, action
	Value        *string        `json:"value"`               // 注册的 trigger/action 类型，仅在编辑态可为空
	Data         datatypes.JSON `json:"data,omitempty"`      // handler 自定义配置
	NextStepID   *uuid.UUID     `gorm:"type:uuid" json:"next_step_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// AutomationLocation 自动化作用域（列表或空间）
type AutomationLocation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uuid.UUID `gorm:"type:uuid;index" json:"automation_id"`
	LocationID   uuid.UUID `gorm:"type:uuid;index" json:"location_id"`
	LocationType string    `gorm:"not null" json:"location_type"` // list, space
}

// AutomationRun 一次触发执行的审计记录，只追加不修改
type AutomationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID uuid.UUID      `gorm:"type:uuid;index" json:"automation_id"`
	CardID       uuid.UUID      `gorm:"type:uuid;index" json:"card_id"`
	Status       string         `gorm:"index" json:"status"` // pending, running, success, failed
	Error        *string        `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	StepRuns []AutomationStepRun `gorm:"foreignKey:RunID" json:"step_runs,omitempty"`
}

// AutomationStepRun 单步执行记录；执行路径本身从不回读这些行
type AutomationStepRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID      uuid.UUID      `gorm:"type:uuid;index" json:"run_id"`
	StepID     uuid.UUID      `gorm:"type:uuid;index" json:"step_id"`
	OrderIndex int            `json:"order_index"`
	Input      datatypes.JSON `json:"input,omitempty"`
	Output     datatypes.JSON `json:"output,omitempty"`
	Status     string         `json:"status"`
	Error      *string        `gorm:"type:text" json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	DurationMS int64          `json:"duration_ms"`
}

// AutomationJob 持久化任务队列行；worker 以 SKIP LOCKED 认领
type AutomationJob struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AutomationID uuid.UUID      `gorm:"type:uuid;index" json:"automation_id"`
	CardID       uuid.UUID      `gorm:"type:uuid;index" json:"card_id"`
	Payload      datatypes.JSON `json:"payload,omitempty"`
	Status       string         `gorm:"index;default:'queued'" json:"status"`
	Attempts     int            `gorm:"default:0" json:"attempts"`
	LastError    *string        `gorm:"type:text" json:"last_error,omitempty"`
	LockedAt     *time.Time     `json:"locked_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (a *Automation) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (s *AutomationStep) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (r *AutomationRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *AutomationStepRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (j *AutomationJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
