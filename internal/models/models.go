package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 用户模型
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Avatar    string         `json:"avatar"`
	Role      string         `gorm:"default:'member'" json:"role"` // member, admin, owner
	Status    string         `gorm:"default:'active'" json:"status"`
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 工作区（租户顶层）
type Workspace struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	OwnerID   uint           `gorm:"index" json:"owner_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Spaces []Space `gorm:"foreignKey:WorkspaceID" json:"spaces,omitempty"`
}

// 空间：工作区下的分组，一个空间包含多个列表
type Space struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;index" json:"workspace_id"`
	Name        string         `gorm:"not null" json:"name"`
	Position    int            `gorm:"default:0" json:"position"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Lists []List `gorm:"foreignKey:SpaceID" json:"lists,omitempty"`
}

// 列表：卡片的容器
type List struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SpaceID   uuid.UUID      `gorm:"type:uuid;index" json:"space_id"`
	Name      string         `gorm:"not null" json:"name"`
	Position  int            `gorm:"default:0" json:"position"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Stages  []Stage      `gorm:"foreignKey:ListID" json:"stages,omitempty"`
	Fields  []ListField  `gorm:"foreignKey:ListID" json:"fields,omitempty"`
	Members []ListMember `gorm:"foreignKey:ListID" json:"members,omitempty"`
}

// 阶段：卡片在列表内的流转状态（如 待办 / 进行中 / 完成）
type Stage struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ListID   uuid.UUID `gorm:"type:uuid;index" json:"list_id"`
	Name     string    `gorm:"not null" json:"name"`
	Position int       `gorm:"default:0" json:"position"`
}

// ListField 列表级自定义字段定义；卡片的 Data 按字段 ID 存值
type ListField struct {
	ID       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ListID   uuid.UUID      `gorm:"type:uuid;index" json:"list_id"`
	Title    string         `gorm:"not null" json:"title"`
	Kind     string         `gorm:"not null" json:"kind"` // text, number, select, date, user
	Required bool           `gorm:"default:false" json:"required"`
	Options  datatypes.JSON `json:"options,omitempty"` // select 类型的可选值
	Position int            `gorm:"default:0" json:"position"`
}

// ListMember 列表成员（访问授权）
type ListMember struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	ListID uuid.UUID `gorm:"type:uuid;index" json:"list_id"`
	UserID uint      `gorm:"index" json:"user_id"`
	Role   string    `gorm:"default:'member'" json:"role"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// 卡片模型
type Card struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ListID      uuid.UUID      `gorm:"type:uuid;index" json:"list_id"`
	StageID     *uuid.UUID     `gorm:"type:uuid;index" json:"stage_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Data        datatypes.JSON `json:"data"` // 自定义字段值，按字段 ID 键入
	AssigneeID  *uint          `gorm:"index" json:"assignee_id"`
	CreatorID   uint           `gorm:"index" json:"creator_id"`
	DueDate     *time.Time     `json:"due_date"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	List     List          `gorm:"foreignKey:ListID" json:"list,omitempty"`
	Stage    *Stage        `gorm:"foreignKey:StageID" json:"stage,omitempty"`
	Assignee *User         `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Comments []CardComment `gorm:"foreignKey:CardID" json:"comments,omitempty"`
}

// 卡片评论
type CardComment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CardID    uuid.UUID `gorm:"type:uuid;index" json:"card_id"`
	UserID    *uint     `gorm:"index" json:"user_id"` // 空表示系统（自动化）产生
	Content   string    `gorm:"type:text;not null" json:"content"`
	Kind      string    `gorm:"default:'comment'" json:"kind"` // comment, system
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate 为 uuid 主键补默认值
func (w *Workspace) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

func (s *Space) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (l *List) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (s *Stage) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (f *ListField) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (c *Card) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
