package domain

import "time"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a structured function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ConversationTurn is one role-tagged message of a session's model context.
type ConversationTurn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ConversationLog is a persisted turn of a completed conversation.
type ConversationLog struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:varchar(128);not null;index:idx_session_logs,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant','tool')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	ToolName  string    `json:"tool_name,omitempty" gorm:"type:varchar(64)"`
	Model     string    `json:"model,omitempty"     gorm:"type:varchar(128)"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_session_logs,priority:2"`
}

// TableName returns the database table name for ConversationLog.
func (ConversationLog) TableName() string { return "conversation_logs" }
