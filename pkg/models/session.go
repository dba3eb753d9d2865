package models

// SessionSource identifies who created a session.
type SessionSource string

const (
	SourceViewer SessionSource = "viewer"
	SourceChat   SessionSource = "chat"
	SourceCron   SessionSource = "cron"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusClosed SessionStatus = "closed"
)

// Session is a named grouping of commands run against the shared browser.
// Timestamps are unix milliseconds.
type Session struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	Source    string `gorm:"not null;default:viewer" json:"source"`
	Status    string `gorm:"not null;default:active;index" json:"status"`
	CreatedAt int64  `gorm:"not null;index;autoCreateTime:milli" json:"created_at"`
	UpdatedAt int64  `gorm:"not null;autoUpdateTime:milli" json:"updated_at"`
}

// SessionSummary is a session annotated with aggregates derived from its
// actions. Computed at query time, never stored.
type SessionSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Source         string  `json:"source"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
	ActionCount    int64   `json:"action_count"`
	LastScreenshot *string `json:"last_screenshot"`
}

// Action is one recorded command invocation and its eventual result.
// Result and Error stay nil until execution completes.
type Action struct {
	ID             string  `gorm:"primaryKey" json:"id"`
	SessionID      string  `gorm:"not null;index" json:"session_id"`
	Command        string  `gorm:"not null" json:"command"`
	Result         *string `json:"result"`
	Error          *string `json:"error"`
	ScreenshotPath *string `json:"screenshot_path"`
	URL            *string `json:"url"`
	PageTitle      *string `json:"page_title"`
	Timestamp      int64   `gorm:"not null;index" json:"timestamp"`
}

// SessionUpdate is a partial update to a session. Nil fields are left
// untouched.
type SessionUpdate struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

// ActionUpdate carries the fields written onto an action row once its
// command has finished executing.
type ActionUpdate struct {
	Result         *string `json:"result,omitempty"`
	Error          *string `json:"error,omitempty"`
	ScreenshotPath *string `json:"screenshot_path,omitempty"`
	URL            *string `json:"url,omitempty"`
	PageTitle      *string `json:"page_title,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u ActionUpdate) IsEmpty() bool {
	return u.Result == nil && u.Error == nil && u.ScreenshotPath == nil &&
		u.URL == nil && u.PageTitle == nil
}

// CreateSessionRequest is the payload for POST /api/sessions.
type CreateSessionRequest struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// HookRequest is the payload for POST /api/hook, the entry point for
// non-viewer callers (chat assistants, scheduled jobs).
type HookRequest struct {
	SessionName string `json:"sessionName"`
	Command     string `json:"command"`
	Source      string `json:"source,omitempty"`
}

// HookResponse reports the outcome of a hook-injected command.
type HookResponse struct {
	OK             bool    `json:"ok"`
	SessionID      string  `json:"session_id"`
	ActionID       string  `json:"action_id"`
	Result         string  `json:"result"`
	Error          *string `json:"error,omitempty"`
	ScreenshotPath *string `json:"screenshot_path,omitempty"`
}
