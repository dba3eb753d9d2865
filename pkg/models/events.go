package models

import (
	"encoding/json"
	"strings"
)

// Server-to-client event names.
const (
	EventStatus       = "status"
	EventScreenshot   = "screenshot"
	EventAction       = "action"
	EventActionUpdate = "action-update"
	EventSnapshot     = "snapshot"
	EventSessionInfo  = "session-info"
	EventSessionsList = "sessions-list"
	EventActionsClear = "actions-clear"
)

// Client-to-server event names.
const (
	EventCommand         = "command"
	EventSnapshotRequest = "snapshot-request"
	EventClickAt         = "click-at"
	EventCreateSession   = "create-session"
	EventCloseSession    = "close-session"
	EventSwitchSession   = "switch-session"
	EventRenameSession   = "rename-session"
)

// WireMessage is the envelope for every message on the viewer channel,
// in both directions.
type WireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusEvent mirrors the live browser state to viewers.
type StatusEvent struct {
	IsOpen     bool   `json:"isOpen"`
	CurrentURL string `json:"currentUrl"`
	PageTitle  string `json:"pageTitle"`
}

// ActionEvent is the wire shape of an action shown in the viewer log.
// It is deliberately distinct from the Action row so the persisted and
// broadcast schemas can diverge; ActionWireFromRow is the only place a
// row becomes a wire payload.
type ActionEvent struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Command        string  `json:"command"`
	Timestamp      int64   `json:"timestamp"`
	SessionID      string  `json:"session_id,omitempty"`
	Result         *string `json:"result,omitempty"`
	Error          *string `json:"error,omitempty"`
	ScreenshotPath *string `json:"screenshot_path,omitempty"`
	URL            *string `json:"url,omitempty"`
	PageTitle      *string `json:"page_title,omitempty"`
}

// ActionUpdateEvent completes a previously broadcast ActionEvent.
type ActionUpdateEvent struct {
	ID             string  `json:"id"`
	Result         *string `json:"result,omitempty"`
	Error          *string `json:"error,omitempty"`
	ScreenshotPath *string `json:"screenshot_path,omitempty"`
	URL            *string `json:"url,omitempty"`
	PageTitle      *string `json:"page_title,omitempty"`
}

// CommandPayload is the client command event.
type CommandPayload struct {
	Command  string `json:"command"`
	Original string `json:"original,omitempty"`
}

// ClickAtPayload carries click coordinates in full-resolution screenshot
// pixel space.
type ClickAtPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SessionNamePayload is shared by create-session and rename-session.
type SessionNamePayload struct {
	Name string `json:"name"`
}

// CommandType derives the action type from the first word of a command.
func CommandType(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ActionWireFromRow converts a persisted action row into its broadcast
// shape. This is the single conversion boundary between the two schemas.
func ActionWireFromRow(row Action) ActionEvent {
	return ActionEvent{
		ID:             row.ID,
		Type:           CommandType(row.Command),
		Command:        row.Command,
		Timestamp:      row.Timestamp,
		SessionID:      row.SessionID,
		Result:         row.Result,
		Error:          row.Error,
		ScreenshotPath: row.ScreenshotPath,
		URL:            row.URL,
		PageTitle:      row.PageTitle,
	}
}
