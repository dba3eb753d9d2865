// Package live holds the in-memory state mirrored to connected viewers.
// It is a cache, not a source of truth: on disagreement the store wins
// for anything durable, the live state wins for what a just-connected
// viewer should see right now.
package live

import (
	"sync"

	"github.com/agentbrowser/viewer/pkg/models"
)

// MaxActions bounds the in-memory action buffer; the oldest entries are
// evicted first.
const MaxActions = 200

// State is the single process-wide live view of the shared browser. It
// is owned by its constructor's caller and passed to handlers
// explicitly, never ambient.
type State struct {
	mu              sync.RWMutex
	isOpen          bool
	currentURL      string
	pageTitle       string
	lastScreenshot  string
	snapshotTree    string
	activeSessionID string
	actions         []models.ActionEvent
}

// New returns an empty State.
func New() *State {
	return &State{}
}

// Status returns the current browser status payload.
func (s *State) Status() models.StatusEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.StatusEvent{
		IsOpen:     s.isOpen,
		CurrentURL: s.currentURL,
		PageTitle:  s.pageTitle,
	}
}

// SetPage records the latest page probe outcome.
func (s *State) SetPage(open bool, url, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = open
	if open {
		s.currentURL = url
		s.pageTitle = title
	}
}

// LastScreenshot returns the cached screenshot data URI, or "".
func (s *State) LastScreenshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScreenshot
}

// SetScreenshot caches the most recent successful capture.
func (s *State) SetScreenshot(dataURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScreenshot = dataURI
}

// SnapshotTree returns the cached accessibility tree text.
func (s *State) SnapshotTree() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotTree
}

// SetSnapshotTree caches the latest accessibility tree text.
func (s *State) SetSnapshotTree(tree string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotTree = tree
}

// ActiveSessionID returns the active session id, or "" when none.
func (s *State) ActiveSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSessionID
}

// SetActiveSession switches the active session id ("" clears it).
func (s *State) SetActiveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSessionID = id
}

// AppendAction appends to the bounded buffer, evicting the oldest entry
// past MaxActions.
func (s *State) AppendAction(action models.ActionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	if len(s.actions) > MaxActions {
		s.actions = append([]models.ActionEvent(nil), s.actions[len(s.actions)-MaxActions:]...)
	}
}

// UpdateAction patches a buffered action in place so late-joining
// viewers replay completed actions with their results.
func (s *State) UpdateAction(id string, update models.ActionUpdateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.actions {
		if s.actions[i].ID != id {
			continue
		}
		if update.Result != nil {
			s.actions[i].Result = update.Result
		}
		if update.Error != nil {
			s.actions[i].Error = update.Error
		}
		if update.ScreenshotPath != nil {
			s.actions[i].ScreenshotPath = update.ScreenshotPath
		}
		if update.URL != nil {
			s.actions[i].URL = update.URL
		}
		if update.PageTitle != nil {
			s.actions[i].PageTitle = update.PageTitle
		}
		return
	}
}

// Actions returns a copy of the buffered actions in order.
func (s *State) Actions() []models.ActionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ActionEvent, len(s.actions))
	copy(out, s.actions)
	return out
}

// ActionCount returns the buffered action count.
func (s *State) ActionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}

// ResetActions replaces the buffer, keeping only the newest MaxActions
// entries, and clears the cached screenshot when asked to start fresh.
func (s *State) ResetActions(actions []models.ActionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(actions) > MaxActions {
		actions = actions[len(actions)-MaxActions:]
	}
	s.actions = append([]models.ActionEvent(nil), actions...)
}

// ClearForNewSession empties the action buffer and cached screenshot,
// the viewer-visible reset performed when a session is created.
func (s *State) ClearForNewSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = nil
	s.lastScreenshot = ""
}
