// Package coordinator ties command execution, live state, persistence,
// and viewer broadcast together. It is the single writer of the live
// state and the only component that talks to all of the others.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentbrowser/viewer/internal/executor"
	"github.com/agentbrowser/viewer/internal/live"
	"github.com/agentbrowser/viewer/internal/screenshot"
	"github.com/agentbrowser/viewer/internal/store"
	"github.com/agentbrowser/viewer/pkg/models"
)

// clickSettleDelay gives the page time to react to a synthesized click
// before the state is re-probed.
const clickSettleDelay = 500 * time.Millisecond

// Broadcaster fans one typed event out to every connected viewer.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Sender emits typed events to a single viewer.
type Sender interface {
	Send(event string, data any)
}

// Capturer produces a screenshot data URI, or "" when none is available.
type Capturer interface {
	Capture(ctx context.Context) string
}

// Coordinator is the synchronization core.
type Coordinator struct {
	store    *store.Store
	live     *live.State
	hub      Broadcaster
	runner   executor.Runner
	capturer Capturer
	files    *screenshot.Files
	log      *zap.SugaredLogger
}

// New wires a Coordinator from its collaborators.
func New(
	st *store.Store,
	lv *live.State,
	hub Broadcaster,
	runner executor.Runner,
	capturer Capturer,
	files *screenshot.Files,
	log *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		store:    st,
		live:     lv,
		hub:      hub,
		runner:   runner,
		capturer: capturer,
		files:    files,
		log:      log,
	}
}

// HandleConnect replays current state to a just-connected viewer:
// status, cached screenshot, active session info, the sessions list,
// then every buffered action in order. After this sequence the viewer
// needs to request nothing.
func (c *Coordinator) HandleConnect(viewer Sender) {
	ctx := context.Background()

	viewer.Send(models.EventStatus, c.live.Status())

	if shot := c.live.LastScreenshot(); shot != "" {
		viewer.Send(models.EventScreenshot, shot)
	}

	if id := c.live.ActiveSessionID(); id != "" {
		session, err := c.store.GetSession(ctx, id)
		if err != nil {
			c.log.Errorw("failed to load active session for connect", "error", err)
		} else if session != nil {
			viewer.Send(models.EventSessionInfo, session)
		}
	}

	if sessions, err := c.store.ListSessions(ctx); err != nil {
		c.log.Errorw("failed to list sessions for connect", "error", err)
	} else {
		viewer.Send(models.EventSessionsList, sessions)
	}

	for _, action := range c.live.Actions() {
		viewer.Send(models.EventAction, action)
	}
}

// HandleMessage dispatches one inbound viewer message. Messages on a
// single connection are handled in arrival order; a failure terminates
// only this one event.
func (c *Coordinator) HandleMessage(viewer Sender, msg models.WireMessage) {
	ctx := context.Background()

	var err error
	switch msg.Event {
	case models.EventCommand:
		var payload models.CommandPayload
		if err = json.Unmarshal(msg.Data, &payload); err == nil && payload.Command != "" {
			_, _, err = c.ExecuteCommand(ctx, c.live.ActiveSessionID(), payload.Command, true)
		}
	case models.EventClickAt:
		var payload models.ClickAtPayload
		if err = json.Unmarshal(msg.Data, &payload); err == nil {
			err = c.ClickAt(ctx, payload.X, payload.Y)
		}
	case models.EventSnapshotRequest:
		c.handleSnapshotRequest(ctx, viewer)
	case models.EventCreateSession:
		var payload models.SessionNamePayload
		if err = json.Unmarshal(msg.Data, &payload); err == nil && payload.Name != "" {
			_, err = c.CreateSession(ctx, payload.Name, models.SourceViewer)
		}
	case models.EventCloseSession:
		err = c.CloseSession(ctx)
	case models.EventSwitchSession:
		var id string
		if err = json.Unmarshal(msg.Data, &id); err == nil {
			err = c.SwitchSession(ctx, id)
		}
	case models.EventRenameSession:
		var payload models.SessionNamePayload
		if err = json.Unmarshal(msg.Data, &payload); err == nil && payload.Name != "" {
			err = c.RenameSession(ctx, payload.Name)
		}
	default:
		c.log.Debugw("unknown viewer event", "event", msg.Event)
	}

	if err != nil {
		c.log.Errorw("viewer event failed", "event", msg.Event, "error", err)
	}
}

// ExecuteCommand runs the full command execution protocol for one
// command attributed to sessionID ("" leaves the action unpersisted).
// Tool failures are absorbed into the action's error field; only store
// failures return an error, losing that one command's completion.
func (c *Coordinator) ExecuteCommand(ctx context.Context, sessionID, command string, buffer bool) (models.ActionEvent, models.ActionUpdateEvent, error) {
	return c.run(ctx, sessionID, command, buffer, func(ctx context.Context) executor.Result {
		return c.runner.Execute(ctx, command)
	})
}

// ClickAt synthesizes a mouse move/click at screenshot pixel
// coordinates, waits for the page to settle, then completes the command
// protocol like any other command.
func (c *Coordinator) ClickAt(ctx context.Context, x, y int) error {
	display := fmt.Sprintf("mouse move %d %d && click", x, y)
	_, _, err := c.run(ctx, c.live.ActiveSessionID(), display, true, func(ctx context.Context) executor.Result {
		move := c.runner.Execute(ctx, fmt.Sprintf(`eval "await page.mouse.move(%d, %d)"`, x, y))
		click := c.runner.Execute(ctx, fmt.Sprintf(`eval "await page.mouse.click(%d, %d)"`, x, y))
		time.Sleep(clickSettleDelay)
		if move.Failed() {
			return move
		}
		return click
	})
	return err
}

// run is the shared command execution protocol: record, broadcast,
// execute, refresh state, capture, persist, complete.
func (c *Coordinator) run(ctx context.Context, sessionID, command string, buffer bool, exec func(ctx context.Context) executor.Result) (models.ActionEvent, models.ActionUpdateEvent, error) {
	action := models.ActionEvent{
		ID:        uuid.New().String(),
		Type:      models.CommandType(command),
		Command:   command,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
	}

	// Persist before broadcasting so the id viewers see is the store's
	// id and action-update never needs reconciling against a
	// provisional one.
	if sessionID != "" {
		row, err := c.store.InsertAction(ctx, sessionID, command)
		if err != nil {
			return models.ActionEvent{}, models.ActionUpdateEvent{}, err
		}
		action = models.ActionWireFromRow(*row)
	}

	c.hub.Broadcast(models.EventAction, action)
	if buffer {
		c.live.AppendAction(action)
	}

	res := exec(ctx)

	result := res.Stdout
	if result == "" {
		result = "OK"
	}
	update := models.ActionUpdate{Result: &result}
	if res.Stderr != "" {
		errText := res.Stderr
		update.Error = &errText
	}

	page := c.runner.ProbePage(ctx)
	c.live.SetPage(page.Outcome == executor.PageOK, page.URL, page.Title)
	c.hub.Broadcast(models.EventStatus, c.live.Status())
	if page.Outcome == executor.PageOK {
		update.URL = &page.URL
		update.PageTitle = &page.Title
	}

	if shot := c.capturer.Capture(ctx); shot != "" {
		c.live.SetScreenshot(shot)
		c.hub.Broadcast(models.EventScreenshot, shot)

		if sessionID != "" {
			path, err := c.files.Save(sessionID, shot)
			if err != nil {
				c.log.Warnw("failed to persist screenshot", "session", sessionID, "error", err)
			} else {
				update.ScreenshotPath = &path
			}
		}
	}

	if sessionID != "" {
		if _, err := c.store.UpdateAction(ctx, action.ID, update); err != nil {
			return action, models.ActionUpdateEvent{}, err
		}
	}

	updateEvent := models.ActionUpdateEvent{
		ID:             action.ID,
		Result:         update.Result,
		Error:          update.Error,
		ScreenshotPath: update.ScreenshotPath,
		URL:            update.URL,
		PageTitle:      update.PageTitle,
	}
	if buffer {
		c.live.UpdateAction(action.ID, updateEvent)
	}
	c.hub.Broadcast(models.EventActionUpdate, updateEvent)

	return action, updateEvent, nil
}

// RunHook executes a command injected by an external caller against a
// named session, creating the session if no active one exists. The live
// buffer is only touched when the hook's session is also the active one,
// so late-join replay stays consistent with session-info.
func (c *Coordinator) RunHook(ctx context.Context, sessionName, command string, source models.SessionSource) (*models.HookResponse, error) {
	if source != models.SourceCron {
		source = models.SourceChat
	}

	session, err := c.store.GetActiveSessionByName(ctx, sessionName)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session, err = c.store.CreateSession(ctx, sessionName, source)
		if err != nil {
			return nil, err
		}
		c.broadcastSessionsList(ctx)
	}

	buffer := session.ID == c.live.ActiveSessionID()
	action, update, err := c.ExecuteCommand(ctx, session.ID, command, buffer)
	if err != nil {
		return nil, err
	}

	resp := &models.HookResponse{
		OK:             true,
		SessionID:      session.ID,
		ActionID:       action.ID,
		Error:          update.Error,
		ScreenshotPath: update.ScreenshotPath,
	}
	if update.Result != nil {
		resp.Result = *update.Result
	}
	return resp, nil
}

// CreateSession creates and activates a new session, resetting the
// viewer-visible action log.
func (c *Coordinator) CreateSession(ctx context.Context, name string, source models.SessionSource) (*models.Session, error) {
	session, err := c.store.CreateSession(ctx, name, source)
	if err != nil {
		return nil, err
	}

	c.live.SetActiveSession(session.ID)
	c.live.ClearForNewSession()

	c.hub.Broadcast(models.EventSessionInfo, session)
	c.broadcastSessionsList(ctx)
	c.hub.Broadcast(models.EventActionsClear, nil)

	return session, nil
}

// CloseSession soft-closes the active session. No-op when none is
// active.
func (c *Coordinator) CloseSession(ctx context.Context) error {
	id := c.live.ActiveSessionID()
	if id == "" {
		return nil
	}

	status := string(models.StatusClosed)
	if _, err := c.store.UpdateSession(ctx, id, models.SessionUpdate{Status: &status}); err != nil {
		return err
	}

	c.live.SetActiveSession("")
	c.hub.Broadcast(models.EventSessionInfo, nil)
	c.broadcastSessionsList(ctx)
	return nil
}

// SwitchSession activates an existing session and replays its full
// history to all viewers. An unresolvable id is silently ignored,
// treated as a benign race with a concurrent delete.
func (c *Coordinator) SwitchSession(ctx context.Context, id string) error {
	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	rows, err := c.store.GetSessionActions(ctx, id)
	if err != nil {
		return err
	}

	history := make([]models.ActionEvent, len(rows))
	for i, row := range rows {
		history[i] = models.ActionWireFromRow(row)
	}

	c.live.SetActiveSession(id)
	c.live.ResetActions(history)

	c.hub.Broadcast(models.EventSessionInfo, session)
	c.hub.Broadcast(models.EventActionsClear, nil)
	for _, action := range c.live.Actions() {
		c.hub.Broadcast(models.EventAction, action)
	}
	return nil
}

// RenameSession renames the active session. No-op when none is active.
func (c *Coordinator) RenameSession(ctx context.Context, name string) error {
	id := c.live.ActiveSessionID()
	if id == "" {
		return nil
	}

	if _, err := c.store.UpdateSession(ctx, id, models.SessionUpdate{Name: &name}); err != nil {
		return err
	}

	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session != nil {
		c.hub.Broadcast(models.EventSessionInfo, session)
	}
	c.broadcastSessionsList(ctx)
	return nil
}

// InitialProbe refreshes the live state once at startup so the first
// viewer to connect sees the browser as it is, not as it was.
func (c *Coordinator) InitialProbe(ctx context.Context) {
	page := c.runner.ProbePage(ctx)
	c.live.SetPage(page.Outcome == executor.PageOK, page.URL, page.Title)

	if page.Outcome == executor.PageOK {
		if shot := c.capturer.Capture(ctx); shot != "" {
			c.live.SetScreenshot(shot)
		}
	}
}

func (c *Coordinator) handleSnapshotRequest(ctx context.Context, viewer Sender) {
	res := c.runner.Execute(ctx, "snapshot -i -c")
	c.live.SetSnapshotTree(res.Stdout)
	viewer.Send(models.EventSnapshot, res.Stdout)
}

func (c *Coordinator) broadcastSessionsList(ctx context.Context) {
	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		c.log.Errorw("failed to list sessions for broadcast", "error", err)
		return
	}
	c.hub.Broadcast(models.EventSessionsList, sessions)
}
