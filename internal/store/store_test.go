package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agentbrowser/viewer/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "viewer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "demo", models.SourceViewer)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "demo", created.Name)
	assert.Equal(t, "viewer", created.Source)
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetActiveSessionByNameIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "bot-run", models.SourceChat)
	require.NoError(t, err)

	first, err := s.GetActiveSessionByName(ctx, "bot-run")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := s.GetActiveSessionByName(ctx, "bot-run")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, created.ID, first.ID)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetActiveSessionByNameSkipsClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "bot-run", models.SourceChat)
	require.NoError(t, err)

	closed := string(models.StatusClosed)
	updated, err := s.UpdateSession(ctx, created.ID, models.SessionUpdate{Status: &closed})
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := s.GetActiveSessionByName(ctx, "bot-run")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertActionOrderingAndSessionBump(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "demo", models.SourceViewer)
	require.NoError(t, err)

	commands := []string{"open https://example.com", "click @e1", "fill @e2 hello"}
	for _, cmd := range commands {
		action, err := s.InsertAction(ctx, session.ID, cmd)
		require.NoError(t, err)
		assert.NotEmpty(t, action.ID)
		assert.Nil(t, action.Result)
		assert.Nil(t, action.Error)
	}

	actions, err := s.GetSessionActions(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, actions, len(commands))
	for i, action := range actions {
		assert.Equal(t, commands[i], action.Command)
		if i > 0 {
			assert.GreaterOrEqual(t, action.Timestamp, actions[i-1].Timestamp)
		}
	}

	bumped, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bumped.UpdatedAt, session.UpdatedAt)
}

func TestUpdateActionPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "demo", models.SourceViewer)
	require.NoError(t, err)
	action, err := s.InsertAction(ctx, session.ID, "open https://example.com")
	require.NoError(t, err)

	// Empty update is a no-op.
	updated, err := s.UpdateAction(ctx, action.ID, models.ActionUpdate{})
	require.NoError(t, err)
	assert.False(t, updated)

	result := "OK"
	url := "https://example.com/"
	updated, err = s.UpdateAction(ctx, action.ID, models.ActionUpdate{Result: &result, URL: &url})
	require.NoError(t, err)
	assert.True(t, updated)

	actions, err := s.GetSessionActions(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.NotNil(t, actions[0].Result)
	assert.Equal(t, "OK", *actions[0].Result)
	require.NotNil(t, actions[0].URL)
	assert.Equal(t, url, *actions[0].URL)
	assert.Nil(t, actions[0].Error)
	assert.Nil(t, actions[0].ScreenshotPath)
}

func TestDeleteSessionCascadesActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "demo", models.SourceViewer)
	require.NoError(t, err)
	_, err = s.InsertAction(ctx, session.ID, "open https://example.com")
	require.NoError(t, err)
	_, err = s.InsertAction(ctx, session.ID, "click @e1")
	require.NoError(t, err)

	deleted, err := s.DeleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	actions, err := s.GetSessionActions(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)

	deleted, err = s.DeleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteSessionCascadesOnAnyPooledConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, "demo", models.SourceViewer)
	require.NoError(t, err)
	_, err = s.InsertAction(ctx, session.ID, "open https://example.com")
	require.NoError(t, err)

	// Pin several pooled connections with open read transactions so the
	// delete has to run on a fresh connection, which must enforce the
	// cascade too.
	var pinned []*gorm.DB
	for i := 0; i < 3; i++ {
		tx := s.db.Begin()
		require.NoError(t, tx.Error)
		var n int64
		require.NoError(t, tx.Raw("SELECT COUNT(*) FROM sessions").Scan(&n).Error)
		pinned = append(pinned, tx)
	}
	defer func() {
		for _, tx := range pinned {
			tx.Rollback()
		}
	}()

	deleted, err := s.DeleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	actions, err := s.GetSessionActions(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestListSessionsSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.CreateSession(ctx, "empty", models.SourceViewer)
	require.NoError(t, err)

	busy, err := s.CreateSession(ctx, "busy", models.SourceCron)
	require.NoError(t, err)

	// Timestamps are millisecond resolution; make the ordering unambiguous.
	time.Sleep(2 * time.Millisecond)

	first, err := s.InsertAction(ctx, busy.ID, "open https://example.com")
	require.NoError(t, err)
	second, err := s.InsertAction(ctx, busy.ID, "click @e1")
	require.NoError(t, err)

	shot1 := busy.ID + "/1.png"
	_, err = s.UpdateAction(ctx, first.ID, models.ActionUpdate{ScreenshotPath: &shot1})
	require.NoError(t, err)
	shot2 := busy.ID + "/2.png"
	_, err = s.UpdateAction(ctx, second.ID, models.ActionUpdate{ScreenshotPath: &shot2})
	require.NoError(t, err)

	summaries, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Ordered by updated_at descending: busy was touched last.
	assert.Equal(t, busy.ID, summaries[0].ID)
	assert.Equal(t, int64(2), summaries[0].ActionCount)
	require.NotNil(t, summaries[0].LastScreenshot)
	assert.Equal(t, shot2, *summaries[0].LastScreenshot)

	assert.Equal(t, empty.ID, summaries[1].ID)
	assert.Equal(t, int64(0), summaries[1].ActionCount)
	assert.Nil(t, summaries[1].LastScreenshot)
}

func TestSearchSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "checkout flow", models.SourceViewer)
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, "login test", models.SourceViewer)
	require.NoError(t, err)

	found, err := s.SearchSessions(ctx, "CHECKOUT")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "checkout flow", found[0].Name)

	none, err := s.SearchSessions(ctx, "nomatch")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	name := "renamed"
	updated, err := s.UpdateSession(context.Background(), "missing", models.SessionUpdate{Name: &name})
	require.NoError(t, err)
	assert.False(t, updated)
}
