package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agentbrowser/viewer/pkg/models"
)

const summaryColumns = `sessions.*,
	(SELECT COUNT(*) FROM actions a WHERE a.session_id = sessions.id) AS action_count,
	(SELECT a.screenshot_path FROM actions a WHERE a.session_id = sessions.id AND a.screenshot_path IS NOT NULL ORDER BY a.timestamp DESC LIMIT 1) AS last_screenshot`

// Store is the durable record of sessions and their actions, backed by
// sqlite in WAL mode so dashboard reads are never blocked by an
// in-flight write.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the database at dbPath and ensures the schema.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Pragmas ride on the DSN so every pooled connection gets them:
	// foreign_keys and busy_timeout are per-connection settings and
	// default to off, so a one-shot PRAGMA would only cover whichever
	// connection happened to run it.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: false,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.Session{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sessions schema: %w", err)
	}

	// Create the actions table manually: AutoMigrate will not emit the
	// cascading foreign key on SQLite.
	if !db.Migrator().HasTable(&models.Action{}) {
		if err := db.Exec(`
			CREATE TABLE IF NOT EXISTS actions (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				command TEXT NOT NULL,
				result TEXT,
				error TEXT,
				screenshot_path TEXT,
				url TEXT,
				page_title TEXT,
				timestamp INTEGER NOT NULL
			)
		`).Error; err != nil {
			return nil, fmt.Errorf("failed to create actions table: %w", err)
		}
		db.Exec("CREATE INDEX IF NOT EXISTS idx_actions_session ON actions(session_id)")
		db.Exec("CREATE INDEX IF NOT EXISTS idx_actions_timestamp ON actions(timestamp)")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession inserts a new active session and returns the full row.
func (s *Store) CreateSession(ctx context.Context, name string, source models.SessionSource) (*models.Session, error) {
	now := time.Now().UnixMilli()
	session := models.Session{
		ID:        uuid.New().String(),
		Name:      name,
		Source:    string(source),
		Status:    string(models.StatusActive),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := withRetry(func() error {
		return s.db.WithContext(ctx).Create(&session).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// GetSession returns a session by id, or nil if it does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	}, 3)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions newest-updated first, each annotated
// with its action count and latest screenshot path.
func (s *Store) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	summaries := []models.SessionSummary{}
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Raw(
			"SELECT " + summaryColumns + " FROM sessions ORDER BY sessions.updated_at DESC",
		).Scan(&summaries).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return summaries, nil
}

// SearchSessions matches the query case-insensitively against session
// names or formatted creation dates, with the same shape as ListSessions.
func (s *Store) SearchSessions(ctx context.Context, query string) ([]models.SessionSummary, error) {
	like := "%" + query + "%"
	summaries := []models.SessionSummary{}
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Raw(
			"SELECT "+summaryColumns+` FROM sessions
			WHERE sessions.name LIKE ? OR date(sessions.created_at / 1000, 'unixepoch') LIKE ?
			ORDER BY sessions.updated_at DESC`,
			like, like,
		).Scan(&summaries).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to search sessions: %w", err)
	}
	return summaries, nil
}

// UpdateSession applies a partial update, always bumping updated_at.
// Returns whether a row was affected.
func (s *Store) UpdateSession(ctx context.Context, id string, update models.SessionUpdate) (bool, error) {
	fields := map[string]interface{}{
		"updated_at": time.Now().UnixMilli(),
	}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Status != nil {
		fields["status"] = *update.Status
	}

	var affected int64
	err := withRetry(func() error {
		result := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Updates(fields)
		affected = result.RowsAffected
		return result.Error
	}, 3)
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	return affected > 0, nil
}

// DeleteSession hard-deletes a session; its actions cascade at the
// schema level. The caller owns screenshot directory cleanup.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := withRetry(func() error {
		result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{})
		affected = result.RowsAffected
		return result.Error
	}, 3)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return affected > 0, nil
}

// GetActiveSessionByName returns the most recently updated active
// session with the given name, or nil. This backs the find-or-create
// semantics of the hook endpoint.
func (s *Store) GetActiveSessionByName(ctx context.Context, name string) (*models.Session, error) {
	var session models.Session
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Where("name = ? AND status = ?", name, string(models.StatusActive)).
			Order("updated_at DESC").
			First(&session).Error
	}, 3)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	return &session, nil
}

// InsertAction persists a freshly accepted command with a server
// assigned id and timestamp, and bumps the owning session's updated_at
// in the same transaction. Result fields stay null until execution
// completes.
func (s *Store) InsertAction(ctx context.Context, sessionID, command string) (*models.Action, error) {
	action := models.Action{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Command:   command,
		Timestamp: time.Now().UnixMilli(),
	}

	err := withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&action).Error; err != nil {
				return err
			}
			return tx.Model(&models.Session{}).
				Where("id = ?", sessionID).
				Update("updated_at", action.Timestamp).Error
		})
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to insert action: %w", err)
	}
	return &action, nil
}

// UpdateAction sets only the provided fields on an action row. A no-op
// update returns false.
func (s *Store) UpdateAction(ctx context.Context, id string, update models.ActionUpdate) (bool, error) {
	if update.IsEmpty() {
		return false, nil
	}

	fields := map[string]interface{}{}
	if update.Result != nil {
		fields["result"] = *update.Result
	}
	if update.Error != nil {
		fields["error"] = *update.Error
	}
	if update.ScreenshotPath != nil {
		fields["screenshot_path"] = *update.ScreenshotPath
	}
	if update.URL != nil {
		fields["url"] = *update.URL
	}
	if update.PageTitle != nil {
		fields["page_title"] = *update.PageTitle
	}

	var affected int64
	err := withRetry(func() error {
		result := s.db.WithContext(ctx).Model(&models.Action{}).Where("id = ?", id).Updates(fields)
		affected = result.RowsAffected
		return result.Error
	}, 3)
	if err != nil {
		return false, fmt.Errorf("failed to update action: %w", err)
	}
	return affected > 0, nil
}

// GetSessionActions returns all actions for a session in timestamp
// order, the canonical replay order for session detail views.
func (s *Store) GetSessionActions(ctx context.Context, sessionID string) ([]models.Action, error) {
	actions := []models.Action{}
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("timestamp ASC").
			Find(&actions).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to load session actions: %w", err)
	}
	return actions, nil
}

// withRetry retries on SQLITE_BUSY with linear backoff.
func withRetry(fn func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}
		return err
	}
	return err
}
