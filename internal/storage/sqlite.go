package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/covergate/eligibility-engine/internal/model"
)

// SQLiteStore implements all repositories on a single SQLite database.
// Records are stored as JSON payloads with the columns needed for filtering
// extracted alongside; scheduled actions live in their own table so that
// marking one executed and persisting the reminder it emits commit in a
// single transaction.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(logger *zap.Logger, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		logger: logger.Named("storage"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conditions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			priority TEXT NOT NULL,
			is_active INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			condition_id TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_subject ON alerts(subject_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_live ON alerts(subject_id, condition_id, status);
		CREATE TABLE IF NOT EXISTS scheduled_actions (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL REFERENCES alerts(id),
			type TEXT NOT NULL,
			scheduled_date DATETIME NOT NULL,
			executed INTEGER NOT NULL DEFAULT 0,
			executed_date DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_actions_alert ON scheduled_actions(alert_id);
		CREATE INDEX IF NOT EXISTS idx_actions_due ON scheduled_actions(executed, scheduled_date);
		CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reminders_alert ON reminders(alert_id);
		CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			category TEXT NOT NULL,
			evaluated_at DATETIME NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_results_subject ON results(subject_id, evaluated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// SaveCondition implements ConditionStore.SaveCondition
func (s *SQLiteStore) SaveCondition(ctx context.Context, cond *model.EligibilityCondition) error {
	payload, err := json.Marshal(cond)
	if err != nil {
		return fmt.Errorf("failed to marshal condition: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conditions (id, name, type, priority, is_active, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			priority = excluded.priority,
			is_active = excluded.is_active,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		cond.ID, cond.Name, string(cond.Type), string(cond.Priority),
		boolToInt(cond.IsActive), string(payload), cond.CreatedAt, cond.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save condition: %w", err)
	}
	return nil
}

// GetCondition implements ConditionStore.GetCondition
func (s *SQLiteStore) GetCondition(ctx context.Context, id string) (*model.EligibilityCondition, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM conditions WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get condition: %w", err)
	}
	return unmarshalCondition(payload)
}

// ListConditions implements ConditionStore.ListConditions
func (s *SQLiteStore) ListConditions(ctx context.Context) ([]*model.EligibilityCondition, error) {
	return s.queryConditions(ctx, `SELECT payload FROM conditions ORDER BY id`)
}

// ListActiveConditions implements ConditionStore.ListActiveConditions
func (s *SQLiteStore) ListActiveConditions(ctx context.Context, category string) ([]*model.EligibilityCondition, error) {
	conditions, err := s.queryConditions(ctx, `SELECT payload FROM conditions WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []*model.EligibilityCondition
	for _, cond := range conditions {
		if cond.AppliesTo(category) {
			out = append(out, cond)
		}
	}
	return out, nil
}

func (s *SQLiteStore) queryConditions(ctx context.Context, query string, args ...interface{}) ([]*model.EligibilityCondition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	defer rows.Close()

	var out []*model.EligibilityCondition
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		cond, err := unmarshalCondition(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, rows.Err()
}

// SaveAlert implements AlertStore.SaveAlert
func (s *SQLiteStore) SaveAlert(ctx context.Context, alert *model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (id, subject_id, condition_id, status, priority, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		alert.ID, alert.SubjectID, alert.ConditionID, string(alert.Status),
		string(alert.Priority), string(payload), alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	for _, action := range alert.ScheduledActions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO scheduled_actions (id, alert_id, type, scheduled_date, executed, executed_date)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			action.ID, alert.ID, string(action.Type), action.ScheduledDate,
			boolToInt(action.Executed), nullTime(action.ExecutedDate),
		)
		if err != nil {
			return fmt.Errorf("failed to save scheduled action: %w", err)
		}
	}

	return tx.Commit()
}

// GetAlert implements AlertStore.GetAlert
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM alerts WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return s.composeAlert(ctx, payload)
}

// FindLive implements AlertStore.FindLive
func (s *SQLiteStore) FindLive(ctx context.Context, subjectID, conditionID string) (*model.Alert, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM alerts
		WHERE subject_id = ? AND condition_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		subjectID, conditionID,
		string(model.AlertStatusPending), string(model.AlertStatusInProgress),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find live alert: %w", err)
	}
	return s.composeAlert(ctx, payload)
}

// ListAlerts implements AlertStore.ListAlerts
func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*model.Alert, error) {
	query := `SELECT payload FROM alerts`
	var clauses []string
	var args []interface{}

	if filter.SubjectID != "" {
		clauses = append(clauses, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if len(filter.Status) > 0 {
		clause := "status IN ("
		for i, status := range filter.Status {
			if i > 0 {
				clause += ", "
			}
			clause += "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, clause+")")
	}
	if len(filter.Priority) > 0 {
		clause := "priority IN ("
		for i, priority := range filter.Priority {
			if i > 0 {
				clause += ", "
			}
			clause += "?"
			args = append(args, string(priority))
		}
		clauses = append(clauses, clause+")")
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*model.Alert
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alert, err := s.composeAlert(ctx, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// MarkActionExecuted implements AlertStore.MarkActionExecuted. The executed
// flag and the emitted reminder commit together; an already-executed action
// is a no-op.
func (s *SQLiteStore) MarkActionExecuted(ctx context.Context, alertID, actionID string, executedAt time.Time, reminder *model.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var executed int
	err = tx.QueryRowContext(ctx, `SELECT executed FROM scheduled_actions WHERE id = ? AND alert_id = ?`,
		actionID, alertID).Scan(&executed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrActionNotFound
		}
		return fmt.Errorf("failed to read scheduled action: %w", err)
	}
	if executed != 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE scheduled_actions SET executed = 1, executed_date = ? WHERE id = ?`,
		executedAt, actionID); err != nil {
		return fmt.Errorf("failed to mark action executed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE alerts SET updated_at = ? WHERE id = ?`,
		executedAt, alertID); err != nil {
		return fmt.Errorf("failed to touch alert: %w", err)
	}

	if reminder != nil {
		payload, err := json.Marshal(reminder)
		if err != nil {
			return fmt.Errorf("failed to marshal reminder: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reminders (id, alert_id, subject_id, status, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			reminder.ID, reminder.AlertID, reminder.SubjectID,
			string(reminder.Status), string(payload), reminder.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to store reminder: %w", err)
		}
	}

	return tx.Commit()
}

// SaveReminder implements ReminderStore.SaveReminder
func (s *SQLiteStore) SaveReminder(ctx context.Context, reminder *model.Reminder) error {
	payload, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, alert_id, subject_id, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload`,
		reminder.ID, reminder.AlertID, reminder.SubjectID,
		string(reminder.Status), string(payload), reminder.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reminder: %w", err)
	}
	return nil
}

// GetReminder implements ReminderStore.GetReminder
func (s *SQLiteStore) GetReminder(ctx context.Context, id string) (*model.Reminder, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reminders WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return unmarshalReminder(payload)
}

// ListByAlert implements ReminderStore.ListByAlert
func (s *SQLiteStore) ListByAlert(ctx context.Context, alertID string) ([]*model.Reminder, error) {
	return s.queryReminders(ctx, `SELECT payload FROM reminders WHERE alert_id = ? ORDER BY created_at`, alertID)
}

// ListActiveReminders implements ReminderStore.ListActiveReminders
func (s *SQLiteStore) ListActiveReminders(ctx context.Context) ([]*model.Reminder, error) {
	return s.queryReminders(ctx, `SELECT payload FROM reminders WHERE status = ? ORDER BY created_at`,
		string(model.ReminderStatusActive))
}

func (s *SQLiteStore) queryReminders(ctx context.Context, query string, args ...interface{}) ([]*model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var out []*model.Reminder
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminder, err := unmarshalReminder(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, reminder)
	}
	return out, rows.Err()
}

// AppendResult implements ResultStore.AppendResult
func (s *SQLiteStore) AppendResult(ctx context.Context, result *model.EligibilityResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, subject_id, category, evaluated_at, payload)
		VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.SubjectID, result.Category, result.EvaluatedAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append result: %w", err)
	}
	return nil
}

// ListResults implements ResultStore.ListResults
func (s *SQLiteStore) ListResults(ctx context.Context, subjectID string, limit int) ([]*model.EligibilityResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM results WHERE subject_id = ? ORDER BY evaluated_at DESC LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []*model.EligibilityResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var result model.EligibilityResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		out = append(out, &result)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// composeAlert rebuilds an alert from its JSON payload and overlays the
// authoritative action rows, so an executed flag committed by a concurrent
// sweep is never lost to a stale payload.
func (s *SQLiteStore) composeAlert(ctx context.Context, payload string) (*model.Alert, error) {
	var alert model.Alert
	if err := json.Unmarshal([]byte(payload), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, scheduled_date, executed, executed_date
		FROM scheduled_actions WHERE alert_id = ? ORDER BY scheduled_date`,
		alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled actions: %w", err)
	}
	defer rows.Close()

	var actions []model.ScheduledAction
	for rows.Next() {
		var action model.ScheduledAction
		var executed int
		var executedDate sql.NullTime
		if err := rows.Scan(&action.ID, &action.Type, &action.ScheduledDate, &executed, &executedDate); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled action: %w", err)
		}
		action.Executed = executed != 0
		if executedDate.Valid {
			action.ExecutedDate = &executedDate.Time
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	alert.ScheduledActions = actions
	return &alert, nil
}

func unmarshalCondition(payload string) (*model.EligibilityCondition, error) {
	var cond model.EligibilityCondition
	if err := json.Unmarshal([]byte(payload), &cond); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
	}
	return &cond, nil
}

func unmarshalReminder(payload string) (*model.Reminder, error) {
	var reminder model.Reminder
	if err := json.Unmarshal([]byte(payload), &reminder); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reminder: %w", err)
	}
	return &reminder, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
