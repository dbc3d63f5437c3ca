package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// sqlStore implements Store over database/sql, shared by the SQLite and
// Postgres backends (SPEC_FULL.md §4.K names exactly two implementations).
// The only dialect difference between them is parameter placeholder syntax
// ("?" vs "$N"), captured by placeholder, following the teacher's
// cockroachStore pattern of one struct per backend built on the same SQL
// shape.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
	close       func() error
}

func qMarks(n int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// rebind expands a query written with "?" placeholders (in positional
// order) into the dialect's native placeholder syntax.
func (s *sqlStore) rebind(query string) string {
	if s.placeholder(1) == "?" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, []byte(s.placeholder(n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func (s *sqlStore) Close() error {
	if s.close != nil {
		return s.close()
	}
	return s.db.Close()
}

// Both SQLite (3.24+) and Postgres support standard ON CONFLICT upsert
// syntax, so these two statements are shared verbatim across backends.
const upsertSettingSQL = `
INSERT INTO settings (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

const upsertFailureSQL = `
INSERT INTO broken_tools (name, last_error, failure_count, first_failure, last_failure, repair_attempts)
VALUES (?, ?, 1, ?, ?, 0)
ON CONFLICT (name) DO UPDATE SET
	failure_count = broken_tools.failure_count + 1,
	last_error = ?,
	last_failure = ?
`

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	user_id TEXT NOT NULL,
	thread_id TEXT,
	started_at TEXT NOT NULL,
	last_activity TEXT NOT NULL,
	metadata TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);
CREATE TABLE IF NOT EXISTS broken_tools (
	name TEXT PRIMARY KEY,
	last_error TEXT,
	failure_count INTEGER NOT NULL DEFAULT 0,
	first_failure TEXT,
	last_failure TEXT,
	last_build_result TEXT,
	repair_attempts INTEGER NOT NULL DEFAULT 0
);
`

func rfc3339(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *sqlStore) CreateConversation(ctx context.Context, conv models.Conversation) error {
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return NewError(ErrSerialization, "marshal conversation metadata", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO conversations (id, channel, user_id, thread_id, started_at, last_activity, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		conv.ID.String(), conv.Channel, conv.UserID, conv.ThreadID, rfc3339(conv.StartedAt), rfc3339(conv.LastActivity), string(meta))
	if err != nil {
		return NewError(ErrQuery, "insert conversation", err)
	}
	return nil
}

func (s *sqlStore) scanConversation(row interface{ Scan(...any) error }) (models.Conversation, error) {
	var id, channel, userID, startedAt, lastActivity, metadata string
	var threadID sql.NullString
	if err := row.Scan(&id, &channel, &userID, &threadID, &startedAt, &lastActivity, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, NewError(ErrNotFound, "conversation not found", nil)
		}
		return models.Conversation{}, NewError(ErrQuery, "scan conversation", err)
	}
	conv := models.Conversation{
		ID:           uuid.MustParse(id),
		Channel:      channel,
		UserID:       userID,
		StartedAt:    parseTime(startedAt),
		LastActivity: parseTime(lastActivity),
		Metadata:     map[string]any{},
	}
	if threadID.Valid {
		t := threadID.String
		conv.ThreadID = &t
	}
	_ = json.Unmarshal([]byte(metadata), &conv.Metadata)
	return conv, nil
}

func (s *sqlStore) GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, channel, user_id, thread_id, started_at, last_activity, metadata FROM conversations WHERE id = ?`),
		id.String())
	return s.scanConversation(row)
}

func (s *sqlStore) TouchConversation(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE conversations SET last_activity = ? WHERE id = ?`), rfc3339(now), id.String())
	if err != nil {
		return NewError(ErrQuery, "touch conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrNotFound, "conversation not found", nil)
	}
	return nil
}

func (s *sqlStore) GetOrCreateConversation(ctx context.Context, channel, userID string, threadID *string) (models.Conversation, error) {
	var row *sql.Row
	if threadID == nil {
		row = s.db.QueryRowContext(ctx, s.rebind(
			`SELECT id, channel, user_id, thread_id, started_at, last_activity, metadata FROM conversations
			 WHERE channel = ? AND user_id = ? AND thread_id IS NULL LIMIT 1`), channel, userID)
	} else {
		row = s.db.QueryRowContext(ctx, s.rebind(
			`SELECT id, channel, user_id, thread_id, started_at, last_activity, metadata FROM conversations
			 WHERE channel = ? AND user_id = ? AND thread_id = ? LIMIT 1`), channel, userID, *threadID)
	}

	conv, err := s.scanConversation(row)
	if err == nil {
		return conv, nil
	}
	var storeErr *Error
	if !errors.As(err, &storeErr) || storeErr.Kind != ErrNotFound {
		return models.Conversation{}, err
	}

	now := time.Now().UTC()
	conv = models.Conversation{
		ID:           uuid.New(),
		Channel:      channel,
		UserID:       userID,
		ThreadID:     threadID,
		StartedAt:    now,
		LastActivity: now,
		Metadata:     map[string]any{},
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

func (s *sqlStore) OwnedBy(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return false, err
	}
	return conv.UserID == userID, nil
}

func (s *sqlStore) AppendMessage(ctx context.Context, msg models.ConversationMessage) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO conversation_messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`),
		msg.ID.String(), msg.ConversationID.String(), msg.Role, msg.Content, rfc3339(msg.CreatedAt))
	if err != nil {
		return NewError(ErrQuery, "insert message", err)
	}
	return nil
}

func (s *sqlStore) ListMessages(ctx context.Context, conv uuid.UUID, before *uuid.UUID, limit int) ([]models.ConversationMessage, error) {
	query := `SELECT id, conversation_id, role, content, created_at FROM conversation_messages WHERE conversation_id = ?`
	args := []any{conv.String()}

	if before != nil {
		beforeMsg, err := s.getMessage(ctx, *before)
		if err != nil {
			return nil, err
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, rfc3339(beforeMsg.CreatedAt), rfc3339(beforeMsg.CreatedAt), beforeMsg.ID.String())
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, NewError(ErrQuery, "list messages", err)
	}
	defer rows.Close()

	var out []models.ConversationMessage
	for rows.Next() {
		var id, convID, role, content, createdAt string
		if err := rows.Scan(&id, &convID, &role, &content, &createdAt); err != nil {
			return nil, NewError(ErrQuery, "scan message", err)
		}
		out = append(out, models.ConversationMessage{
			ID:             uuid.MustParse(id),
			ConversationID: uuid.MustParse(convID),
			Role:           role,
			Content:        content,
			CreatedAt:      parseTime(createdAt),
		})
	}
	// rows come back newest-first; restore chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func (s *sqlStore) getMessage(ctx context.Context, id uuid.UUID) (models.ConversationMessage, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, conversation_id, role, content, created_at FROM conversation_messages WHERE id = ?`), id.String())
	var msgID, convID, role, content, createdAt string
	if err := row.Scan(&msgID, &convID, &role, &content, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ConversationMessage{}, NewError(ErrNotFound, "message not found", nil)
		}
		return models.ConversationMessage{}, NewError(ErrQuery, "scan message", err)
	}
	return models.ConversationMessage{
		ID:             uuid.MustParse(msgID),
		ConversationID: uuid.MustParse(convID),
		Role:           role,
		Content:        content,
		CreatedAt:      parseTime(createdAt),
	}, nil
}

func (s *sqlStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, channel, user_id, thread_id, started_at, last_activity, metadata FROM conversations
		 WHERE user_id = ? ORDER BY last_activity DESC LIMIT ? OFFSET ?`), userID, limit, offset)
	if err != nil {
		return nil, NewError(ErrQuery, "list conversations", err)
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		preview := s.lastMessagePreview(ctx, conv.ID)
		out = append(out, models.ConversationSummary{Conversation: conv, Preview: preview})
	}
	return out, rows.Err()
}

func (s *sqlStore) lastMessagePreview(ctx context.Context, conv uuid.UUID) string {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT content FROM conversation_messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`),
		conv.String())
	var content string
	if err := row.Scan(&content); err != nil {
		return ""
	}
	return content
}

func (s *sqlStore) SetMetadata(ctx context.Context, id uuid.UUID, key string, value any) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if conv.Metadata == nil {
		conv.Metadata = map[string]any{}
	}
	conv.Metadata[key] = value
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return NewError(ErrSerialization, "marshal conversation metadata", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`UPDATE conversations SET metadata = ? WHERE id = ?`), string(meta), id.String())
	if err != nil {
		return NewError(ErrQuery, "update conversation metadata", err)
	}
	return nil
}

func (s *sqlStore) GetMetadata(ctx context.Context, id uuid.UUID, key string) (any, bool, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	v, ok := conv.Metadata[key]
	return v, ok, nil
}

func (s *sqlStore) Set(ctx context.Context, userID, key string, value []byte) error {
	return s.SetAll(ctx, userID, map[string][]byte{key: value})
}

func (s *sqlStore) Get(ctx context.Context, userID, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM settings WHERE user_id = ? AND key = ?`), userID, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(ErrNotFound, "setting not found", nil)
		}
		return nil, NewError(ErrQuery, "get setting", err)
	}
	return []byte(value), nil
}

func (s *sqlStore) Delete(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM settings WHERE user_id = ? AND key = ?`), userID, key)
	if err != nil {
		return NewError(ErrQuery, "delete setting", err)
	}
	return nil
}

func (s *sqlStore) List(ctx context.Context, userID string) ([]models.SettingRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT key, value, updated_at FROM settings WHERE user_id = ? ORDER BY key`), userID)
	if err != nil {
		return nil, NewError(ErrQuery, "list settings", err)
	}
	defer rows.Close()

	var out []models.SettingRow
	for rows.Next() {
		var key, value, updatedAt string
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return nil, NewError(ErrQuery, "scan setting", err)
		}
		out = append(out, models.SettingRow{Key: key, Value: []byte(value), UpdatedAt: parseTime(updatedAt)})
	}
	return out, rows.Err()
}

func (s *sqlStore) SetAll(ctx context.Context, userID string, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewError(ErrConnection, "begin transaction", err)
	}
	defer tx.Rollback()

	now := rfc3339(time.Now())
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, s.rebind(upsertSettingSQL), userID, key, string(value), now); err != nil {
			return NewError(ErrQuery, "upsert setting", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return NewError(ErrQuery, "commit settings", err)
	}
	return nil
}

func (s *sqlStore) GetAll(ctx context.Context, userID string) (map[string][]byte, error) {
	rows, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *sqlStore) Exists(ctx context.Context, userID, key string) (bool, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM settings WHERE user_id = ? AND key = ?`), userID, key)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, NewError(ErrQuery, "check setting existence", err)
	}
	return true, nil
}

func (s *sqlStore) RecordFailure(ctx context.Context, name, lastErr string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(upsertFailureSQL), name, lastErr, rfc3339(at), rfc3339(at), lastErr, rfc3339(at))
	if err != nil {
		return NewError(ErrQuery, "record tool failure", err)
	}
	return nil
}

func (s *sqlStore) GetBrokenTools(ctx context.Context, threshold int) ([]models.BrokenTool, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT name, last_error, failure_count, first_failure, last_failure, last_build_result, repair_attempts
		 FROM broken_tools WHERE failure_count >= ? ORDER BY name`), threshold)
	if err != nil {
		return nil, NewError(ErrQuery, "list broken tools", err)
	}
	defer rows.Close()

	var out []models.BrokenTool
	for rows.Next() {
		var name string
		var lastError, lastBuildResult sql.NullString
		var count, repairAttempts int
		var firstFailure, lastFailure string
		if err := rows.Scan(&name, &lastError, &count, &firstFailure, &lastFailure, &lastBuildResult, &repairAttempts); err != nil {
			return nil, NewError(ErrQuery, "scan broken tool", err)
		}
		bt := models.BrokenTool{
			Name:           name,
			FailureCount:   count,
			FirstFailure:   parseTime(firstFailure),
			LastFailure:    parseTime(lastFailure),
			RepairAttempts: repairAttempts,
		}
		if lastError.Valid {
			bt.LastError = &lastError.String
		}
		if lastBuildResult.Valid {
			bt.LastBuildResult = &lastBuildResult.String
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkRepaired(ctx context.Context, name string, buildResult string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE broken_tools SET failure_count = 0, last_build_result = ? WHERE name = ?`), buildResult, name)
	if err != nil {
		return NewError(ErrQuery, "mark tool repaired", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrNotFound, "tool not found", nil)
	}
	return nil
}

func (s *sqlStore) IncrementRepairAttempts(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE broken_tools SET repair_attempts = repair_attempts + 1 WHERE name = ?`), name)
	if err != nil {
		return NewError(ErrQuery, "increment repair attempts", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrNotFound, "tool not found", nil)
	}
	return nil
}

var _ Store = (*sqlStore)(nil)
