package client

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// 离线消息状态
const (
	statusPending = "pending"
	statusFailed  = "failed"
)

// PendingMessage 等待发送的离线消息
// TempID 是客户端生成的幂等令牌，服务端 ACK 带回后出队
type PendingMessage struct {
	TempID         string
	ConversationID uint64
	ContentType    int8
	Content        string
	CreatedAt      time.Time
	Attempts       int
	Status         string
	LastError      string
}

// OfflineQueue 持久化离线发送队列（SQLite）
// 进程重启后队列仍在；重放按入队顺序进行，保证发送方观察顺序
type OfflineQueue struct {
	db *sql.DB
}

// OpenOfflineQueue 打开（必要时建表）本地队列
func OpenOfflineQueue(path string) (*OfflineQueue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open offline queue: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	temp_id         TEXT PRIMARY KEY,
	conversation_id INTEGER NOT NULL,
	content_type    INTEGER NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'pending',
	last_error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox(status, created_at);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init offline queue schema: %w", err)
	}
	return &OfflineQueue{db: db}, nil
}

func (q *OfflineQueue) Close() error {
	return q.db.Close()
}

// Enqueue 入队；temp_id 已存在时静默成功（同一条消息重复入队无副作用）
func (q *OfflineQueue) Enqueue(msg *PendingMessage) error {
	_, err := q.db.Exec(
		`INSERT OR IGNORE INTO outbox (temp_id, conversation_id, content_type, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.TempID, msg.ConversationID, msg.ContentType, msg.Content, msg.CreatedAt.UnixMilli(),
	)
	return err
}

// Pending 按入队顺序取待发送消息
func (q *OfflineQueue) Pending(limit int) ([]*PendingMessage, error) {
	return q.PendingAfter(time.Time{}, "", limit)
}

// PendingAfter 从游标（created_at, temp_id）之后按入队顺序取一批待发送消息
// 重放尚未收到 ACK 时行还在表里，游标翻页保证跨批次不重取不遗漏
func (q *OfflineQueue) PendingAfter(after time.Time, afterTempID string, limit int) ([]*PendingMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	at := after.UnixMilli()
	rows, err := q.db.Query(
		`SELECT temp_id, conversation_id, content_type, content, created_at, attempts, status, last_error
		 FROM outbox
		 WHERE status = ? AND (created_at > ? OR (created_at = ? AND temp_id > ?))
		 ORDER BY created_at ASC, temp_id ASC LIMIT ?`,
		statusPending, at, at, afterTempID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*PendingMessage
	for rows.Next() {
		var m PendingMessage
		var createdAt int64
		if err := rows.Scan(&m.TempID, &m.ConversationID, &m.ContentType, &m.Content,
			&createdAt, &m.Attempts, &m.Status, &m.LastError); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// Ack 服务端确认后出队，幂等
func (q *OfflineQueue) Ack(tempID string) error {
	_, err := q.db.Exec(`DELETE FROM outbox WHERE temp_id = ?`, tempID)
	return err
}

// MarkFailed 永久失败（如 FORBIDDEN），不再重试但保留记录供上层展示
func (q *OfflineQueue) MarkFailed(tempID, reason string) error {
	_, err := q.db.Exec(
		`UPDATE outbox SET status = ?, last_error = ? WHERE temp_id = ?`,
		statusFailed, reason, tempID,
	)
	return err
}

// IncrAttempt 记一次发送尝试
func (q *OfflineQueue) IncrAttempt(tempID string) error {
	_, err := q.db.Exec(`UPDATE outbox SET attempts = attempts + 1 WHERE temp_id = ?`, tempID)
	return err
}

// PendingCount 待发送条数
func (q *OfflineQueue) PendingCount() (int, error) {
	var count int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE status = ?`, statusPending).Scan(&count)
	return count, err
}
