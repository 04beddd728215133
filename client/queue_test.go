package client

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestQueue(t *testing.T) *OfflineQueue {
	t.Helper()
	q, err := OpenOfflineQueue(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func enqueueAt(t *testing.T, q *OfflineQueue, tempID string, at time.Time) {
	t.Helper()
	err := q.Enqueue(&PendingMessage{
		TempID:         tempID,
		ConversationID: 10,
		ContentType:    1,
		Content:        "msg-" + tempID,
		CreatedAt:      at,
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", tempID, err)
	}
}

func TestQueuePendingOrder(t *testing.T) {
	q := openTestQueue(t)
	base := time.Now()
	enqueueAt(t, q, "t2", base.Add(time.Second))
	enqueueAt(t, q, "t1", base)
	enqueueAt(t, q, "t3", base.Add(2*time.Second))

	msgs, err := q.Pending(0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	want := []string{"t1", "t2", "t3"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d pending, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if m.TempID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], m.TempID)
		}
	}
}

func TestQueueEnqueueIsIdempotent(t *testing.T) {
	q := openTestQueue(t)
	now := time.Now()
	enqueueAt(t, q, "t1", now)
	enqueueAt(t, q, "t1", now.Add(time.Hour)) // 重复入队无副作用

	count, err := q.PendingCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending after duplicate enqueue, got %d", count)
	}

	msgs, _ := q.Pending(0)
	if got := msgs[0].CreatedAt; got.UnixMilli() != now.UnixMilli() {
		t.Fatalf("duplicate enqueue must not overwrite original row, got createdAt %v", got)
	}
}

func TestQueuePendingAfterPaginates(t *testing.T) {
	q := openTestQueue(t)
	base := time.Now()
	ids := []string{"t1", "t2", "t3", "t4", "t5"}
	for i, id := range ids {
		enqueueAt(t, q, id, base.Add(time.Duration(i)*time.Second))
	}

	// 行在收到 ACK 前不出队：翻页靠游标推进，而不是等头部被删除
	var got []string
	var cursorAt time.Time
	var cursorID string
	for {
		batch, err := q.PendingAfter(cursorAt, cursorID, 2)
		if err != nil {
			t.Fatalf("pending after: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		if len(batch) > 2 {
			t.Fatalf("batch exceeds limit: %d", len(batch))
		}
		for _, m := range batch {
			got = append(got, m.TempID)
		}
		last := batch[len(batch)-1]
		cursorAt, cursorID = last.CreatedAt, last.TempID
	}

	if len(got) != len(ids) {
		t.Fatalf("expected %d messages across batches, got %d", len(ids), len(got))
	}
	for i, id := range got {
		if id != ids[i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[i], id)
		}
	}
}

func TestQueueAckRemovesMessage(t *testing.T) {
	q := openTestQueue(t)
	enqueueAt(t, q, "t1", time.Now())

	if err := q.Ack("t1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if count, _ := q.PendingCount(); count != 0 {
		t.Fatalf("expected empty queue after ack, got %d", count)
	}

	// Ack 幂等：不存在的 tempId 不报错
	if err := q.Ack("t1"); err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if err := q.Ack("never-seen"); err != nil {
		t.Fatalf("ack unknown: %v", err)
	}
}

func TestQueueMarkFailedExcludesFromPending(t *testing.T) {
	q := openTestQueue(t)
	enqueueAt(t, q, "t1", time.Now())
	enqueueAt(t, q, "t2", time.Now().Add(time.Second))

	if err := q.MarkFailed("t1", "FORBIDDEN"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	msgs, err := q.Pending(0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(msgs) != 1 || msgs[0].TempID != "t2" {
		t.Fatalf("expected only t2 pending, got %v", msgs)
	}
}

func TestQueueIncrAttempt(t *testing.T) {
	q := openTestQueue(t)
	enqueueAt(t, q, "t1", time.Now())

	if err := q.IncrAttempt("t1"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := q.IncrAttempt("t1"); err != nil {
		t.Fatalf("incr: %v", err)
	}

	msgs, _ := q.Pending(0)
	if msgs[0].Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", msgs[0].Attempts)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	q, err := OpenOfflineQueue(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	enqueueAt(t, q, "t1", time.Now())
	q.Close()

	q2, err := OpenOfflineQueue(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer q2.Close()
	count, err := q2.PendingCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected queued message to survive restart, got %d", count)
	}
}
