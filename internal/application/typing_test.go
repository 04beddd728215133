package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeEventTypes(t *testing.T, payloads [][]byte) []string {
	t.Helper()
	types := make([]string, 0, len(payloads))
	for _, p := range payloads {
		var ev Event
		require.NoError(t, json.Unmarshal(p, &ev))
		types = append(types, ev.Type)
	}
	return types
}

func newTypingFixture(t *testing.T) (*TypingBroadcaster, *fakeConn) {
	t.Helper()
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(10, 200)
	router := NewRoomRouter(members)

	peer := newFakeConn("peer", 200, "phone")
	require.NoError(t, router.Join(context.Background(), peer, 10))
	return NewTypingBroadcaster(router), peer
}

func TestTypingFreshStartBroadcastsOnce(t *testing.T) {
	b, peer := newTypingFixture(t)
	ctx := context.Background()

	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	require.Equal(t, []string{EventTypingStarted}, decodeEventTypes(t, peer.sentPayloads()))

	// TTL 内的续期静默
	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	require.Equal(t, 1, peer.sentCount())
}

func TestTypingStopBroadcastsAndIsIdempotent(t *testing.T) {
	b, peer := newTypingFixture(t)
	ctx := context.Background()

	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	require.NoError(t, b.StopTyping(ctx, 10, 100, "typist"))
	require.Equal(t, []string{EventTypingStarted, EventTypingStopped},
		decodeEventTypes(t, peer.sentPayloads()))

	// 没有活跃状态时 stop 是空操作
	require.NoError(t, b.StopTyping(ctx, 10, 100, "typist"))
	require.Equal(t, 2, peer.sentCount())
}

func TestTypingStartAfterStopBroadcastsAgain(t *testing.T) {
	b, peer := newTypingFixture(t)
	ctx := context.Background()

	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	require.NoError(t, b.StopTyping(ctx, 10, 100, "typist"))
	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))

	require.Equal(t, []string{EventTypingStarted, EventTypingStopped, EventTypingStarted},
		decodeEventTypes(t, peer.sentPayloads()))
}

func TestTypingSweepEmitsStopped(t *testing.T) {
	b, peer := newTypingFixture(t)
	ctx := context.Background()
	b.ttl = 10 * time.Millisecond

	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))

	// 未过期的清扫不产生事件
	b.sweep(time.Now())
	require.Equal(t, 1, peer.sentCount())

	b.sweep(time.Now().Add(time.Second))
	require.Equal(t, []string{EventTypingStarted, EventTypingStopped},
		decodeEventTypes(t, peer.sentPayloads()))

	// 已清扫的条目不会再次过期
	b.sweep(time.Now().Add(2 * time.Second))
	require.Equal(t, 2, peer.sentCount())
}

func TestTypingExpiredEntryCountsAsFreshStart(t *testing.T) {
	b, peer := newTypingFixture(t)
	ctx := context.Background()
	b.ttl = time.Millisecond

	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	time.Sleep(5 * time.Millisecond)

	// 条目已过期但尚未被清扫：再次 start 视为新一轮输入
	require.NoError(t, b.StartTyping(ctx, 10, 100, "typist"))
	require.Equal(t, []string{EventTypingStarted, EventTypingStarted},
		decodeEventTypes(t, peer.sentPayloads()))
}
