package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

func TestRouterJoinRequiresActiveMembership(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	r := NewRoomRouter(members)

	member := newFakeConn("s1", 100, "phone")
	require.NoError(t, r.Join(context.Background(), member, 10))
	require.Equal(t, 1, r.RoomSize(10))

	outsider := newFakeConn("s2", 200, "phone")
	err := r.Join(context.Background(), outsider, 10)
	require.ErrorIs(t, err, entity.ErrForbidden)
	require.Equal(t, 1, r.RoomSize(10))
}

func TestRouterJoinAll(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(20, 100)
	members.addMember(30, 200)
	r := NewRoomRouter(members)

	conn := newFakeConn("s1", 100, "phone")
	require.NoError(t, r.JoinAll(context.Background(), conn))
	require.Equal(t, 1, r.RoomSize(10))
	require.Equal(t, 1, r.RoomSize(20))
	require.Equal(t, 0, r.RoomSize(30))
}

func TestRouterBroadcastExcludesSender(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(10, 200)
	r := NewRoomRouter(members)

	sender := newFakeConn("s1", 100, "phone")
	peer := newFakeConn("s2", 200, "phone")
	require.NoError(t, r.Join(context.Background(), sender, 10))
	require.NoError(t, r.Join(context.Background(), peer, 10))

	r.Broadcast(10, EventMessageNew, []byte(`{"type":"message.new"}`), "s1")

	require.Equal(t, 0, sender.sentCount(), "sender session must not receive its own event")
	require.Equal(t, 1, peer.sentCount())
}

func TestRouterBroadcastPreservesOrder(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	r := NewRoomRouter(members)

	conn := newFakeConn("s1", 100, "phone")
	require.NoError(t, r.Join(context.Background(), conn, 10))

	r.Broadcast(10, EventMessageNew, []byte("m1"), "")
	r.Broadcast(10, EventMessageNew, []byte("m2"), "")
	r.Broadcast(10, EventMessageNew, []byte("m3"), "")

	got := conn.sentPayloads()
	require.Equal(t, [][]byte{[]byte("m1"), []byte("m2"), []byte("m3")}, got)
}

func TestRouterBroadcastNilPayloadIsNoop(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	r := NewRoomRouter(members)
	conn := newFakeConn("s1", 100, "phone")
	require.NoError(t, r.Join(context.Background(), conn, 10))

	r.Broadcast(10, EventMessageNew, nil, "")
	require.Equal(t, 0, conn.sentCount())
}

func TestRouterOverflowDisconnectsOnlyOffender(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(10, 200)
	r := NewRoomRouter(members)

	slow := newFakeConn("s1", 100, "phone")
	slow.capacity = 1
	healthy := newFakeConn("s2", 200, "phone")
	require.NoError(t, r.Join(context.Background(), slow, 10))
	require.NoError(t, r.Join(context.Background(), healthy, 10))

	r.Broadcast(10, EventMessageNew, []byte("m1"), "")
	r.Broadcast(10, EventMessageNew, []byte("m2"), "")

	require.True(t, slow.IsClosed())
	require.False(t, healthy.IsClosed())
	require.Equal(t, 2, healthy.sentCount())
}

func TestRouterLeaveIsIdempotent(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	r := NewRoomRouter(members)
	conn := newFakeConn("s1", 100, "phone")
	require.NoError(t, r.Join(context.Background(), conn, 10))

	r.Leave("s1", 10)
	require.Equal(t, 0, r.RoomSize(10))
	r.Leave("s1", 10)
	r.Leave("s1", 999)
}

func TestRouterLeaveAllRemovesFromEveryRoom(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(20, 100)
	r := NewRoomRouter(members)
	conn := newFakeConn("s1", 100, "phone")
	require.NoError(t, r.JoinAll(context.Background(), conn))

	r.LeaveAll("s1")
	require.Equal(t, 0, r.RoomSize(10))
	require.Equal(t, 0, r.RoomSize(20))

	r.Broadcast(10, EventMessageNew, []byte("m"), "")
	require.Equal(t, 0, conn.sentCount())
}
