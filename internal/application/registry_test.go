package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

func newSession(id string, userID uint64, deviceID string) *entity.Session {
	now := time.Now()
	return &entity.Session{
		ID:           id,
		UserID:       userID,
		DeviceID:     deviceID,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

func TestRegistryOnlineEdge(t *testing.T) {
	r := NewSessionRegistry()

	c1 := newFakeConn("s1", 100, "phone")
	cameOnline := r.Register(newSession("s1", 100, "phone"), c1)
	require.True(t, cameOnline, "first session should raise the online edge")
	require.True(t, r.IsOnline(100))

	// 第二台设备上线不再产生边沿
	c2 := newFakeConn("s2", 100, "laptop")
	cameOnline = r.Register(newSession("s2", 100, "laptop"), c2)
	require.False(t, cameOnline, "second device must not raise another edge")
	require.Len(t, r.SessionsFor(100), 2)
}

func TestRegistryOfflineEdge(t *testing.T) {
	r := NewSessionRegistry()
	r.Register(newSession("s1", 100, "phone"), newFakeConn("s1", 100, "phone"))
	r.Register(newSession("s2", 100, "laptop"), newFakeConn("s2", 100, "laptop"))

	_, wentOffline, err := r.Unregister("s1")
	require.NoError(t, err)
	require.False(t, wentOffline, "user still reachable via laptop")
	require.True(t, r.IsOnline(100))

	sess, wentOffline, err := r.Unregister("s2")
	require.NoError(t, err)
	require.True(t, wentOffline, "last session should raise the offline edge")
	require.Equal(t, uint64(100), sess.UserID)
	require.False(t, r.IsOnline(100))
}

func TestRegistryUnregisterUnknownSession(t *testing.T) {
	r := NewSessionRegistry()
	_, _, err := r.Unregister("nope")
	require.ErrorIs(t, err, entity.ErrSessionNotFound)

	// 重复注销同样返回 not found，调用方按幂等处理
	r.Register(newSession("s1", 1, "phone"), newFakeConn("s1", 1, "phone"))
	_, _, err = r.Unregister("s1")
	require.NoError(t, err)
	_, _, err = r.Unregister("s1")
	require.ErrorIs(t, err, entity.ErrSessionNotFound)
}

func TestRegistrySameDeviceTakeover(t *testing.T) {
	r := NewSessionRegistry()
	old := newFakeConn("s1", 100, "phone")
	r.Register(newSession("s1", 100, "phone"), old)

	// 同设备重连：旧连接被关闭，不产生上线边沿
	fresh := newFakeConn("s2", 100, "phone")
	cameOnline := r.Register(newSession("s2", 100, "phone"), fresh)
	require.False(t, cameOnline)
	require.True(t, old.IsClosed(), "replaced connection must be closed")

	ids := r.SessionsFor(100)
	require.Equal(t, []string{"s2"}, ids)

	// 被顶掉的会话ID已从索引移除
	_, _, ok := r.Get("s1")
	require.False(t, ok)
}

func TestRegistrySendToUserFansOutToAllDevices(t *testing.T) {
	r := NewSessionRegistry()
	c1 := newFakeConn("s1", 100, "phone")
	c2 := newFakeConn("s2", 100, "laptop")
	r.Register(newSession("s1", 100, "phone"), c1)
	r.Register(newSession("s2", 100, "laptop"), c2)

	r.SendToUser(100, []byte(`{"hello":1}`))
	require.Equal(t, 1, c1.sentCount())
	require.Equal(t, 1, c2.sentCount())

	// 不在线的用户是空操作
	r.SendToUser(999, []byte("x"))
}

func TestRegistryOverflowDisconnectsOnlyOffender(t *testing.T) {
	r := NewSessionRegistry()
	slow := newFakeConn("s1", 100, "phone")
	slow.capacity = 1
	healthy := newFakeConn("s2", 100, "laptop")
	r.Register(newSession("s1", 100, "phone"), slow)
	r.Register(newSession("s2", 100, "laptop"), healthy)

	r.SendToUser(100, []byte("m1"))
	r.SendToUser(100, []byte("m2"))

	require.True(t, slow.IsClosed(), "overflowing session must be disconnected")
	require.False(t, healthy.IsClosed())
	require.Equal(t, 2, healthy.sentCount())
}

func TestRegistryTouchUpdatesLastActive(t *testing.T) {
	r := NewSessionRegistry()
	sess := newSession("s1", 100, "phone")
	r.Register(sess, newFakeConn("s1", 100, "phone"))

	at := time.Now().Add(time.Minute)
	r.Touch("s1", at)

	got, _, ok := r.Get("s1")
	require.True(t, ok)
	require.Equal(t, at, got.LastActiveAt)
}

func TestRegistryStats(t *testing.T) {
	r := NewSessionRegistry()
	r.Register(newSession("s1", 1, "phone"), newFakeConn("s1", 1, "phone"))
	r.Register(newSession("s2", 2, "phone"), newFakeConn("s2", 2, "phone"))

	stats := r.Stats()
	require.Equal(t, int64(2), stats["total_connections"])
	require.Equal(t, int64(2), stats["online_users"])
}
