package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

type receiptFixture struct {
	tracker  *ReceiptTracker
	messages *fakeMessageRepo
	members  *fakeMembershipRepo
	observer *fakeConn
}

// 会话10：发送方100、接收方200；observer 是发送方的在线会话，用来观察回执广播
func newReceiptFixture(t *testing.T) *receiptFixture {
	t.Helper()
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(10, 200)
	router := NewRoomRouter(members)

	observer := newFakeConn("sender-session", 100, "phone")
	require.NoError(t, router.Join(context.Background(), observer, 10))

	messages := newFakeMessageRepo()
	tracker := NewReceiptTracker(newFakeReceiptRepo(), messages, members, nil, router, "node-1")
	return &receiptFixture{tracker: tracker, messages: messages, members: members, observer: observer}
}

func (f *receiptFixture) seedMessage(t *testing.T, seq uint64) *entity.Message {
	t.Helper()
	msg := &entity.Message{
		ConversationID: 10,
		SenderID:       100,
		Seq:            seq,
		ContentType:    entity.ContentTypeText,
		Content:        "hi",
		Status:         entity.MessageStatusNormal,
	}
	require.NoError(t, f.messages.Create(context.Background(), msg))
	return msg
}

func TestReceiptDeliveredIsIdempotent(t *testing.T) {
	f := newReceiptFixture(t)
	msg := f.seedMessage(t, 1)
	ctx := context.Background()

	require.NoError(t, f.tracker.RecordDelivered(ctx, msg.ID, 200))
	require.Equal(t, []string{EventMessageDelivered}, decodeEventTypes(t, f.observer.sentPayloads()))

	// 重复上报静默成功，不重复广播
	require.NoError(t, f.tracker.RecordDelivered(ctx, msg.ID, 200))
	require.Equal(t, 1, f.observer.sentCount())
}

func TestReceiptDeliveredUnknownMessage(t *testing.T) {
	f := newReceiptFixture(t)
	err := f.tracker.RecordDelivered(context.Background(), 999, 200)
	require.ErrorIs(t, err, entity.ErrMessageNotFound)
}

func TestReceiptSenderSelfReportIgnored(t *testing.T) {
	f := newReceiptFixture(t)
	msg := f.seedMessage(t, 1)
	ctx := context.Background()

	require.NoError(t, f.tracker.RecordDelivered(ctx, msg.ID, 100))
	require.NoError(t, f.tracker.RecordRead(ctx, msg.ID, 100))
	require.Equal(t, 0, f.observer.sentCount())
}

func TestReceiptReadImpliesDelivered(t *testing.T) {
	f := newReceiptFixture(t)
	msg := f.seedMessage(t, 1)
	ctx := context.Background()

	// 直接上报已读：补记 DELIVERED 后再记 READ，两个事件都广播
	require.NoError(t, f.tracker.RecordRead(ctx, msg.ID, 200))
	require.Equal(t, []string{EventMessageDelivered, EventMessageRead},
		decodeEventTypes(t, f.observer.sentPayloads()))

	// 已读重复上报完全静默
	require.NoError(t, f.tracker.RecordRead(ctx, msg.ID, 200))
	require.Equal(t, 2, f.observer.sentCount())
}

func TestReceiptReadAdvancesLastReadMonotonically(t *testing.T) {
	f := newReceiptFixture(t)
	m1 := f.seedMessage(t, 1)
	m2 := f.seedMessage(t, 2)
	m3 := f.seedMessage(t, 3)
	ctx := context.Background()

	require.NoError(t, f.tracker.RecordRead(ctx, m3.ID, 200))
	member, err := f.members.GetMember(ctx, 10, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(3), member.LastReadSeq)

	// 乱序到达的早期已读不能回退已读位置
	require.NoError(t, f.tracker.RecordRead(ctx, m1.ID, 200))
	require.NoError(t, f.tracker.RecordRead(ctx, m2.ID, 200))
	member, err = f.members.GetMember(ctx, 10, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(3), member.LastReadSeq)
}

func TestUnreadCountTracksLastRead(t *testing.T) {
	f := newReceiptFixture(t)
	f.seedMessage(t, 1)
	m2 := f.seedMessage(t, 2)
	f.seedMessage(t, 3)
	ctx := context.Background()

	count, err := f.tracker.UnreadCount(ctx, 10, 200)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	require.NoError(t, f.tracker.RecordRead(ctx, m2.ID, 200))
	count, err = f.tracker.UnreadCount(ctx, 10, 200)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// 发送方自己的未读数不含自己发的消息
	count, err = f.tracker.UnreadCount(ctx, 10, 100)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUnreadCountForbiddenForNonMember(t *testing.T) {
	f := newReceiptFixture(t)
	_, err := f.tracker.UnreadCount(context.Background(), 10, 999)
	require.ErrorIs(t, err, entity.ErrForbidden)
}

func TestReceiptFanoutRemote(t *testing.T) {
	f := newReceiptFixture(t)

	f.tracker.FanoutRemote(&out.ReceiptEvent{
		NodeID:         "node-2",
		MessageID:      5,
		ConversationID: 10,
		UserID:         200,
		Type:           entity.ReceiptTypeRead.String(),
	})
	require.Equal(t, []string{EventMessageRead}, decodeEventTypes(t, f.observer.sentPayloads()))

	f.tracker.FanoutRemote(&out.ReceiptEvent{
		NodeID:         "node-2",
		MessageID:      6,
		ConversationID: 10,
		UserID:         200,
		Type:           entity.ReceiptTypeDelivered.String(),
	})
	require.Equal(t, []string{EventMessageRead, EventMessageDelivered},
		decodeEventTypes(t, f.observer.sentPayloads()))
}
