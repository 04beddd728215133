package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/in"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

type sendFixture struct {
	uc       *MessageUseCaseImpl
	seqs     *fakeSeqRepo
	sender   *fakeConn
	receiver *fakeConn
}

// 会话10：用户100（发送方会话 sender-session）与用户200同房间
func newSendFixture(t *testing.T) *sendFixture {
	t.Helper()
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(10, 200)
	router := NewRoomRouter(members)

	sender := newFakeConn("sender-session", 100, "phone")
	receiver := newFakeConn("receiver-session", 200, "phone")
	require.NoError(t, router.Join(context.Background(), sender, 10))
	require.NoError(t, router.Join(context.Background(), receiver, 10))

	seqs := newFakeSeqRepo()
	uc := NewMessageUseCase(newFakeMessageRepo(), seqs, members, nil, router, "node-1")
	return &sendFixture{uc: uc, seqs: seqs, sender: sender, receiver: receiver}
}

func textRequest(clientMsgID string) *in.SendMessageRequest {
	return &in.SendMessageRequest{
		ConversationID: 10,
		SenderID:       100,
		SenderSession:  "sender-session",
		ClientMsgID:    clientMsgID,
		ContentType:    entity.ContentTypeText,
		Content:        "hello",
	}
}

func TestSendMessageAssignsSequentialSeq(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	m1, dup, err := f.uc.SendMessage(ctx, textRequest("t1"))
	require.NoError(t, err)
	require.False(t, dup)
	require.Equal(t, uint64(1), m1.Seq)

	m2, dup, err := f.uc.SendMessage(ctx, textRequest("t2"))
	require.NoError(t, err)
	require.False(t, dup)
	require.Equal(t, uint64(2), m2.Seq)
	require.NotEqual(t, m1.ID, m2.ID)
}

func TestSendMessageExcludesSenderSession(t *testing.T) {
	f := newSendFixture(t)

	_, _, err := f.uc.SendMessage(context.Background(), textRequest("t1"))
	require.NoError(t, err)

	require.Equal(t, 0, f.sender.sentCount(), "sender session must not get an echo")
	payloads := f.receiver.sentPayloads()
	require.Len(t, payloads, 1)

	var ev Event
	require.NoError(t, json.Unmarshal(payloads[0], &ev))
	require.Equal(t, EventMessageNew, ev.Type)

	var got entity.Message
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	require.Equal(t, uint64(10), got.ConversationID)
	require.Equal(t, uint64(100), got.SenderID)
	require.Equal(t, "hello", got.Content)
}

func TestSendMessageDuplicateClientMsgID(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	first, dup, err := f.uc.SendMessage(ctx, textRequest("t1"))
	require.NoError(t, err)
	require.False(t, dup)

	// 同一 tempId 重发：返回原消息，不分配新序号，不再广播
	second, dup, err := f.uc.SendMessage(ctx, textRequest("t1"))
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Seq, second.Seq)
	require.Equal(t, 1, f.receiver.sentCount())
	require.Equal(t, uint64(1), f.seqs.seqs[10])
}

// racingMessageRepo 模拟并发重发：第一次查重落空，落库时撞唯一索引
type racingMessageRepo struct {
	*fakeMessageRepo
	lookupMissed bool
}

func (r *racingMessageRepo) GetByClientMsgID(ctx context.Context, senderID uint64, clientMsgID string) (*entity.Message, error) {
	if !r.lookupMissed {
		r.lookupMissed = true
		return nil, nil
	}
	return r.fakeMessageRepo.GetByClientMsgID(ctx, senderID, clientMsgID)
}

func TestSendMessageConcurrentDuplicateReturnsOriginal(t *testing.T) {
	members := newFakeMembershipRepo()
	members.addMember(10, 100)
	members.addMember(10, 200)
	router := NewRoomRouter(members)
	receiver := newFakeConn("receiver-session", 200, "phone")
	require.NoError(t, router.Join(context.Background(), receiver, 10))

	msgs := newFakeMessageRepo()
	seqs := newFakeSeqRepo()
	// 对手写入方已抢先落库同一 tempId
	original := &entity.Message{
		ConversationID: 10,
		SenderID:       100,
		ClientMsgID:    "t1",
		Seq:            1,
		ContentType:    entity.ContentTypeText,
		Content:        "hello",
		Status:         entity.MessageStatusNormal,
	}
	require.NoError(t, msgs.Create(context.Background(), original))
	seqs.seqs[10] = 1

	uc := NewMessageUseCase(&racingMessageRepo{fakeMessageRepo: msgs}, seqs, members, nil, router, "node-1")

	got, dup, err := uc.SendMessage(context.Background(), textRequest("t1"))
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, original.ID, got.ID)
	require.Equal(t, original.Seq, got.Seq)
	// 输掉竞争的一方不触发二次广播
	require.Equal(t, 0, receiver.sentCount())
}

func TestSendMessageForbiddenForNonMember(t *testing.T) {
	f := newSendFixture(t)

	req := textRequest("t1")
	req.SenderID = 999
	_, _, err := f.uc.SendMessage(context.Background(), req)
	require.ErrorIs(t, err, entity.ErrForbidden)
	require.Equal(t, 0, f.receiver.sentCount())
}

func TestSendMessageFanoutRemote(t *testing.T) {
	f := newSendFixture(t)

	f.uc.FanoutRemote(&out.MessageSentEvent{
		NodeID:         "node-2",
		MessageID:      7,
		ConversationID: 10,
		SenderID:       300,
		Seq:            4,
		ContentType:    1,
		Content:        "from another node",
	})

	// 远端消息对房间内全部会话扇出，包括本地发送方会话
	require.Equal(t, 1, f.sender.sentCount())
	require.Equal(t, 1, f.receiver.sentCount())
}

func TestGetHistoryAfter(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		_, _, err := f.uc.SendMessage(ctx, textRequest(id))
		require.NoError(t, err)
	}

	msgs, err := f.uc.GetHistoryAfter(ctx, 200, 10, 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	_, err = f.uc.GetHistoryAfter(ctx, 999, 10, 0, 50)
	require.ErrorIs(t, err, entity.ErrForbidden)
}
