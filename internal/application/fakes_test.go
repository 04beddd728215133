package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// fakeConn 测试用连接：容量可配，写满返回 ErrSendBufferFull
type fakeConn struct {
	mu        sync.Mutex
	sessionID string
	userID    uint64
	deviceID  string
	sent      [][]byte
	capacity  int // 0 表示不限
	closed    bool
}

func newFakeConn(sessionID string, userID uint64, deviceID string) *fakeConn {
	return &fakeConn{sessionID: sessionID, userID: userID, deviceID: deviceID}
}

func (c *fakeConn) SessionID() string { return c.sessionID }
func (c *fakeConn) UserID() uint64    { return c.userID }
func (c *fakeConn) DeviceID() string  { return c.deviceID }

func (c *fakeConn) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return entity.ErrSessionClosed
	}
	if c.capacity > 0 && len(c.sent) >= c.capacity {
		return entity.ErrSendBufferFull
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) sentPayloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.sent...)
}

// fakeMembershipRepo 内存成员关系
type fakeMembershipRepo struct {
	mu      sync.Mutex
	members map[uint64]map[uint64]*entity.ConversationMember // convID -> userID -> member
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{members: make(map[uint64]map[uint64]*entity.ConversationMember)}
}

func (r *fakeMembershipRepo) addMember(convID, userID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[convID] == nil {
		r.members[convID] = make(map[uint64]*entity.ConversationMember)
	}
	r.members[convID][userID] = &entity.ConversationMember{
		ConversationID: convID,
		UserID:         userID,
		IsActive:       true,
		JoinedAt:       time.Now(),
	}
}

func (r *fakeMembershipRepo) IsActiveMember(ctx context.Context, conversationID, userID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[conversationID][userID]
	return ok && m.IsActive, nil
}

func (r *fakeMembershipRepo) GetMember(ctx context.Context, conversationID, userID uint64) (*entity.ConversationMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.members[conversationID][userID]
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMembershipRepo) ListMemberIDs(ctx context.Context, conversationID uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for id, m := range r.members[conversationID] {
		if m.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeMembershipRepo) ListConversationIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for convID, members := range r.members {
		if m, ok := members[userID]; ok && m.IsActive {
			ids = append(ids, convID)
		}
	}
	return ids, nil
}

func (r *fakeMembershipRepo) AdvanceLastRead(ctx context.Context, conversationID, userID, readSeq uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[conversationID][userID]; ok && readSeq > m.LastReadSeq {
		m.LastReadSeq = readSeq
	}
	return nil
}

// fakeContactRepo 内存联系人
type fakeContactRepo struct {
	contacts map[uint64][]uint64
}

func (r *fakeContactRepo) ListContactIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	return r.contacts[userID], nil
}

// fakeMessageRepo 内存消息仓储
type fakeMessageRepo struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*entity.Message
	byKey  map[string]*entity.Message // senderID:clientMsgID
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byID: make(map[uint64]*entity.Message), byKey: make(map[string]*entity.Message)}
}

func msgKey(senderID uint64, clientMsgID string) string {
	return fmt.Sprintf("%d:%s", senderID, clientMsgID)
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ClientMsgID != "" {
		if _, ok := r.byKey[msgKey(msg.SenderID, msg.ClientMsgID)]; ok {
			return entity.ErrDuplicateMessage
		}
	}
	r.nextID++
	msg.ID = r.nextID
	msg.CreatedAt = time.Now()
	copied := *msg
	r.byID[msg.ID] = &copied
	if msg.ClientMsgID != "" {
		r.byKey[msgKey(msg.SenderID, msg.ClientMsgID)] = &copied
	}
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id uint64) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byID[id]
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMessageRepo) GetByClientMsgID(ctx context.Context, senderID uint64, clientMsgID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byKey[msgKey(senderID, clientMsgID)]
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMessageRepo) GetHistoryAfter(ctx context.Context, conversationID, afterSeq uint64, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*entity.Message
	for _, m := range r.byID {
		if m.ConversationID == conversationID && m.Seq > afterSeq {
			copied := *m
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) CountUnread(ctx context.Context, conversationID, userID, afterSeq uint64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.byID {
		if m.ConversationID == conversationID && m.Seq > afterSeq && m.SenderID != userID && m.Status == entity.MessageStatusNormal {
			count++
		}
	}
	return count, nil
}

// fakeSeqRepo 内存序号分配
type fakeSeqRepo struct {
	mu   sync.Mutex
	seqs map[uint64]uint64
}

func newFakeSeqRepo() *fakeSeqRepo {
	return &fakeSeqRepo{seqs: make(map[uint64]uint64)}
}

func (r *fakeSeqRepo) NextSeq(ctx context.Context, conversationID uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[conversationID]++
	return r.seqs[conversationID], nil
}

// fakeReceiptRepo 内存回执仓储，幂等
type fakeReceiptRepo struct {
	mu       sync.Mutex
	receipts map[[3]uint64]*entity.MessageReceipt // {messageID,userID,type}
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[[3]uint64]*entity.MessageReceipt)}
}

func (r *fakeReceiptRepo) Save(ctx context.Context, receipt *entity.MessageReceipt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [3]uint64{receipt.MessageID, receipt.UserID, uint64(receipt.Type)}
	if _, ok := r.receipts[key]; ok {
		return false, nil
	}
	copied := *receipt
	r.receipts[key] = &copied
	return true, nil
}

func (r *fakeReceiptRepo) Get(ctx context.Context, messageID, userID uint64, typ entity.ReceiptType) (*entity.MessageReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.receipts[[3]uint64{messageID, userID, uint64(typ)}]
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

// fakePresenceRepo 内存在线状态
type fakePresenceRepo struct {
	mu       sync.Mutex
	online   map[uint64]bool
	lastSeen map[uint64]time.Time
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{online: make(map[uint64]bool), lastSeen: make(map[uint64]time.Time)}
}

func (r *fakePresenceRepo) SetOnline(ctx context.Context, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[userID] = true
	return nil
}

func (r *fakePresenceRepo) SetOffline(ctx context.Context, userID uint64, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[userID] = false
	r.lastSeen[userID] = lastSeen
	return nil
}

func (r *fakePresenceRepo) GetPresence(ctx context.Context, userID uint64) (*entity.UserPresence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &entity.UserPresence{UserID: userID, Online: r.online[userID]}
	if p.Online {
		p.Status = entity.PresenceStatusOnline
	} else {
		p.Status = entity.PresenceStatusOffline
		p.LastSeenAt = r.lastSeen[userID]
	}
	return p, nil
}

func (r *fakePresenceRepo) GetPresences(ctx context.Context, userIDs []uint64) (map[uint64]*entity.UserPresence, error) {
	result := make(map[uint64]*entity.UserPresence)
	for _, id := range userIDs {
		p, _ := r.GetPresence(ctx, id)
		result[id] = p
	}
	return result, nil
}

func (r *fakePresenceRepo) UpdateHeartbeat(ctx context.Context, userID uint64) error {
	return nil
}

// fakePolicyRepo 固定策略表
type fakePolicyRepo struct {
	policies map[uint64]entity.VisibilityPolicy
}

func (r *fakePolicyRepo) VisibilityOf(ctx context.Context, userID uint64) (entity.VisibilityPolicy, error) {
	if p, ok := r.policies[userID]; ok {
		return p, nil
	}
	return entity.VisibilityEveryone, nil
}

var _ out.Connection = (*fakeConn)(nil)
var _ out.MembershipRepository = (*fakeMembershipRepo)(nil)
var _ out.ContactRepository = (*fakeContactRepo)(nil)
var _ out.MessageRepository = (*fakeMessageRepo)(nil)
var _ out.SequenceRepository = (*fakeSeqRepo)(nil)
var _ out.ReceiptRepository = (*fakeReceiptRepo)(nil)
var _ out.PresenceRepository = (*fakePresenceRepo)(nil)
var _ out.PolicyRepository = (*fakePolicyRepo)(nil)
