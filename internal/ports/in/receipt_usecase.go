package in

import "context"

// ReceiptUseCase 投递/已读回执用例
type ReceiptUseCase interface {
	// RecordDelivered 幂等：重复记录静默成功，不再向下游发事件
	RecordDelivered(ctx context.Context, messageID, recipientID uint64) error
	// RecordRead 同上；同时单调推进成员的已读位置，并在缺失时补记 DELIVERED
	RecordRead(ctx context.Context, messageID, recipientID uint64) error
	// UnreadCount 对成员/消息关系的即时读，引擎不缓存
	UnreadCount(ctx context.Context, conversationID, userID uint64) (int, error)
}
