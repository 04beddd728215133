package out

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// MembershipRepository 会话成员关系（外部协作方，只读 + 推进已读位置）
type MembershipRepository interface {
	IsActiveMember(ctx context.Context, conversationID, userID uint64) (bool, error)
	GetMember(ctx context.Context, conversationID, userID uint64) (*entity.ConversationMember, error)
	ListMemberIDs(ctx context.Context, conversationID uint64) ([]uint64, error)
	// ListConversationIDs 用户当前所属的活跃会话
	ListConversationIDs(ctx context.Context, userID uint64) ([]uint64, error)
	// AdvanceLastRead 单调推进已读位置：仅当 readSeq 大于当前值时生效
	AdvanceLastRead(ctx context.Context, conversationID, userID, readSeq uint64) error
}

// ContactRepository 联系人关系（外部协作方，只读）
type ContactRepository interface {
	ListContactIDs(ctx context.Context, userID uint64) ([]uint64, error)
}
