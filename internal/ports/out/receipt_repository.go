package out

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// ReceiptRepository 回执仓储
type ReceiptRepository interface {
	// Save 幂等插入，返回本次是否真正写入了新行
	// （消息，接收者，类型）已存在时返回 (false, nil)
	Save(ctx context.Context, receipt *entity.MessageReceipt) (bool, error)
	Get(ctx context.Context, messageID, userID uint64, typ entity.ReceiptType) (*entity.MessageReceipt, error)
}
