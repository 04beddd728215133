package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// ReceiptModel 回执GORM模型
// （消息，接收者，类型）联合主键保证幂等：重复插入不产生第二行
type ReceiptModel struct {
	MessageID  uint64    `gorm:"column:message_id;primaryKey"`
	UserID     uint64    `gorm:"column:user_id;primaryKey"`
	Type       int8      `gorm:"column:type;primaryKey"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
}

func (ReceiptModel) TableName() string {
	return "message_receipts"
}

func (m *ReceiptModel) toEntity() *entity.MessageReceipt {
	return &entity.MessageReceipt{
		MessageID:  m.MessageID,
		UserID:     m.UserID,
		Type:       entity.ReceiptType(m.Type),
		OccurredAt: m.OccurredAt,
	}
}

// ReceiptRepositoryMySQL MySQL回执仓储实现
type ReceiptRepositoryMySQL struct {
	db *gorm.DB
}

func NewReceiptRepositoryMySQL(db *gorm.DB) out.ReceiptRepository {
	return &ReceiptRepositoryMySQL{db: db}
}

// Save INSERT IGNORE 语义：已存在时 RowsAffected 为 0，返回 (false, nil)
func (r *ReceiptRepositoryMySQL) Save(ctx context.Context, receipt *entity.MessageReceipt) (bool, error) {
	model := &ReceiptModel{
		MessageID:  receipt.MessageID,
		UserID:     receipt.UserID,
		Type:       int8(receipt.Type),
		OccurredAt: receipt.OccurredAt,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ReceiptRepositoryMySQL) Get(ctx context.Context, messageID, userID uint64, typ entity.ReceiptType) (*entity.MessageReceipt, error) {
	var model ReceiptModel
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND type = ?", messageID, userID, int8(typ)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.toEntity(), nil
}
