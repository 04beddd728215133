package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// MessageModel GORM模型
type MessageModel struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ConversationID uint64    `gorm:"column:conversation_id;not null;index:idx_conv_seq"`
	SenderID       uint64    `gorm:"column:sender_id;not null;uniqueIndex:uq_sender_client_msg"`
	ClientMsgID    string    `gorm:"column:client_msg_id;type:varchar(64);not null;uniqueIndex:uq_sender_client_msg"`
	Seq            uint64    `gorm:"column:seq;not null;index:idx_conv_seq"`
	ContentType    int8      `gorm:"column:content_type;not null"`
	Content        string    `gorm:"column:content;type:text;not null"`
	Status         int8      `gorm:"column:status;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) toEntity() *entity.Message {
	return &entity.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ClientMsgID:    m.ClientMsgID,
		Seq:            m.Seq,
		ContentType:    entity.MessageContentType(m.ContentType),
		Content:        m.Content,
		Status:         entity.MessageStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func messageModelFromEntity(e *entity.Message) *MessageModel {
	return &MessageModel{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		ClientMsgID:    e.ClientMsgID,
		Seq:            e.Seq,
		ContentType:    int8(e.ContentType),
		Content:        e.Content,
		Status:         int8(e.Status),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// MessageRepositoryMySQL MySQL消息仓储实现
type MessageRepositoryMySQL struct {
	db *gorm.DB
}

func NewMessageRepositoryMySQL(db *gorm.DB) out.MessageRepository {
	return &MessageRepositoryMySQL{db: db}
}

func (r *MessageRepositoryMySQL) Create(ctx context.Context, msg *entity.Message) error {
	model := messageModelFromEntity(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		// 唯一索引（sender_id, client_msg_id）兜底并发下的重复提交
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return entity.ErrDuplicateMessage
		}
		return err
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	msg.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *MessageRepositoryMySQL) GetByID(ctx context.Context, id uint64) (*entity.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.toEntity(), nil
}

func (r *MessageRepositoryMySQL) GetByClientMsgID(ctx context.Context, senderID uint64, clientMsgID string) (*entity.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_msg_id = ?", senderID, clientMsgID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.toEntity(), nil
}

func (r *MessageRepositoryMySQL) GetHistoryAfter(ctx context.Context, conversationID, afterSeq uint64, limit int) ([]*entity.Message, error) {
	var models []MessageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ? AND status = ?", conversationID, afterSeq, entity.MessageStatusNormal).
		Order("seq ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]*entity.Message, len(models))
	for i, m := range models {
		messages[i] = m.toEntity()
	}
	return messages, nil
}

func (r *MessageRepositoryMySQL) CountUnread(ctx context.Context, conversationID, userID, afterSeq uint64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("conversation_id = ? AND seq > ? AND sender_id <> ? AND status = ?",
			conversationID, afterSeq, userID, entity.MessageStatusNormal).
		Count(&count).Error
	return int(count), err
}

// SequenceModel 序列号模型
type SequenceModel struct {
	ConversationID uint64    `gorm:"column:conversation_id;primaryKey"`
	NextSeq        uint64    `gorm:"column:next_seq;default:1"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SequenceModel) TableName() string {
	return "message_sequences"
}

// SequenceRepositoryMySQL MySQL序列号仓储实现
type SequenceRepositoryMySQL struct {
	db *gorm.DB
}

func NewSequenceRepositoryMySQL(db *gorm.DB) out.SequenceRepository {
	return &SequenceRepositoryMySQL{db: db}
}

func (r *SequenceRepositoryMySQL) NextSeq(ctx context.Context, conversationID uint64) (uint64, error) {
	var seq uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SequenceModel
		err := tx.Where("conversation_id = ?", conversationID).First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 首次创建
				model = SequenceModel{
					ConversationID: conversationID,
					NextSeq:        2,
				}
				if err := tx.Create(&model).Error; err != nil {
					return err
				}
				seq = 1
				return nil
			}
			return err
		}

		seq = model.NextSeq
		model.NextSeq++
		return tx.Save(&model).Error
	})
	return seq, err
}
