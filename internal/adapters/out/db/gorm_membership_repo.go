package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// ConversationMemberModel 会话成员GORM模型
type ConversationMemberModel struct {
	ConversationID uint64    `gorm:"column:conversation_id;primaryKey"`
	UserID         uint64    `gorm:"column:user_id;primaryKey;index"`
	LastReadSeq    uint64    `gorm:"column:last_read_seq;default:0"`
	IsActive       int8      `gorm:"column:is_active;default:1"`
	IsMuted        int8      `gorm:"column:is_muted;default:0"`
	JoinedAt       time.Time `gorm:"column:joined_at;autoCreateTime"`
}

func (ConversationMemberModel) TableName() string {
	return "conversation_members"
}

func (m *ConversationMemberModel) toEntity() *entity.ConversationMember {
	return &entity.ConversationMember{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		LastReadSeq:    m.LastReadSeq,
		IsActive:       m.IsActive == 1,
		IsMuted:        m.IsMuted == 1,
		JoinedAt:       m.JoinedAt,
	}
}

// MembershipRepositoryMySQL MySQL会话成员仓储实现
type MembershipRepositoryMySQL struct {
	db *gorm.DB
}

func NewMembershipRepositoryMySQL(db *gorm.DB) out.MembershipRepository {
	return &MembershipRepositoryMySQL{db: db}
}

func (r *MembershipRepositoryMySQL) IsActiveMember(ctx context.Context, conversationID, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ConversationMemberModel{}).
		Where("conversation_id = ? AND user_id = ? AND is_active = 1", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *MembershipRepositoryMySQL) GetMember(ctx context.Context, conversationID, userID uint64) (*entity.ConversationMember, error) {
	var model ConversationMemberModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.toEntity(), nil
}

func (r *MembershipRepositoryMySQL) ListMemberIDs(ctx context.Context, conversationID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&ConversationMemberModel{}).
		Where("conversation_id = ? AND is_active = 1", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *MembershipRepositoryMySQL) ListConversationIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&ConversationMemberModel{}).
		Where("user_id = ? AND is_active = 1", userID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

// AdvanceLastRead 单条条件 UPDATE 保证只进不退；readSeq 不大于当前值时影响 0 行
func (r *MembershipRepositoryMySQL) AdvanceLastRead(ctx context.Context, conversationID, userID, readSeq uint64) error {
	return r.db.WithContext(ctx).
		Model(&ConversationMemberModel{}).
		Where("conversation_id = ? AND user_id = ? AND last_read_seq < ?", conversationID, userID, readSeq).
		Update("last_read_seq", readSeq).Error
}

// ContactModel 联系人GORM模型
type ContactModel struct {
	UserID    uint64    `gorm:"column:user_id;primaryKey"`
	ContactID uint64    `gorm:"column:contact_id;primaryKey"`
	Status    int8      `gorm:"column:status;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ContactModel) TableName() string {
	return "contacts"
}

// ContactRepositoryMySQL MySQL联系人仓储实现
type ContactRepositoryMySQL struct {
	db *gorm.DB
}

func NewContactRepositoryMySQL(db *gorm.DB) out.ContactRepository {
	return &ContactRepositoryMySQL{db: db}
}

func (r *ContactRepositoryMySQL) ListContactIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&ContactModel{}).
		Where("user_id = ? AND status = 1", userID).
		Pluck("contact_id", &ids).Error
	return ids, err
}
