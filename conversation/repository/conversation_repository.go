package repository

import (
	"context"

	"provider-messaging/backend/conversation/models"

	"gorm.io/gorm"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	ListByParticipant(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error)
}

type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *GormConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).First(&conversation, id).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *GormConversationRepository) FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListByParticipant returns one page of the user's conversations, most
// recently active first.
func (r *GormConversationRepository) ListByParticipant(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Where("(participant_a = ? OR participant_b = ?)", userID, userID).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error
	return conversations, err
}
