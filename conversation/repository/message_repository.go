package repository

import (
	"context"
	"time"

	"provider-messaging/backend/conversation/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	Append(ctx context.Context, message *models.Message) error
	ListByConversation(ctx context.Context, conversationID, afterID uint) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID uint, viewer models.Party, at time.Time) (int64, error)
	CountUnread(ctx context.Context, conversationID uint, viewer models.Party) (int64, error)
	CountUnreadByConversation(ctx context.Context, conversationIDs []uint, viewerID uint) (map[uint]int64, error)
	CountUnreadForUser(ctx context.Context, viewerID uint) (int64, error)
	LatestByConversation(ctx context.Context, conversationIDs []uint) (map[uint]*models.Message, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// notAuthoredBy restricts a message query to messages the viewer did not write.
func notAuthoredBy(viewer models.Party) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if id, ok := models.UserID(viewer); ok {
			return db.Where("(messages.sender_id IS NULL OR messages.sender_id <> ?)", id)
		}
		return db.Where("messages.sender_id IS NOT NULL")
	}
}

func unread(db *gorm.DB) *gorm.DB {
	return db.Where("messages.read_at IS NULL")
}

// Append inserts the message and moves the conversation's updated_at to the
// message timestamp in a single transaction. The conversation row is locked
// before the insert so ids within one conversation commit in order, which
// keeps the after_id cursor from skipping a late commit.
func (r *GormMessageRepository) Append(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Select("id").
			Where("id = ?", message.ConversationID).
			Take(&conv).Error
		if err != nil {
			return err
		}
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			UpdateColumn("updated_at", message.CreatedAt).Error
	})
}

func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID, afterID uint) ([]models.Message, error) {
	var messages []models.Message
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	err := q.Order("id ASC").Find(&messages).Error
	return messages, err
}

// MarkRead stamps every unread message the viewer did not write. It is a
// single UPDATE, so concurrent callers can only ever skip rows already read.
func (r *GormMessageRepository) MarkRead(ctx context.Context, conversationID uint, viewer models.Party, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Scopes(unread, notAuthoredBy(viewer)).
		UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *GormMessageRepository) CountUnread(ctx context.Context, conversationID uint, viewer models.Party) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Scopes(unread, notAuthoredBy(viewer)).
		Count(&count).Error
	return count, err
}

type unreadRow struct {
	ConversationID uint
	Unread         int64
}

// CountUnreadByConversation counts unread messages for a named viewer across
// several conversations in one grouped query. Conversations without unread
// messages are absent from the result.
func (r *GormMessageRepository) CountUnreadByConversation(ctx context.Context, conversationIDs []uint, viewerID uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}
	var rows []unreadRow
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("conversation_id IN ?", conversationIDs).
		Scopes(unread, notAuthoredBy(models.Named(viewerID))).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Unread
	}
	return counts, nil
}

// CountUnreadForUser sums the viewer's unread messages over every
// conversation they take part in.
func (r *GormMessageRepository) CountUnreadForUser(ctx context.Context, viewerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.participant_a = ? OR conversations.participant_b = ?)", viewerID, viewerID).
		Scopes(unread, notAuthoredBy(models.Named(viewerID))).
		Count(&count).Error
	return count, err
}

// LatestByConversation returns the newest message of each conversation.
func (r *GormMessageRepository) LatestByConversation(ctx context.Context, conversationIDs []uint) (map[uint]*models.Message, error) {
	latest := make(map[uint]*models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}
	db := r.db.WithContext(ctx)
	newest := db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")
	var messages []models.Message
	if err := db.Where("id IN (?)", newest).Find(&messages).Error; err != nil {
		return nil, err
	}
	for i := range messages {
		latest[messages[i].ConversationID] = &messages[i]
	}
	return latest, nil
}
