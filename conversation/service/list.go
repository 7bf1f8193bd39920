package service

import (
	"context"
	"iter"

	"provider-messaging/backend/conversation/models"
)

// ListConversations yields the viewer's conversations, most recently active
// first. Conversations are loaded a page at a time and each page is decorated
// with a fixed number of queries. Ranging over the sequence again re-reads
// storage. On error the error is yielded once and iteration stops.
func (s *ConversationService) ListConversations(ctx context.Context, viewerID uint) iter.Seq2[*models.ConversationSummary, error] {
	return func(yield func(*models.ConversationSummary, error) bool) {
		viewer := models.Named(viewerID)
		for offset := 0; ; offset += s.opts.PageSize {
			page, err := s.conversations.ListByParticipant(ctx, viewerID, s.opts.PageSize, offset)
			if err != nil {
				yield(nil, storageErr("list conversations", err))
				return
			}
			if len(page) == 0 {
				return
			}

			summaries, err := s.decorate(ctx, viewer, page)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, summary := range summaries {
				if !yield(summary, nil) {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
		}
	}
}

// CollectConversations drains ListConversations into a slice.
func (s *ConversationService) CollectConversations(ctx context.Context, viewerID uint) ([]*models.ConversationSummary, error) {
	summaries := []*models.ConversationSummary{}
	for summary, err := range s.ListConversations(ctx, viewerID) {
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *ConversationService) decorate(ctx context.Context, viewer models.Party, page []models.Conversation) ([]*models.ConversationSummary, error) {
	viewerID, _ := models.UserID(viewer)
	ids := make([]uint, len(page))
	parties := make([]models.Party, 0, len(page)+1)
	parties = append(parties, viewer)
	for i := range page {
		ids[i] = page[i].ID
		parties = append(parties, page[i].Counterparty(viewer))
	}

	latest, err := s.messages.LatestByConversation(ctx, ids)
	if err != nil {
		return nil, storageErr("latest messages", err)
	}
	unread, err := s.messages.CountUnreadByConversation(ctx, ids, viewerID)
	if err != nil {
		return nil, storageErr("count unread", err)
	}
	names, err := s.displayNames(ctx, parties)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.ConversationSummary, 0, len(page))
	for i := range page {
		conv := &page[i]
		summary := &models.ConversationSummary{
			ID:           conv.ID,
			Counterparty: s.partyView(conv.Counterparty(viewer), names),
			UnreadCount:  unread[conv.ID],
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
		}
		if msg, ok := latest[conv.ID]; ok {
			summary.LastMessage = s.messageView(ctx, msg, viewer, names)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
