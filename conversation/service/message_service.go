package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"provider-messaging/backend/conversation/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// AppendMessage stores a message written by author and returns it as the
// author sees it.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID uint, author models.Party, input models.MessageInput) (view *models.MessageView, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.append",
		trace.WithAttributes(attribute.Int64("conversation_id", int64(conversationID))))
	defer func() { endSpan(span, err) }()

	if _, err := s.conversationFor(ctx, conversationID, author); err != nil {
		return nil, err
	}

	if input.Kind == "" {
		input.Kind = models.KindText
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Content:        input.Content,
		Kind:           input.Kind,
		AttachmentPath: input.AttachmentPath,
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		CreatedAt:      s.now(),
	}
	if id, ok := models.UserID(author); ok {
		msg.SenderID = &id
	}

	if err := s.messages.Append(ctx, msg); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, storageErr("append message", err)
	}
	s.appended.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(msg.Kind))))

	names, err := s.displayNames(ctx, []models.Party{author})
	if err != nil {
		return nil, err
	}
	return s.messageView(ctx, msg, author, names), nil
}

func (s *ConversationService) validateInput(input models.MessageInput) error {
	if !input.Kind.Valid() {
		return ErrInvalidKind
	}
	hasAttachment := input.AttachmentPath != nil && strings.TrimSpace(*input.AttachmentPath) != ""
	switch {
	case input.Kind == models.KindText && strings.TrimSpace(input.Content) == "":
		return ErrEmptyContent
	case input.Kind != models.KindText && !hasAttachment:
		return ErrEmptyContent
	}
	if s.opts.MaxContentLength > 0 && utf8.RuneCountInString(input.Content) > s.opts.MaxContentLength {
		return ErrContentTooLong
	}
	if (input.Latitude == nil) != (input.Longitude == nil) {
		return ErrInvalidLocation
	}
	if input.Latitude != nil {
		lat, lng := *input.Latitude, *input.Longitude
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return ErrInvalidLocation
		}
	}
	return nil
}

// MarkRead marks every unread message the viewer did not write as read and
// returns how many changed. Calling it again is a no-op.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID uint, viewer models.Party) (int64, error) {
	if _, err := s.conversationFor(ctx, conversationID, viewer); err != nil {
		return 0, err
	}
	marked, err := s.messages.MarkRead(ctx, conversationID, viewer, s.now())
	if err != nil {
		return 0, storageErr("mark read", err)
	}
	if marked > 0 {
		s.log.Debug("messages marked read", "conversation_id", conversationID, "viewer", viewer.String(), "count", marked)
	}
	return marked, nil
}

// UnreadCount counts messages in the conversation that viewer has not read
// and did not write.
func (s *ConversationService) UnreadCount(ctx context.Context, conversationID uint, viewer models.Party) (int64, error) {
	if _, err := s.conversationFor(ctx, conversationID, viewer); err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnread(ctx, conversationID, viewer)
	if err != nil {
		return 0, storageErr("count unread", err)
	}
	return n, nil
}

// TotalUnread counts the viewer's unread messages over all their conversations.
func (s *ConversationService) TotalUnread(ctx context.Context, viewerID uint) (int64, error) {
	n, err := s.messages.CountUnreadForUser(ctx, viewerID)
	if err != nil {
		return 0, storageErr("count unread", err)
	}
	return n, nil
}

// GetMessages returns the conversation in chronological order as viewer sees
// it. With afterID > 0 only newer messages are returned. Nothing is marked read.
func (s *ConversationService) GetMessages(ctx context.Context, conversationID uint, viewer models.Party, afterID uint) (views []*models.MessageView, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.messages",
		trace.WithAttributes(attribute.Int64("conversation_id", int64(conversationID))))
	defer func() { endSpan(span, err) }()

	conv, err := s.conversationFor(ctx, conversationID, viewer)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, conversationID, afterID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}

	names, err := s.displayNames(ctx, []models.Party{conv.SlotA(), conv.SlotB()})
	if err != nil {
		return nil, err
	}
	views = make([]*models.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, s.messageView(ctx, &msgs[i], viewer, names))
	}
	return views, nil
}

func (s *ConversationService) messageView(ctx context.Context, msg *models.Message, viewer models.Party, names map[uint]string) *models.MessageView {
	author := msg.Author()
	view := &models.MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         s.partyView(author, names),
		IsMine:         models.SameParty(author, viewer),
		Content:        msg.Content,
		Kind:           msg.Kind,
		AttachmentPath: msg.AttachmentPath,
		ReadAt:         msg.ReadAt,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.Latitude != nil && msg.Longitude != nil {
		view.Location = &models.Location{Latitude: *msg.Latitude, Longitude: *msg.Longitude}
	}
	if msg.AttachmentPath != nil && *msg.AttachmentPath != "" {
		url, err := s.attachments.ResolveURL(ctx, *msg.AttachmentPath)
		if err != nil {
			// the message is still useful without a link
			s.log.Warn("attachment url unavailable", "message_id", msg.ID, "error", err.Error())
		} else {
			view.AttachmentURL = url
		}
	}
	return view
}

func (s *ConversationService) partyView(p models.Party, names map[uint]string) models.PartyView {
	id, ok := models.UserID(p)
	if !ok {
		return models.PartyView{DisplayName: s.opts.AnonymousName, Anonymous: true}
	}
	return models.PartyView{ID: &id, DisplayName: names[id]}
}

func (s *ConversationService) displayNames(ctx context.Context, parties []models.Party) (map[uint]string, error) {
	ids := make([]uint, 0, len(parties))
	for _, p := range parties {
		if id, ok := models.UserID(p); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[uint]string{}, nil
	}
	names, err := s.directory.DisplayNames(ctx, ids)
	if err != nil {
		return nil, storageErr("lookup display names", err)
	}
	return names, nil
}
