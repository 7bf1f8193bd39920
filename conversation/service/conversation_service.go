package service

import (
	"context"
	"errors"
	"time"

	"provider-messaging/backend/conversation/models"
	"provider-messaging/backend/conversation/repository"
	"provider-messaging/backend/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const instrumentationName = "provider-messaging/conversation"

// Directory is the read-only view of the account directory.
type Directory interface {
	Exists(ctx context.Context, id uint) (bool, error)
	DisplayNames(ctx context.Context, ids []uint) (map[uint]string, error)
}

// AttachmentResolver turns a stored attachment path into a URL clients can fetch.
type AttachmentResolver interface {
	ResolveURL(ctx context.Context, path string) (string, error)
}

// Options tunes the service.
type Options struct {
	// PageSize is how many conversations ListConversations loads per query.
	PageSize int
	// AnonymousName is shown in place of a name for anonymous visitors.
	AnonymousName string
	// MaxContentLength caps message content, in runes. Zero disables the cap.
	MaxContentLength int
}

func DefaultOptions() Options {
	return Options{
		PageSize:         50,
		AnonymousName:    "Anonymous visitor",
		MaxContentLength: 4000,
	}
}

type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	directory     Directory
	attachments   AttachmentResolver
	log           *logger.Logger
	opts          Options
	now           func() time.Time

	tracer          trace.Tracer
	started         metric.Int64Counter
	appended        metric.Int64Counter
	conflictRetries metric.Int64Counter
}

func NewConversationService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	directory Directory,
	attachments AttachmentResolver,
	log *logger.Logger,
	opts Options,
) *ConversationService {
	defaults := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = defaults.PageSize
	}
	if opts.AnonymousName == "" {
		opts.AnonymousName = defaults.AnonymousName
	}

	meter := otel.Meter(instrumentationName)
	started, _ := meter.Int64Counter("conversations_started_total",
		metric.WithDescription("Conversations created by StartOrGetConversation"))
	appended, _ := meter.Int64Counter("messages_appended_total",
		metric.WithDescription("Messages appended to conversations"))
	retries, _ := meter.Int64Counter("conversation_start_conflicts_total",
		metric.WithDescription("Pair-key conflicts resolved by re-reading the winner"))

	return &ConversationService{
		conversations:   conversations,
		messages:        messages,
		directory:       directory,
		attachments:     attachments,
		log:             log,
		opts:            opts,
		now:             func() time.Time { return time.Now().UTC() },
		tracer:          otel.Tracer(instrumentationName),
		started:         started,
		appended:        appended,
		conflictRetries: retries,
	}
}

// StartOrGetConversation returns the conversation between caller and target,
// creating it when needed. created reports whether a new row was written.
//
// Two named users share exactly one conversation regardless of who starts it.
// An anonymous caller always gets a fresh conversation with target in slot A.
func (s *ConversationService) StartOrGetConversation(ctx context.Context, caller, target models.Party) (conv *models.Conversation, created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.start",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer func() { endSpan(span, err) }()

	targetID, ok := models.UserID(target)
	if !ok {
		return nil, false, ErrInvalidTarget
	}
	if models.SameParty(caller, target) {
		return nil, false, ErrSelfConversation
	}

	exists, err := s.directory.Exists(ctx, targetID)
	if err != nil {
		return nil, false, storageErr("lookup target", err)
	}
	if !exists {
		return nil, false, ErrInvalidTarget
	}

	callerID, named := models.UserID(caller)
	if !named {
		now := s.now()
		conv = &models.Conversation{ParticipantA: targetID, CreatedAt: now, UpdatedAt: now}
		if err := s.conversations.Create(ctx, conv); err != nil {
			return nil, false, storageErr("create conversation", err)
		}
		s.started.Add(ctx, 1, metric.WithAttributes(attribute.Bool("anonymous", true)))
		s.log.Info("anonymous conversation started", "conversation_id", conv.ID, "target_id", targetID)
		return conv, true, nil
	}

	return s.findOrCreatePair(ctx, callerID, targetID)
}

// findOrCreatePair looks up the pair and inserts it when absent. A concurrent
// insert of the same pair surfaces as a duplicate key; the winner's row is
// then read back once.
func (s *ConversationService) findOrCreatePair(ctx context.Context, callerID, targetID uint) (*models.Conversation, bool, error) {
	key := models.PairKeyFor(callerID, targetID)

	conv, err := s.conversations.FindByPairKey(ctx, key)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, storageErr("find conversation", err)
	}

	now := s.now()
	conv = &models.Conversation{
		ParticipantA: callerID,
		ParticipantB: &targetID,
		PairKey:      &key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.conversations.Create(ctx, conv)
	if err == nil {
		s.started.Add(ctx, 1, metric.WithAttributes(attribute.Bool("anonymous", false)))
		s.log.Info("conversation started", "conversation_id", conv.ID, "pair", key)
		return conv, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, storageErr("create conversation", err)
	}

	s.conflictRetries.Add(ctx, 1)
	s.log.Debug("pair key conflict, reading existing conversation", "pair", key)
	conv, err = s.conversations.FindByPairKey(ctx, key)
	if err != nil {
		return nil, false, storageErr("find conversation after conflict", err)
	}
	return conv, false, nil
}

// conversationFor loads a conversation and checks that party takes part in it.
func (s *ConversationService) conversationFor(ctx context.Context, conversationID uint, party models.Party) (*models.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	if !conv.HasParticipant(party) {
		return nil, ErrForbidden
	}
	return conv, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
