package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"provider-messaging/backend/conversation/models"
	"provider-messaging/backend/conversation/repository"
	"provider-messaging/backend/pkg/logger"
	"provider-messaging/backend/pkg/storage"
	"provider-messaging/backend/pkg/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDirectory struct {
	names map[uint]string
	err   error
}

func (d *fakeDirectory) Exists(_ context.Context, id uint) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	_, ok := d.names[id]
	return ok, nil
}

func (d *fakeDirectory) DisplayNames(_ context.Context, ids []uint) (map[uint]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[uint]string)
	for _, id := range ids {
		if n, ok := d.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type fixture struct {
	db    *gorm.DB
	svc   *ConversationService
	dir   *fakeDirectory
	convs *repository.GormConversationRepository
	msgs  *repository.GormMessageRepository

	mu    sync.Mutex
	clock time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := testdb.New(t, repository.Migrate)
	f := &fixture{
		db: db,
		dir: &fakeDirectory{names: map[uint]string{
			7:  "Camille",
			8:  "Noah",
			42: "Boulangerie Dupont",
		}},
		convs: repository.NewGormConversationRepository(db),
		msgs:  repository.NewGormMessageRepository(db),
		clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewConversationService(f.convs, f.msgs, f.dir, storage.NewStaticResolver("https://files.example.com"), logger.NewNop(), opts)
	f.svc.now = func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func text(content string) models.MessageInput {
	return models.MessageInput{Content: content, Kind: models.KindText}
}

func TestStartOrGetIsSymmetric(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	conv, created, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(7), conv.ParticipantA)
	require.NotNil(t, conv.ParticipantB)
	assert.Equal(t, uint(42), *conv.ParticipantB)

	again, created, err := f.svc.StartOrGetConversation(ctx, models.Named(42), models.Named(7))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
}

func TestStartOrGetRejectsBadTargets(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(7))
	assert.ErrorIs(t, err, ErrSelfConversation)

	_, _, err = f.svc.StartOrGetConversation(ctx, models.Anonymous, nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, _, err = f.svc.StartOrGetConversation(ctx, models.Named(7), nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, _, err = f.svc.StartOrGetConversation(ctx, models.Named(7), models.Anonymous)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, _, err = f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(999))
	assert.ErrorIs(t, err, ErrInvalidTarget)

	f.dir.err = errors.New("directory down")
	_, _, err = f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestAnonymousVisitsAreNeverMerged(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, created, err := f.svc.StartOrGetConversation(ctx, models.Anonymous, models.Named(42))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(42), first.ParticipantA)
	assert.Nil(t, first.ParticipantB)
	assert.Nil(t, first.PairKey)

	second, created, err := f.svc.StartOrGetConversation(ctx, models.Anonymous, models.Named(42))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentBidirectionalStartConverges(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	const workers = 8
	ids := make([]uint, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller, target := models.Named(7), models.Named(42)
			if i%2 == 1 {
				caller, target = target, caller
			}
			conv, _, err := f.svc.StartOrGetConversation(ctx, caller, target)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var count int64
	require.NoError(t, f.db.Model(&models.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// racingRepo inserts a competing conversation right before the service's own
// insert, the way a concurrent request would.
type racingRepo struct {
	*repository.GormConversationRepository
	winner *models.Conversation
}

func (r *racingRepo) Create(ctx context.Context, conv *models.Conversation) error {
	if r.winner == nil && conv.PairKey != nil {
		key := *conv.PairKey
		b := conv.ParticipantA
		r.winner = &models.Conversation{
			ParticipantA: *conv.ParticipantB,
			ParticipantB: &b,
			PairKey:      &key,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
		}
		if err := r.GormConversationRepository.Create(ctx, r.winner); err != nil {
			return err
		}
	}
	return r.GormConversationRepository.Create(ctx, conv)
}

func TestStartRetriesOnceAfterPairConflict(t *testing.T) {
	f := newFixture(t, Options{})
	racing := &racingRepo{GormConversationRepository: f.convs}
	f.svc.conversations = racing

	conv, created, err := f.svc.StartOrGetConversation(context.Background(), models.Named(7), models.Named(42))
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, racing.winner)
	assert.Equal(t, racing.winner.ID, conv.ID)
}

func TestBonjourScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user, business := models.Named(7), models.Named(42)

	conv, _, err := f.svc.StartOrGetConversation(ctx, user, business)
	require.NoError(t, err)

	sent, err := f.svc.AppendMessage(ctx, conv.ID, user, text("Bonjour"))
	require.NoError(t, err)
	assert.True(t, sent.IsMine)
	assert.Equal(t, "Camille", sent.Sender.DisplayName)

	unread, err := f.svc.UnreadCount(ctx, conv.ID, business)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	unread, err = f.svc.UnreadCount(ctx, conv.ID, user)
	require.NoError(t, err)
	assert.Zero(t, unread, "own messages are never unread")

	list, err := f.svc.CollectConversations(ctx, 42)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Camille", list[0].Counterparty.DisplayName)
	assert.False(t, list[0].Counterparty.Anonymous)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "Bonjour", list[0].LastMessage.Content)
	assert.False(t, list[0].LastMessage.IsMine)
	assert.Equal(t, int64(1), list[0].UnreadCount)

	marked, err := f.svc.MarkRead(ctx, conv.ID, business)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	list, err = f.svc.CollectConversations(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)

	marked, err = f.svc.MarkRead(ctx, conv.ID, business)
	require.NoError(t, err)
	assert.Zero(t, marked, "marking read twice changes nothing")
}

func TestAnonymousVisitorScenario(t *testing.T) {
	f := newFixture(t, Options{AnonymousName: "Guest"})
	ctx := context.Background()
	owner := models.Named(42)

	conv, _, err := f.svc.StartOrGetConversation(ctx, models.Anonymous, owner)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, conv.ID, models.Anonymous, text("Are you open on Sunday?"))
	require.NoError(t, err)
	reply, err := f.svc.AppendMessage(ctx, conv.ID, owner, text("Yes, until noon."))
	require.NoError(t, err)
	assert.Equal(t, "Boulangerie Dupont", reply.Sender.DisplayName)

	list, err := f.svc.CollectConversations(ctx, 42)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Counterparty.Anonymous)
	assert.Equal(t, "Guest", list[0].Counterparty.DisplayName)
	assert.Nil(t, list[0].Counterparty.ID)
	assert.Equal(t, "Yes, until noon.", list[0].LastMessage.Content)
	assert.Equal(t, int64(1), list[0].UnreadCount)

	visitorView, err := f.svc.GetMessages(ctx, conv.ID, models.Anonymous, 0)
	require.NoError(t, err)
	require.Len(t, visitorView, 2)
	assert.True(t, visitorView[0].IsMine)
	assert.True(t, visitorView[0].Sender.Anonymous)
	assert.False(t, visitorView[1].IsMine)

	unread, err := f.svc.UnreadCount(ctx, conv.ID, models.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	// a named stranger cannot act on the anonymous slot
	_, err = f.svc.GetMessages(ctx, conv.ID, models.Named(8), 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAppendThenGetReturnsNewMessageLast(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	conv, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.AppendMessage(ctx, conv.ID, models.Named(42), text(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}
	last, err := f.svc.AppendMessage(ctx, conv.ID, models.Named(7), text("latest"))
	require.NoError(t, err)

	msgs, err := f.svc.GetMessages(ctx, conv.ID, models.Named(7), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, last.ID, msgs[3].ID)
	assert.Equal(t, "latest", msgs[3].Content)

	newer, err := f.svc.GetMessages(ctx, conv.ID, models.Named(7), msgs[1].ID)
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, msgs[2].ID, newer[0].ID)

	unread, err := f.svc.UnreadCount(ctx, conv.ID, models.Named(7))
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread, "reading messages does not mark them read")
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t, Options{MaxContentLength: 10})
	ctx := context.Background()
	conv, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	require.NoError(t, err)

	lat, lng, bad := 48.85, 2.35, 123.0
	path := "chat/photo.jpg"
	blank := "  "

	cases := []struct {
		name   string
		author models.Party
		input  models.MessageInput
		want   error
	}{
		{"blank text", models.Named(7), text("   "), ErrEmptyContent},
		{"unknown kind", models.Named(7), models.MessageInput{Content: "x", Kind: "sticker"}, ErrInvalidKind},
		{"image without file", models.Named(7), models.MessageInput{Kind: models.KindImage, AttachmentPath: &blank}, ErrEmptyContent},
		{"too long", models.Named(7), text(strings.Repeat("é", 11)), ErrContentTooLong},
		{"half location", models.Named(7), models.MessageInput{Content: "here", Latitude: &lat}, ErrInvalidLocation},
		{"latitude out of range", models.Named(7), models.MessageInput{Content: "here", Latitude: &bad, Longitude: &lng}, ErrInvalidLocation},
		{"stranger", models.Named(8), text("hi"), ErrForbidden},
		{"anonymous in named conversation", models.Anonymous, text("hi"), ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AppendMessage(ctx, conv.ID, tc.author, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err = f.svc.AppendMessage(ctx, 999, models.Named(7), text("hi"))
	assert.ErrorIs(t, err, ErrConversationNotFound)

	view, err := f.svc.AppendMessage(ctx, conv.ID, models.Named(7), models.MessageInput{
		Kind:           models.KindImage,
		AttachmentPath: &path,
		Latitude:       &lat,
		Longitude:      &lng,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/chat/photo.jpg", view.AttachmentURL)
	require.NotNil(t, view.Location)
	assert.Equal(t, lat, view.Location.Latitude)

	text10 := strings.Repeat("é", 10)
	_, err = f.svc.AppendMessage(ctx, conv.ID, models.Named(7), text(text10))
	assert.NoError(t, err, "limit counts runes, not bytes")
}

func TestAppendChecksAccessBeforeContent(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	conv, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, 999, models.Named(7), text("   "))
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = f.svc.AppendMessage(ctx, conv.ID, models.Named(8), text(""))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AppendMessage(ctx, conv.ID, models.Anonymous, models.MessageInput{Kind: "sticker"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAppendBumpsListOrder(t *testing.T) {
	f := newFixture(t, Options{PageSize: 1})
	ctx := context.Background()

	withUser, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	require.NoError(t, err)
	withVisitor, _, err := f.svc.StartOrGetConversation(ctx, models.Anonymous, models.Named(42))
	require.NoError(t, err)
	withNoah, _, err := f.svc.StartOrGetConversation(ctx, models.Named(8), models.Named(42))
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, withUser.ID, models.Named(7), text("first"))
	require.NoError(t, err)

	list, err := f.svc.CollectConversations(ctx, 42)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint{withUser.ID, withNoah.ID, withVisitor.ID}, []uint{list[0].ID, list[1].ID, list[2].ID})
	assert.Nil(t, list[1].LastMessage)
	assert.Equal(t, "Noah", list[1].Counterparty.DisplayName)

	// user 7 only sees their own conversation
	mine, err := f.svc.CollectConversations(ctx, 7)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Boulangerie Dupont", mine[0].Counterparty.DisplayName)
	assert.Zero(t, mine[0].UnreadCount)
}

func TestListConversationsStopsEarlyAndRestarts(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _, err := f.svc.StartOrGetConversation(ctx, models.Anonymous, models.Named(42))
		require.NoError(t, err)
	}

	seen := 0
	for _, err := range f.svc.ListConversations(ctx, 42) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)

	all, err := f.svc.CollectConversations(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := f.svc.CollectConversations(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListConversationsYieldsStorageError(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), models.Named(42))
	require.NoError(t, err)

	f.dir.err = errors.New("directory down")
	_, err = f.svc.CollectConversations(ctx, 42)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "lookup display names", storageErr.Op)
}

func TestMarkReadAndTotals(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	owner := models.Named(42)

	named, _, err := f.svc.StartOrGetConversation(ctx, models.Named(7), owner)
	require.NoError(t, err)
	anon, _, err := f.svc.StartOrGetConversation(ctx, models.Anonymous, owner)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, named.ID, models.Named(7), text("a"))
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, anon.ID, models.Anonymous, text("b"))
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, anon.ID, models.Anonymous, text("c"))
	require.NoError(t, err)

	total, err := f.svc.TotalUnread(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	_, err = f.svc.MarkRead(ctx, anon.ID, models.Named(7))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.MarkRead(ctx, 12345, owner)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	marked, err := f.svc.MarkRead(ctx, anon.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	total, err = f.svc.TotalUnread(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	msgs, err := f.svc.GetMessages(ctx, anon.ID, owner, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.NotNil(t, m.ReadAt)
	}
}
