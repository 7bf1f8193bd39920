package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"provider-messaging/backend/conversation/models"
	"provider-messaging/backend/pkg/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*GormConversationRepository, *GormMessageRepository) {
	db := testdb.New(t, Migrate)
	return NewGormConversationRepository(db), NewGormMessageRepository(db)
}

func uintPtr(v uint) *uint { return &v }

func newConversation(t *testing.T, repo *GormConversationRepository, a uint, b *uint, at time.Time) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{ParticipantA: a, ParticipantB: b, CreatedAt: at, UpdatedAt: at}
	if b != nil {
		key := models.PairKeyFor(a, *b)
		conv.PairKey = &key
	}
	require.NoError(t, repo.Create(context.Background(), conv))
	return conv
}

func appendText(t *testing.T, repo *GormMessageRepository, convID uint, sender *uint, content string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{ConversationID: convID, SenderID: sender, Content: content, Kind: models.KindText, CreatedAt: at}
	require.NoError(t, repo.Append(context.Background(), msg))
	return msg
}

func TestPairKeyIsUnique(t *testing.T) {
	convs, _ := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := newConversation(t, convs, 7, uintPtr(42), now)

	key := models.PairKeyFor(42, 7)
	dup := &models.Conversation{ParticipantA: 42, ParticipantB: uintPtr(7), PairKey: &key, CreatedAt: now, UpdatedAt: now}
	err := convs.Create(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	found, err := convs.FindByPairKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestAnonymousConversationsNeverCollide(t *testing.T) {
	convs, _ := setup(t)
	now := time.Now().UTC()

	a := newConversation(t, convs, 42, nil, now)
	b := newConversation(t, convs, 42, nil, now)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAppendBumpsConversation(t *testing.T) {
	convs, msgs := setup(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	conv := newConversation(t, convs, 7, uintPtr(42), start)
	sent := start.Add(time.Hour)
	appendText(t, msgs, conv.ID, uintPtr(7), "hi", sent)

	got, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(sent))
}

func TestAppendToMissingConversationRollsBack(t *testing.T) {
	_, msgs := setup(t)
	ctx := context.Background()

	msg := &models.Message{ConversationID: 999, SenderID: uintPtr(1), Content: "x", Kind: models.KindText, CreatedAt: time.Now().UTC()}
	err := msgs.Append(ctx, msg)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, err := msgs.ListByConversation(ctx, 999, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListByConversationAfterID(t *testing.T) {
	convs, msgs := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	conv := newConversation(t, convs, 7, uintPtr(42), now)
	m1 := appendText(t, msgs, conv.ID, uintPtr(7), "one", now)
	m2 := appendText(t, msgs, conv.ID, uintPtr(42), "two", now)
	m3 := appendText(t, msgs, conv.ID, uintPtr(7), "three", now)

	all, err := msgs.ListByConversation(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint{m1.ID, m2.ID, m3.ID}, []uint{all[0].ID, all[1].ID, all[2].ID})

	tail, err := msgs.ListByConversation(ctx, conv.ID, m1.ID)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, m2.ID, tail[0].ID)
}

func TestAfterIDCursorSeesConcurrentAppends(t *testing.T) {
	convs, msgs := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	conv := newConversation(t, convs, 7, uintPtr(42), now)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		sender := uintPtr(7)
		if w%2 == 1 {
			sender = uintPtr(42)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg := &models.Message{ConversationID: conv.ID, SenderID: sender, Content: "m", Kind: models.KindText, CreatedAt: now}
				assert.NoError(t, msgs.Append(ctx, msg))
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	seen := make(map[uint]bool)
	var cursor uint
	poll := func() {
		page, err := msgs.ListByConversation(ctx, conv.ID, cursor)
		require.NoError(t, err)
		for _, m := range page {
			require.Greater(t, m.ID, cursor)
			require.False(t, seen[m.ID], "message %d delivered twice", m.ID)
			seen[m.ID] = true
			cursor = m.ID
		}
	}
	for polling := true; polling; {
		select {
		case <-done:
			polling = false
		default:
		}
		poll()
	}
	poll()

	assert.Len(t, seen, writers*perWriter)
}

func TestUnreadAndMarkRead(t *testing.T) {
	convs, msgs := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	conv := newConversation(t, convs, 42, nil, now)
	appendText(t, msgs, conv.ID, nil, "hello?", now)
	appendText(t, msgs, conv.ID, nil, "anyone?", now)
	appendText(t, msgs, conv.ID, uintPtr(42), "yes", now)

	owner := models.Named(42)
	n, err := msgs.CountUnread(ctx, conv.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = msgs.CountUnread(ctx, conv.ID, models.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	marked, err := msgs.MarkRead(ctx, conv.ID, owner, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	marked, err = msgs.MarkRead(ctx, conv.ID, owner, now)
	require.NoError(t, err)
	assert.Zero(t, marked)

	n, err = msgs.CountUnread(ctx, conv.ID, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	// the visitor's own view is untouched by the owner reading
	n, err = msgs.CountUnread(ctx, conv.ID, models.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBatchQueries(t *testing.T) {
	convs, msgs := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c1 := newConversation(t, convs, 7, uintPtr(42), now)
	c2 := newConversation(t, convs, 42, nil, now)
	c3 := newConversation(t, convs, 42, uintPtr(9), now)

	appendText(t, msgs, c1.ID, uintPtr(7), "a", now)
	last1 := appendText(t, msgs, c1.ID, uintPtr(7), "b", now)
	last2 := appendText(t, msgs, c2.ID, nil, "c", now)

	counts, err := msgs.CountUnreadByConversation(ctx, []uint{c1.ID, c2.ID, c3.ID}, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[c1.ID])
	assert.Equal(t, int64(1), counts[c2.ID])
	assert.Zero(t, counts[c3.ID])

	latest, err := msgs.LatestByConversation(ctx, []uint{c1.ID, c2.ID, c3.ID})
	require.NoError(t, err)
	require.Contains(t, latest, c1.ID)
	assert.Equal(t, last1.ID, latest[c1.ID].ID)
	assert.Equal(t, last2.ID, latest[c2.ID].ID)
	assert.NotContains(t, latest, c3.ID)

	total, err := msgs.CountUnreadForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = msgs.CountUnreadForUser(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListByParticipantOrdering(t *testing.T) {
	convs, msgs := setup(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := newConversation(t, convs, 7, uintPtr(42), base)
	newer := newConversation(t, convs, 42, nil, base.Add(time.Minute))
	newConversation(t, convs, 8, uintPtr(9), base.Add(time.Hour))

	list, err := convs.ListByParticipant(ctx, 42, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	appendText(t, msgs, older.ID, uintPtr(7), "ping", base.Add(2*time.Hour))
	list, err = convs.ListByParticipant(ctx, 42, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, older.ID, list[0].ID)

	list, err = convs.ListByParticipant(ctx, 42, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, newer.ID, list[0].ID)
}
