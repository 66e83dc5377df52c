package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusProposed, StatusConfirmed, true},
		{StatusSuggested, StatusConfirmed, true},
		{StatusConfirmed, StatusCreated, true},
		{StatusProposed, StatusRejected, true},
		{StatusConfirmed, StatusRejected, true},
		{StatusProposed, StatusCreated, false},
		{StatusCreated, StatusRejected, false},
		{StatusCreated, StatusConfirmed, false},
		{StatusRejected, StatusConfirmed, false},
		{StatusConfirmed, StatusProposed, false},
		{"nonsense", StatusConfirmed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestMemoryInsertMessageIdempotent(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	msg := Message{SID: "SM1", ConversationID: "c1", From: "+34600", Body: "hola", ReceivedAt: time.Now()}

	inserted, err := st.InsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = st.InsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate SID must be a silent no-op")
}

func TestMemoryLastMessagesOrderAndDepth(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := st.InsertMessage(ctx, Message{
			SID:            NewEventID(),
			ConversationID: "c1",
			Body:           string(rune('a' + i)),
			ReceivedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	msgs, err := st.LastMessages(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Body)
	assert.Equal(t, "e", msgs[2].Body)
}

func TestMemoryConversationScans(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	for i, conv := range []string{"c1", "c2"} {
		_, err := st.InsertMessage(ctx, Message{
			SID:            NewEventID(),
			ConversationID: conv,
			Body:           "hola",
			ReceivedAt:     time.Now().Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	unprocessed, err := st.UnprocessedConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, unprocessed)

	msgs, err := st.LastMessages(ctx, "c1", 10)
	require.NoError(t, err)
	require.NoError(t, st.MarkProcessed(ctx, msgs[0].SID))

	unprocessed, err = st.UnprocessedConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, unprocessed)

	all, err := st.AllConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, all, "the full scan keeps processed conversations")
}

func TestMemoryOverlappingEvents(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	start := time.Date(2025, 12, 16, 11, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	require.NoError(t, st.InsertEvent(ctx, Event{
		ID: "e1", Title: "Ocupado", StartAt: start, EndAt: &end, Status: StatusConfirmed,
	}, "test"))

	overlapping, err := st.OverlappingEvents(ctx, start.Add(30*time.Minute), start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, overlapping, 1)

	clear, err := st.OverlappingEvents(ctx, end, end.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, clear)
}

func TestMemoryEventEndBeforeStartRejected(t *testing.T) {
	st := NewMemory()
	start := time.Now()
	end := start.Add(-time.Hour)
	err := st.InsertEvent(context.Background(), Event{ID: "bad", StartAt: start, EndAt: &end, Status: StatusProposed}, "test")
	assert.Error(t, err)
}
