package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/message"
)

const collectorGroup = "120363000000000001@g.us"

func groupEvent(id, text string, sender types.JID, at time.Time) *events.Message {
	raw := &waE2E.Message{Conversation: proto.String(text)}
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    types.NewJID("120363000000000001", types.GroupServer),
				Sender:  sender,
				IsGroup: true,
			},
			ID:        id,
			Timestamp: at,
		},
		Message:    raw,
		RawMessage: raw,
	}
}

func TestCollectorStoresGroupMessages(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryMessageRepo()
	c := NewMessageCollector(repo, nil)

	sender := types.NewJID("5511987654321", types.DefaultUserServer)
	c.HandleEvent(groupEvent("m1", "bom dia", sender, testNow))
	c.HandleEvent(&events.Connected{})

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, err := repo.LastTimestamp(ctx, collectorGroup)
	require.NoError(t, err)
	assert.True(t, last.Equal(testNow))
}

func TestCollectorIgnoresDirectMessages(t *testing.T) {
	c := NewMessageCollector(repositories.NewInMemoryMessageRepo(), nil)
	evt := groupEvent("m1", "oi", types.NewJID("5511987654321", types.DefaultUserServer), testNow)
	evt.Info.IsGroup = false
	c.HandleMessage(evt)

	n, err := c.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollectorFlushSkipsStoredHistory(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryMessageRepo()
	_, err := repo.InsertBatch(ctx, []message.Message{{ID: "old", GroupID: collectorGroup, Timestamp: testNow}})
	require.NoError(t, err)

	c := NewMessageCollector(repo, nil)
	c.Collect(message.Message{ID: "before", GroupID: collectorGroup, Timestamp: testNow.Add(-time.Minute)})
	c.Collect(message.Message{ID: "same", GroupID: collectorGroup, Timestamp: testNow})
	c.Collect(message.Message{ID: "after", GroupID: collectorGroup, Timestamp: testNow.Add(time.Minute)})
	c.Collect(message.Message{ID: "other", GroupID: "g2@g.us", Timestamp: testNow.Add(-time.Hour)})
	c.Collect(message.Message{GroupID: collectorGroup, Timestamp: testNow.Add(time.Hour)})

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "flush drains the buffer")
}

func TestMessageTextAndType(t *testing.T) {
	tests := []struct {
		name     string
		msg      *waE2E.Message
		text     string
		wantType string
	}{
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello", "conversation"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("link")}}, "link", "extendedTextMessage"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("photo")}}, "photo", "imageMessage"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "", "stickerMessage"},
		{"empty", &waE2E.Message{}, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, messageText(tt.msg))
			assert.Equal(t, tt.wantType, detectMessageType(tt.msg))
		})
	}
}
